package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequireAdmin(t *testing.T) {
	a := NewAuthenticator("test-secret")
	valid, err := a.GenerateToken("ops", time.Hour)
	require.NoError(t, err)
	expired, err := a.GenerateToken("ops", -time.Minute)
	require.NoError(t, err)
	foreign, err := NewAuthenticator("other-secret").GenerateToken("ops", time.Hour)
	require.NoError(t, err)

	viewer := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Role: "viewer", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}})
	viewerToken, err := viewer.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	handler := a.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := FromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, "ops", claims.Name)
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid token", header: "Bearer " + valid, status: http.StatusNoContent},
		{name: "lowercase scheme", header: "bearer " + valid, status: http.StatusNoContent},
		{name: "missing header", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, status: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + foreign, status: http.StatusUnauthorized},
		{name: "non admin role", header: "Bearer " + viewerToken, status: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPut, "/api/config", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestRequireAdminDisabledWithoutSecret(t *testing.T) {
	a := NewAuthenticator("")
	assert.False(t, a.Enabled())

	_, err := a.GenerateToken("ops", time.Hour)
	assert.Error(t, err)

	rec := httptest.NewRecorder()
	a.RequireAdmin(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/config", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
