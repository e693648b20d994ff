package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"intraday-advisor/app"
	"intraday-advisor/config"
	"intraday-advisor/database"
	"intraday-advisor/snapshot"
)

// errorResponse is the JSON body of every failed request
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// getIntParam retrieves an integer query parameter with default value and optional range validation
func getIntParam(r *http.Request, key string, defaultVal int, minVal, maxVal *int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}

	if minVal != nil && val < *minVal {
		return defaultVal
	}
	if maxVal != nil && val > *maxVal {
		return defaultVal
	}

	return val
}

func intPtr(v int) *int { return &v }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondWithError logs the error and sends a JSON error response.
// The status code is derived from the error type.
func (s *Server) respondWithError(w http.ResponseWriter, message string, err error) {
	code := statusFor(err)
	resp := errorResponse{Error: message}

	var ve *config.ValidationError
	if errors.As(err, &ve) {
		resp.Error = ve.Error()
		resp.Field = ve.Field
	}

	entry := s.log.WithFields(logrus.Fields{"status": code})
	if code >= http.StatusInternalServerError {
		entry.WithError(err).Errorf("❌ API Error: %s", message)
	} else {
		entry.WithError(err).Debugf("API Error: %s", message)
	}
	writeJSON(w, code, resp)
}

func statusFor(err error) int {
	var ve *config.ValidationError
	switch {
	case errors.As(err, &ve), errors.Is(err, app.ErrEmptyTicker):
		return http.StatusBadRequest
	case errors.Is(err, snapshot.ErrNoData), database.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, app.ErrAlreadyClosed):
		return http.StatusConflict
	case snapshot.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
