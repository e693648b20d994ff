package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreHeadlines(t *testing.T) {
	var got scoreRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"` +
			"```json\\n{\\\"score\\\": 0.6, \\\"summary\\\": \\\"record quarterly profit\\\"}\\n```" + `"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "test-model")
	s, err := c.ScoreHeadlines(context.Background(), "BBRI", []string{"BBRI posts record quarterly profit"})
	require.NoError(t, err)

	assert.InDelta(t, 0.6, s.Score, 1e-9)
	assert.Equal(t, "record quarterly profit", s.Summary)
	assert.Equal(t, "test-model", got.Model)
	assert.Zero(t, got.Temperature)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[1].Content, "BBRI posts record quarterly profit")
}

func TestScoreHeadlinesWithoutHeadlinesMakesNoCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	}))
	defer srv.Close()

	s, err := NewClient(srv.URL+"/", "", "m").ScoreHeadlines(context.Background(), "BBRI", nil)
	require.NoError(t, err)
	assert.Zero(t, s.Score)
}

func TestScoreHeadlinesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", "m").ScoreHeadlines(context.Background(), "TLKM", []string{"x"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "rate limited", apiErr.Body)
}

func TestParseSentiment(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		score   float64
		wantErr bool
	}{
		{name: "plain", reply: `{"score": -0.4, "summary": "lawsuit"}`, score: -0.4},
		{name: "prose around", reply: `Sure! {"score": 0.1, "summary": "flat"} hope it helps`, score: 0.1},
		{name: "clamped", reply: `{"score": 3, "summary": "moon"}`, score: 1},
		{name: "no json", reply: "neutral", wantErr: true},
		{name: "broken json", reply: `{"score": "high"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseSentiment(tt.reply)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.score, s.Score, 1e-9)
		})
	}
}

func TestFormatHeadlinePromptTruncates(t *testing.T) {
	var hs []string
	for i := 0; i < 15; i++ {
		hs = append(hs, "headline")
	}
	p := FormatHeadlinePrompt("ASII", hs)
	assert.Equal(t, maxHeadlines, strings.Count(p, "headline"))
}
