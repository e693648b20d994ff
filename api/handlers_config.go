package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"intraday-advisor/auth"
	"intraday-advisor/config"
)

// handleHealth returns the health status of the API and its dependencies
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]interface{}{
		"status":       overall,
		"dependencies": deps,
		"sse_clients":  s.broker.ClientCount(),
	})
}

// handleGetConfig returns the active rule configuration
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.advisor.CurrentConfig())
}

// handleUpdateConfig applies a partial override; invalid overrides change nothing
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var override config.RuleOverride
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&override); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	updated, err := s.advisor.ApplyConfigOverride(r.Context(), override)
	if err != nil {
		s.respondWithError(w, "rule override rejected", err)
		return
	}

	if claims, ok := auth.FromContext(r.Context()); ok {
		s.log.WithField("admin", claims.Name).Infof("⚙️ Rule config %s v%d applied via API", updated.Name, updated.Version)
	}
	writeJSON(w, http.StatusOK, updated)
}
