package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"intraday-advisor/app"
	"intraday-advisor/config"
	"intraday-advisor/signals"
)

// analyzeResponse wraps one evaluation; MarketClosed marks a WAIT produced
// outside trading hours
type analyzeResponse struct {
	Result       signals.EvaluationResult `json:"result"`
	MarketClosed bool                     `json:"market_closed,omitempty"`
	Reason       string                   `json:"reason,omitempty"`
}

// scanRequest is the body of POST /api/scan
type scanRequest struct {
	Tickers    []string `json:"tickers"`
	MaxWorkers int      `json:"max_workers"`
	// Override applies to this scan only
	Override *config.RuleOverride `json:"override,omitempty"`
}

// handleAnalyze evaluates one ticker, optionally against an open position
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ticker := r.PathValue("ticker")

	var entryPrice *float64
	if v := r.URL.Query().Get("entry_price"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil || p <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "entry_price must be a positive number", Field: "entry_price"})
			return
		}
		entryPrice = &p
	}

	var entryTime *time.Time
	if v := r.URL.Query().Get("entry_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "entry_time must be RFC3339", Field: "entry_time"})
			return
		}
		entryTime = &t
	}

	result, err := s.advisor.AnalyzeTicker(r.Context(), ticker, entryPrice, entryTime)
	if err != nil {
		var stale *app.StaleSessionError
		if errors.As(err, &stale) {
			writeJSON(w, http.StatusOK, analyzeResponse{Result: result, MarketClosed: true, Reason: stale.Error()})
			return
		}
		s.respondWithError(w, "failed to analyze "+ticker, err)
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{Result: result})
}

// handleScan runs a scan over the requested tickers, or the whole universe
// when the body is empty
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}
	if req.MaxWorkers < 0 || req.MaxWorkers > 64 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "max_workers must be between 0 and 64", Field: "max_workers"})
		return
	}

	result, err := s.advisor.ScanMarket(r.Context(), req.Tickers, req.MaxWorkers, req.Override)
	if err != nil {
		s.respondWithError(w, "scan override rejected", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleOpportunities returns the top actionable results of the latest scan
func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	limit := getIntParam(r, "limit", 10, intPtr(1), intPtr(100))
	opportunities := s.advisor.TopOpportunities(r.Context(), limit)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"opportunities": opportunities,
		"count":         len(opportunities),
	})
}

// handleCloseRecommendation closes an ACTIVE recommendation with reason MANUAL
func (s *Server) handleCloseRecommendation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid recommendation id", Field: "id"})
		return
	}

	outcome, err := s.advisor.CloseRecommendation(r.Context(), id)
	if err != nil {
		s.respondWithError(w, "failed to close recommendation", err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
