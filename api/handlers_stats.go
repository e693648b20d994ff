package api

import (
	"net/http"
)

const maxStatsDays = 365

// handlePerformanceStats returns daily statistics, newest first
func (s *Server) handlePerformanceStats(w http.ResponseWriter, r *http.Request) {
	daysBack := getIntParam(r, "days", 7, intPtr(1), intPtr(maxStatsDays))

	stats, err := s.advisor.GetPerformanceStats(r.Context(), daysBack)
	if err != nil {
		s.respondWithError(w, "failed to load performance stats", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":     stats,
		"days_back": daysBack,
		"count":     len(stats),
	})
}

// handleOptimalExit returns per-hour checkpoint statistics and the recommended exit hour
func (s *Server) handleOptimalExit(w http.ResponseWriter, r *http.Request) {
	daysBack := getIntParam(r, "days", 30, intPtr(1), intPtr(maxStatsDays))

	analysis, err := s.advisor.GetOptimalExitAnalysis(r.Context(), daysBack)
	if err != nil {
		s.respondWithError(w, "failed to analyze optimal exits", err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// handleConfigRanking ranks rule configurations by realized success rate
func (s *Server) handleConfigRanking(w http.ResponseWriter, r *http.Request) {
	daysBack := getIntParam(r, "days", 30, intPtr(1), intPtr(maxStatsDays))

	rankings, err := s.advisor.RankConfigurations(r.Context(), daysBack)
	if err != nil {
		s.respondWithError(w, "failed to rank configurations", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"configs":   rankings,
		"days_back": daysBack,
		"count":     len(rankings),
	})
}
