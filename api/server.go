package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"intraday-advisor/app"
	"intraday-advisor/auth"
	"intraday-advisor/observability"
	"intraday-advisor/realtime"
)

// HealthCheck reports whether a backing service is reachable
type HealthCheck func(ctx context.Context) error

// Server handles HTTP API requests
type Server struct {
	advisor *app.Advisor
	broker  *realtime.Broker
	ws      *realtime.WSHandler
	auth    *auth.Authenticator
	metrics *observability.Metrics
	checks  map[string]HealthCheck
	log     *logrus.Logger

	httpServer *http.Server
}

// NewServer creates a new API server instance
func NewServer(advisor *app.Advisor, broker *realtime.Broker, authenticator *auth.Authenticator, metrics *observability.Metrics, log *logrus.Logger) *Server {
	return &Server{
		advisor: advisor,
		broker:  broker,
		ws:      realtime.NewWSHandler(broker, log),
		auth:    authenticator,
		metrics: metrics,
		checks:  make(map[string]HealthCheck),
		log:     log,
	}
}

// AddHealthCheck registers a dependency probed by GET /health
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

// Handler builds the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Advisor routes
	mux.HandleFunc("GET /api/analyze/{ticker}", s.handleAnalyze)
	mux.HandleFunc("POST /api/scan", s.handleScan)
	mux.HandleFunc("GET /api/opportunities", s.handleOpportunities)

	// Rule configuration
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.Handle("PUT /api/config", s.auth.RequireAdmin(http.HandlerFunc(s.handleUpdateConfig)))

	// Statistics
	mux.HandleFunc("GET /api/stats/performance", s.handlePerformanceStats)
	mux.HandleFunc("GET /api/stats/optimal-exit", s.handleOptimalExit)
	mux.HandleFunc("GET /api/stats/configs", s.handleConfigRanking)

	// Recommendation lifecycle
	mux.Handle("POST /api/recommendations/{id}/close", s.auth.RequireAdmin(http.HandlerFunc(s.handleCloseRecommendation)))

	// Realtime push
	mux.Handle("GET /api/events", s.broker) // SSE Endpoint
	mux.Handle("GET /api/ws", s.ws)

	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /health", s.handleHealth)

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start listens on port until Shutdown is called
func (s *Server) Start(port int) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Infof("🚀 API Server starting on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debugf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// Handlers are distributed across multiple files:
// - handlers_advisor.go: analyze, scan, opportunities, manual close
// - handlers_config.go: rule configuration, health check
// - handlers_stats.go: performance, optimal exit, config ranking
