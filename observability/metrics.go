// Package observability provides metrics, logging and tracing setup.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the advisor.
// Every metric lives on a private registry so tests can create many instances.
type Metrics struct {
	registry *prometheus.Registry

	// Scanner metrics
	ScansTotal             *prometheus.CounterVec
	ScanDuration           prometheus.Histogram
	TickerEvaluations      *prometheus.CounterVec
	RecommendationsCreated *prometheus.CounterVec

	// Tracker metrics
	CheckpointsWritten    prometheus.Counter
	OutcomesClosed        *prometheus.CounterVec
	TrackerTicks          *prometheus.CounterVec
	ActiveRecommendations prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "intraday_advisor"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		ScansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "scans_total",
			Help:      "Total number of market scans by result",
		}, []string{"result"}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of a market scan",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		TickerEvaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "ticker_evaluations_total",
			Help:      "Per-ticker evaluations by outcome",
		}, []string{"outcome"}),
		RecommendationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scanner",
			Name:      "recommendations_created_total",
			Help:      "Recommendations persisted by state",
		}, []string{"state"}),

		CheckpointsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "checkpoints_written_total",
			Help:      "Hourly checkpoint evaluations written",
		}),
		OutcomesClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "outcomes_closed_total",
			Help:      "Recommendations closed by exit reason",
		}, []string{"reason"}),
		TrackerTicks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "ticks_total",
			Help:      "Outcome tracker ticks by result",
		}, []string{"result"}),
		ActiveRecommendations: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "active_recommendations",
			Help:      "ACTIVE recommendations seen by the last tick",
		}),
	}
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
