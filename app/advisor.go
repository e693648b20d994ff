package app

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"intraday-advisor/config"
	models "intraday-advisor/database/models_pkg"
	"intraday-advisor/observability"
	"intraday-advisor/signals"
)

// Options tunes the advisor's background components
type Options struct {
	MaxWorkers        int
	TickerTimeout     time.Duration
	TrackerInterval   time.Duration
	MaxAttempts       int
	CloseAtSessionEnd bool
	StatsInterval     time.Duration
}

// Advisor is the service boundary: every operation the API exposes goes
// through it. It owns the shared rule configuration.
type Advisor struct {
	deps       Deps
	rules      *RuleHolder
	eval       *Evaluator
	scanner    *Scanner
	tracker    *OutcomeTracker
	stats      *StatsAggregator
	refresher  *StatsRefresher
	maxWorkers int
}

// NewAdvisor wires the scanner, tracker and statistics around one rule set
func NewAdvisor(deps Deps, rules config.RuleConfig, opts Options) *Advisor {
	deps = deps.withDefaults()
	holder := NewRuleHolder(rules)

	eval := NewEvaluator(deps.Snapshots, deps.Classifier, deps.News, deps.Session)
	eval.now = deps.Now

	stats := NewStatsAggregator(deps)
	maxWorkers := opts.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}

	scanner := NewScanner(deps, holder, opts.TickerTimeout)
	tracker := NewOutcomeTracker(deps, stats, opts.TrackerInterval, opts.MaxAttempts, opts.CloseAtSessionEnd)
	scanner.SetPositionCloser(tracker)

	return &Advisor{
		deps:       deps,
		rules:      holder,
		eval:       eval,
		scanner:    scanner,
		tracker:    tracker,
		stats:      stats,
		refresher:  NewStatsRefresher(stats, opts.StatsInterval),
		maxWorkers: maxWorkers,
	}
}

// Tracker returns the outcome tracker
func (a *Advisor) Tracker() *OutcomeTracker { return a.tracker }

// Refresher returns the periodic stats refresher
func (a *Advisor) Refresher() *StatsRefresher { return a.refresher }

// AnalyzeTicker evaluates one ticker with the active configuration. Outside
// trading hours it returns a WAIT result together with a *StaleSessionError.
func (a *Advisor) AnalyzeTicker(ctx context.Context, ticker string, entryPrice *float64, entryTime *time.Time) (signals.EvaluationResult, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	ctx, span := observability.Tracer().Start(ctx, "advisor.AnalyzeTicker")
	defer span.End()
	span.SetAttributes(attribute.String("ticker", ticker))

	cfg := a.rules.Current()
	if ticker == "" {
		return signals.EvaluationResult{}, ErrEmptyTicker
	}

	now := a.deps.Now()
	if a.deps.Session != nil && !a.deps.Session.IsOpen(now) {
		return signals.EvaluationResult{
			Ticker:             ticker,
			RuleRecommendation: signals.Wait,
			Recommendation:     signals.Wait,
			HasPosition:        entryPrice != nil,
			EntryPrice:         entryPrice,
			EntryTime:          entryTime,
			ConfigName:         cfg.Name,
			ConfigVersion:      cfg.Version,
		}, &StaleSessionError{At: now, NextOpen: a.deps.Session.NextOpen(now)}
	}

	result, err := a.eval.Evaluate(ctx, ticker, cfg, entryPrice, entryTime)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return signals.EvaluationResult{}, err
	}
	return result, nil
}

// ScanMarket runs one market scan. maxWorkers <= 0 uses the configured pool size.
// override, when non-nil, applies to this scan only and never changes the
// active configuration.
func (a *Advisor) ScanMarket(ctx context.Context, tickers []string, maxWorkers int, override *config.RuleOverride) (ScanResult, error) {
	if maxWorkers <= 0 {
		maxWorkers = a.maxWorkers
	}
	return a.scanner.Scan(ctx, tickers, maxWorkers, override)
}

// TopOpportunities returns the best actionable results of the latest scan
func (a *Advisor) TopOpportunities(ctx context.Context, limit int) []signals.EvaluationResult {
	return a.scanner.TopOpportunities(ctx, limit)
}

// CurrentConfig returns a copy of the active rule configuration
func (a *Advisor) CurrentConfig() config.RuleConfig {
	return a.rules.Current()
}

// ApplyConfigOverride validates and merges o into the active configuration.
// On a *config.ValidationError the previous configuration stays active.
// The merged configuration is persisted to Redis for restarts.
func (a *Advisor) ApplyConfigOverride(ctx context.Context, o config.RuleOverride) (config.RuleConfig, error) {
	merged, err := a.rules.Apply(o)
	if err != nil {
		a.deps.Log.WithError(err).Warn("⚠️ Rule override rejected")
		return merged, err
	}

	if a.deps.Cache.Enabled() {
		if err := a.deps.Cache.SaveConfigOverride(ctx, merged); err != nil {
			a.deps.Log.WithError(err).Warn("⚠️ Failed to persist rule override, change is in-memory only")
		}
	}

	a.deps.Log.WithFields(logrus.Fields{"config": merged.Name, "version": merged.Version}).
		Info("⚙️ Rule configuration updated")
	return merged, nil
}

// RestoreConfigOverride re-applies a configuration persisted by a previous
// process. An invalid stored configuration is ignored.
func (a *Advisor) RestoreConfigOverride(ctx context.Context) (bool, error) {
	var stored config.RuleConfig
	found, err := a.deps.Cache.LoadConfigOverride(ctx, &stored)
	if err != nil || !found {
		return false, err
	}
	if err := stored.Validate(); err != nil {
		a.deps.Log.WithError(err).Warn("⚠️ Ignoring invalid persisted rule override")
		return false, nil
	}
	a.rules.Replace(stored)
	a.deps.Log.WithFields(logrus.Fields{"config": stored.Name, "version": stored.Version}).
		Info("⚙️ Restored persisted rule configuration")
	return true, nil
}

// CloseRecommendation closes an ACTIVE recommendation with reason MANUAL
func (a *Advisor) CloseRecommendation(ctx context.Context, id int64) (*models.OutcomeResult, error) {
	return a.tracker.CloseManual(ctx, id)
}

// GetPerformanceStats returns daily statistics of the last daysBack days, newest first
func (a *Advisor) GetPerformanceStats(ctx context.Context, daysBack int) ([]models.DailyStats, error) {
	return a.stats.GetPerformanceStats(ctx, daysBack)
}

// GetOptimalExitAnalysis reports the historically best holding hour
func (a *Advisor) GetOptimalExitAnalysis(ctx context.Context, daysBack int) (OptimalExitAnalysis, error) {
	return a.stats.GetOptimalExitAnalysis(ctx, daysBack)
}

// RankConfigurations ranks rule sets by realized success rate
func (a *Advisor) RankConfigurations(ctx context.Context, daysBack int) ([]ConfigRanking, error) {
	return a.stats.RankConfigurations(ctx, daysBack)
}
