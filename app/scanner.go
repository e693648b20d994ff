package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"intraday-advisor/config"
	"intraday-advisor/database"
	models "intraday-advisor/database/models_pkg"
	"intraday-advisor/helpers"
	"intraday-advisor/observability"
	"intraday-advisor/realtime"
	"intraday-advisor/signals"
	"intraday-advisor/snapshot"
)

// Scanner defaults
const (
	DefaultMaxWorkers    = 5
	DefaultTickerTimeout = 10 * time.Second
	latestScanTTL        = 24 * time.Hour
)

// Failure kinds
const (
	FailureNoData      = "no_data"
	FailureTransient   = "transient"
	FailurePersistence = "persistence"
	FailureTimeout     = "timeout"
	FailureError       = "error"
)

// TickerFailure records why one ticker produced no result
type TickerFailure struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
	Kind   string `json:"kind"`
}

// ScanResult is the ranked outcome of one market scan
type ScanResult struct {
	ScanID      string                     `json:"scan_id"`
	StartedAt   time.Time                  `json:"started_at"`
	Duration    time.Duration              `json:"duration"`
	Results     []signals.EvaluationResult `json:"results"`
	Failures    []TickerFailure            `json:"failures,omitempty"`
	Unevaluated []string                   `json:"unevaluated,omitempty"`
	Skipped     bool                       `json:"skipped"`
	Reason      string                     `json:"reason,omitempty"`
	// Created holds the ids of recommendations persisted by this scan
	Created []int64 `json:"created,omitempty"`
}

// Err joins every failure into one error, nil when there are none
func (r ScanResult) Err() error {
	var err error
	for _, f := range r.Failures {
		err = multierr.Append(err, fmt.Errorf("%s [%s]: %s", f.Ticker, f.Kind, f.Reason))
	}
	return err
}

// Actionable returns up to limit BUY/SELL results in ranked order.
// limit <= 0 returns all of them.
func (r ScanResult) Actionable(limit int) []signals.EvaluationResult {
	out := make([]signals.EvaluationResult, 0)
	for _, res := range r.Results {
		if !res.IsActionable() {
			continue
		}
		out = append(out, res)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Scanner evaluates many tickers concurrently and persists actionable results
type Scanner struct {
	deps          Deps
	eval          *Evaluator
	rules         *RuleHolder
	tickerTimeout time.Duration
	exits         PositionCloser

	mu     sync.RWMutex
	latest *ScanResult
}

// NewScanner creates a new market scanner
func NewScanner(deps Deps, rules *RuleHolder, tickerTimeout time.Duration) *Scanner {
	deps = deps.withDefaults()
	if tickerTimeout <= 0 {
		tickerTimeout = DefaultTickerTimeout
	}
	eval := NewEvaluator(deps.Snapshots, deps.Classifier, deps.News, deps.Session)
	eval.now = deps.Now
	return &Scanner{
		deps:          deps,
		eval:          eval,
		rules:         rules,
		tickerTimeout: tickerTimeout,
	}
}

// SetPositionCloser lets a SELL signal close the open BUY it exits.
// Without one the BUY stays ACTIVE until the tracker closes it.
func (s *Scanner) SetPositionCloser(c PositionCloser) {
	s.exits = c
}

type tickerOutcome struct {
	result      *signals.EvaluationResult
	failure     *TickerFailure
	unevaluated bool
}

// Scan evaluates tickers with at most maxWorkers in flight. An empty list
// scans the whole universe. Per-ticker problems land in Failures; caller
// cancellation leaves the remaining tickers in Unevaluated.
//
// A non-nil override is merged into a copy of the active configuration that
// lives only for this scan. An invalid override is rejected with a
// *config.ValidationError before any ticker is evaluated.
func (s *Scanner) Scan(ctx context.Context, tickers []string, maxWorkers int, override *config.RuleOverride) (ScanResult, error) {
	cfg, err := s.rules.Derive(override)
	if err != nil {
		s.deps.Log.WithError(err).Warn("⚠️ Scan override rejected")
		return ScanResult{}, err
	}

	ctx, span := observability.Tracer().Start(ctx, "scanner.Scan")
	defer span.End()

	start := s.deps.Now()
	result := ScanResult{ScanID: uuid.NewString(), StartedAt: start}
	log := s.deps.Log.WithField("scan_id", result.ScanID)
	span.SetAttributes(attribute.String("scan.id", result.ScanID))

	if s.deps.Session != nil && !s.deps.Session.IsOpen(start) {
		stale := &StaleSessionError{At: start, NextOpen: s.deps.Session.NextOpen(start)}
		result.Skipped = true
		result.Reason = stale.Error()
		s.deps.Metrics.ScansTotal.WithLabelValues("skipped").Inc()
		log.Infof("⏰ Scan skipped: %v", stale)
		return result, nil
	}

	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}

	if len(tickers) == 0 {
		universe, err := s.deps.Universe.ListTickers(ctx)
		if err != nil {
			log.WithError(err).Error("❌ Failed to load ticker universe")
			result.Failures = append(result.Failures, TickerFailure{Ticker: "*", Reason: err.Error(), Kind: failureKind(err)})
			result.Duration = s.deps.Now().Sub(start)
			s.deps.Metrics.ScansTotal.WithLabelValues("failed").Inc()
			span.SetStatus(codes.Error, err.Error())
			return result, nil
		}
		tickers = universe
	}
	tickers = normalizeTickers(tickers)

	positions := s.openPositions(ctx, log)

	log.Infof("🔍 Scanning %d tickers with %d workers (config %s v%d)", len(tickers), maxWorkers, cfg.Name, cfg.Version)

	outcomes := make([]tickerOutcome, len(tickers))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < maxWorkers && w < len(tickers); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				outcomes[i] = s.evaluateOne(ctx, tickers[i], cfg, positions[tickers[i]])
			}
		}()
	}

	dispatched := 0
	for i := range tickers {
		if ctx.Err() != nil {
			break
		}
		select {
		case jobs <- i:
			dispatched++
		case <-ctx.Done():
		}
		if dispatched <= i {
			break
		}
	}
	close(jobs)
	wg.Wait()

	for i, ticker := range tickers {
		if i >= dispatched {
			outcomes[i] = tickerOutcome{unevaluated: true}
		}
		o := outcomes[i]
		switch {
		case o.unevaluated:
			result.Unevaluated = append(result.Unevaluated, ticker)
			s.deps.Metrics.TickerEvaluations.WithLabelValues("unevaluated").Inc()
		case o.failure != nil:
			result.Failures = append(result.Failures, *o.failure)
			s.deps.Metrics.TickerEvaluations.WithLabelValues(o.failure.Kind).Inc()
		case o.result != nil:
			result.Results = append(result.Results, *o.result)
			s.deps.Metrics.TickerEvaluations.WithLabelValues("ok").Inc()
		}
	}

	RankResults(result.Results)
	s.persistActionable(context.WithoutCancel(ctx), &result, cfg, positions, log)

	result.Duration = s.deps.Now().Sub(start)
	s.deps.Metrics.ScanDuration.Observe(result.Duration.Seconds())
	if len(result.Unevaluated) > 0 {
		s.deps.Metrics.ScansTotal.WithLabelValues("cancelled").Inc()
	} else {
		s.deps.Metrics.ScansTotal.WithLabelValues("completed").Inc()
	}
	span.SetAttributes(
		attribute.Int("scan.tickers", len(tickers)),
		attribute.Int("scan.results", len(result.Results)),
		attribute.Int("scan.failures", len(result.Failures)),
	)

	s.storeLatest(context.WithoutCancel(ctx), result, log)
	s.deps.Broker.Broadcast(realtime.EventScanCompleted, map[string]interface{}{
		"scan_id":     result.ScanID,
		"results":     len(result.Results),
		"actionable":  len(result.Actionable(0)),
		"failures":    len(result.Failures),
		"unevaluated": len(result.Unevaluated),
	})

	log.Infof("✅ Scan completed: %d evaluated, %d failed, %d unevaluated, %d recommendations in %v",
		len(result.Results), len(result.Failures), len(result.Unevaluated), len(result.Created), result.Duration)
	return result, nil
}

// evaluateOne runs one ticker under its own timeout. A ticker cut short by the
// caller's cancellation is reported as unevaluated rather than failed.
func (s *Scanner) evaluateOne(ctx context.Context, ticker string, cfg config.RuleConfig, pos *models.Recommendation) tickerOutcome {
	ctx, span := observability.Tracer().Start(ctx, "scanner.evaluate", trace.WithAttributes(attribute.String("ticker", ticker)))
	defer span.End()

	tctx, cancel := context.WithTimeout(ctx, s.tickerTimeout)
	defer cancel()

	var entryPrice *float64
	var entryTime *time.Time
	if pos != nil {
		p, t := pos.EntryPrice, pos.CreatedAt
		entryPrice, entryTime = &p, &t
	}

	type reply struct {
		res signals.EvaluationResult
		err error
	}
	done := make(chan reply, 1)
	go func() {
		res, err := s.eval.Evaluate(tctx, ticker, cfg, entryPrice, entryTime)
		done <- reply{res: res, err: err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-tctx.Done():
		r = reply{err: tctx.Err()}
	}

	if r.err == nil {
		return tickerOutcome{result: &r.res}
	}
	if ctx.Err() != nil {
		return tickerOutcome{unevaluated: true}
	}

	kind := failureKind(r.err)
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		kind = FailureTimeout
	}
	span.SetStatus(codes.Error, r.err.Error())
	s.deps.Log.WithFields(logrus.Fields{"ticker": ticker, "kind": kind}).Debugf("⚠️ Evaluation failed: %v", r.err)
	return tickerOutcome{failure: &TickerFailure{Ticker: ticker, Reason: r.err.Error(), Kind: kind}}
}

func failureKind(err error) string {
	var pe *database.PersistenceError
	switch {
	case errors.Is(err, snapshot.ErrNoData):
		return FailureNoData
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case snapshot.IsTransient(err):
		return FailureTransient
	case errors.As(err, &pe):
		return FailurePersistence
	default:
		return FailureError
	}
}

// openPositions maps tickers to their ACTIVE BUY recommendation
func (s *Scanner) openPositions(ctx context.Context, log *logrus.Entry) map[string]*models.Recommendation {
	positions := make(map[string]*models.Recommendation)
	active, err := s.deps.Store.ListActiveRecommendations(ctx)
	if err != nil {
		log.WithError(err).Warn("⚠️ Failed to load open positions, scanning without them")
		return positions
	}
	for i := range active {
		rec := active[i]
		if !rec.IsBuy() {
			continue
		}
		if _, seen := positions[rec.Ticker]; !seen {
			positions[rec.Ticker] = &rec
		}
	}
	return positions
}

// persistActionable turns BUY/SELL results into recommendations
func (s *Scanner) persistActionable(ctx context.Context, result *ScanResult, cfg config.RuleConfig, positions map[string]*models.Recommendation, log *logrus.Entry) {
	for _, r := range result.Results {
		if !r.IsActionable() {
			continue
		}
		rec, err := s.persist(ctx, result.ScanID, r, cfg)
		if err != nil {
			log.WithError(err).WithField("ticker", r.Ticker).Error("❌ Failed to persist recommendation")
			result.Failures = append(result.Failures, TickerFailure{Ticker: r.Ticker, Reason: err.Error(), Kind: FailurePersistence})
			continue
		}
		if r.Recommendation == signals.Sell {
			s.exitPosition(ctx, positions[r.Ticker], r, log)
		}
		if rec == nil {
			log.WithField("ticker", r.Ticker).Debugf("⏭️ Active %s recommendation exists, not duplicated", r.Recommendation)
			continue
		}

		result.Created = append(result.Created, rec.ID)
		s.deps.Metrics.RecommendationsCreated.WithLabelValues(rec.State).Inc()
		log.WithFields(logrus.Fields{"ticker": rec.Ticker, "recommendation_id": rec.ID}).
			Infof("✅ Created %s recommendation @ %.2f (target %.2f, stop %.2f)", rec.State, rec.EntryPrice, rec.TargetPrice, rec.StopPrice)

		s.deps.Broker.Broadcast(realtime.EventRecommendationCreated, rec)
		title, body := recommendationMessage(rec, r)
		s.deps.Notifier.Notify(ctx, title, body, rec.Ticker, map[string]interface{}{
			"recommendation_id": rec.ID,
			"state":             rec.State,
			"scan_id":           rec.ScanID,
		})
	}
}

// exitPosition closes the open BUY a SELL signal was evaluated against
func (s *Scanner) exitPosition(ctx context.Context, pos *models.Recommendation, r signals.EvaluationResult, log *logrus.Entry) {
	if pos == nil || s.exits == nil {
		return
	}
	out, err := s.exits.CloseAt(ctx, *pos, r.Snapshot.Price, models.ExitSellSignal)
	if err != nil {
		if errors.Is(err, ErrAlreadyClosed) {
			return
		}
		log.WithError(err).WithField("recommendation_id", pos.ID).Warn("⚠️ Failed to close position on SELL signal")
		return
	}
	log.WithFields(logrus.Fields{"ticker": pos.Ticker, "recommendation_id": pos.ID}).
		Infof("🚪 Closed BUY on SELL signal @ %.2f (%+.2f%%)", out.ExitPrice, out.PnlPct)
}

func (s *Scanner) persist(ctx context.Context, scanID string, r signals.EvaluationResult, cfg config.RuleConfig) (*models.Recommendation, error) {
	exists, err := s.deps.Store.HasActiveRecommendation(ctx, r.Ticker, r.Recommendation)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, nil
	}

	companyID, err := s.deps.Universe.GetCompanyID(ctx, r.Ticker)
	if err != nil && !database.IsNotFound(err) {
		return nil, err
	}

	now := s.deps.Now()
	sessionDate := now
	if s.deps.Session != nil {
		sessionDate = s.deps.Session.SessionDate(now)
	}

	rec, err := NewRecommendation(r, cfg, scanID, companyID, now, sessionDate)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Store.CreateRecommendation(ctx, rec); err != nil {
		if errors.Is(err, database.ErrDuplicateActive) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// NewRecommendation builds the persisted form of an actionable result.
// Target and stop come from the exit profile of cfg.
func NewRecommendation(r signals.EvaluationResult, cfg config.RuleConfig, scanID string, companyID int64, now, sessionDate time.Time) (*models.Recommendation, error) {
	levels := CalculateExitLevels(r.Recommendation, r.Snapshot.Price, cfg.Exit)

	evidence, err := json.Marshal(struct {
		Buy        signals.SignalSet               `json:"buy"`
		Sell       signals.SignalSet               `json:"sell"`
		Rule       string                          `json:"rule_recommendation"`
		Classifier *signals.ClassifierContribution `json:"classifier,omitempty"`
		News       *signals.NewsResult             `json:"news,omitempty"`
	}{r.Buy, r.Sell, r.RuleRecommendation, r.Classifier, r.News})
	if err != nil {
		return nil, fmt.Errorf("marshal signals: %w", err)
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	rec := &models.Recommendation{
		Ticker:         r.Ticker,
		CompanyID:      companyID,
		State:          r.Recommendation,
		EntryPrice:     r.Snapshot.Price,
		TargetPrice:    levels.Target,
		StopPrice:      levels.Stop,
		BuyConfidence:  r.BuyConfidence,
		SellConfidence: r.SellConfidence,
		SignalsJSON:    string(evidence),
		ConfigJSON:     string(cfgJSON),
		ConfigName:     r.ConfigName,
		ConfigVersion:  r.ConfigVersion,
		ExitProfile:    levels.Profile,
		ScanID:         scanID,
		CreatedAt:      now,
		SessionDate:    sessionDate,
		Status:         models.StatusActive,
	}
	if r.News != nil {
		rec.NewsImpact = r.News.Modifier
	}
	return rec, nil
}

func recommendationMessage(rec *models.Recommendation, r signals.EvaluationResult) (string, string) {
	title := fmt.Sprintf("%s %s", rec.State, rec.Ticker)
	confidence := r.BuyConfidence
	if rec.State == signals.Sell {
		confidence = r.SellConfidence
	}
	var reasons []string
	set := r.Buy
	if rec.State == signals.Sell {
		set = r.Sell
	}
	for _, sig := range set.Signals {
		reasons = append(reasons, sig.Label)
	}
	body := fmt.Sprintf("Entry %s | Target %s | Stop %s\nConfidence %.2f (%s)",
		helpers.FormatRupiah(rec.EntryPrice), helpers.FormatRupiah(rec.TargetPrice), helpers.FormatRupiah(rec.StopPrice),
		confidence, strings.Join(reasons, ", "))
	return title, body
}

// RankResults orders results BUY first by buy confidence, then SELL by sell
// confidence, then the rest by their larger confidence. Ties keep input order.
func RankResults(results []signals.EvaluationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		ti, tj := rankTier(results[i]), rankTier(results[j])
		if ti != tj {
			return ti < tj
		}
		return rankScore(results[i]) > rankScore(results[j])
	})
}

func rankTier(r signals.EvaluationResult) int {
	switch r.Recommendation {
	case signals.Buy:
		return 0
	case signals.Sell:
		return 1
	default:
		return 2
	}
}

func rankScore(r signals.EvaluationResult) float64 {
	switch r.Recommendation {
	case signals.Buy:
		return r.BuyConfidence
	case signals.Sell:
		return r.SellConfidence
	default:
		return r.MaxConfidence()
	}
}

func normalizeTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (s *Scanner) storeLatest(ctx context.Context, result ScanResult, log *logrus.Entry) {
	s.mu.Lock()
	s.latest = &result
	s.mu.Unlock()

	if !s.deps.Cache.Enabled() {
		return
	}
	if err := s.deps.Cache.SaveLatestScan(ctx, result, latestScanTTL); err != nil {
		log.WithError(err).Warn("⚠️ Failed to cache latest scan")
	}
}

// Latest returns the most recent scan, preferring the shared Redis copy
func (s *Scanner) Latest(ctx context.Context) (ScanResult, bool) {
	var cached ScanResult
	if s.deps.Cache.LoadLatestScan(ctx, &cached) {
		return cached, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return ScanResult{}, false
	}
	return *s.latest, true
}

// TopOpportunities returns the first limit actionable results of the latest scan
func (s *Scanner) TopOpportunities(ctx context.Context, limit int) []signals.EvaluationResult {
	latest, ok := s.Latest(ctx)
	if !ok {
		return []signals.EvaluationResult{}
	}
	return latest.Actionable(limit)
}
