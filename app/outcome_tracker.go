package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/multierr"

	"intraday-advisor/database"
	models "intraday-advisor/database/models_pkg"
	"intraday-advisor/observability"
	"intraday-advisor/realtime"
	"intraday-advisor/snapshot"
)

// Tracker defaults
const (
	DefaultTrackerInterval = 5 * time.Minute
	DefaultMaxAttempts     = 3
)

// TickSummary counts what one tracker pass did
type TickSummary struct {
	Active      int `json:"active"`
	Checkpoints int `json:"checkpoints"`
	Closed      int `json:"closed"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
}

type checkpointKey struct {
	recommendationID int64
	hour             int
}

// OutcomeTracker re-prices ACTIVE recommendations at hourly checkpoints and
// closes them on target, stop or expiry
type OutcomeTracker struct {
	deps              Deps
	stats             *StatsAggregator
	interval          time.Duration
	maxAttempts       int
	closeAtSessionEnd bool

	// tickMu is held for the whole of a Tick
	tickMu sync.Mutex

	mu        sync.Mutex
	attempts  map[checkpointKey]int
	abandoned map[checkpointKey]bool

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewOutcomeTracker creates a new outcome tracker
func NewOutcomeTracker(deps Deps, stats *StatsAggregator, interval time.Duration, maxAttempts int, closeAtSessionEnd bool) *OutcomeTracker {
	deps = deps.withDefaults()
	if interval <= 0 {
		interval = DefaultTrackerInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &OutcomeTracker{
		deps:              deps,
		stats:             stats,
		interval:          interval,
		maxAttempts:       maxAttempts,
		closeAtSessionEnd: closeAtSessionEnd,
		attempts:          make(map[checkpointKey]int),
		abandoned:         make(map[checkpointKey]bool),
		ctx:               ctx,
		cancel:            cancel,
		done:              make(chan struct{}),
	}
}

// Start runs one tick immediately and then one every interval until Stop
func (t *OutcomeTracker) Start() {
	t.deps.Log.Info("📊 Outcome Tracker started")

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.runTick()

	for {
		select {
		case <-ticker.C:
			t.runTick()
		case <-t.done:
			t.deps.Log.Info("📊 Outcome Tracker stopped")
			return
		}
	}
}

// Stop cancels an in-flight tick and waits for it to return. Safe to call
// more than once.
func (t *OutcomeTracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.done)
		t.cancel()
	})
	t.tickMu.Lock()
	t.tickMu.Unlock()
}

func (t *OutcomeTracker) runTick() {
	select {
	case <-t.done:
		return
	default:
	}
	if _, err := t.Tick(t.ctx); err != nil && !errors.Is(err, ErrTickInProgress) {
		t.deps.Log.WithError(err).Warn("⚠️ Outcome tracking finished with errors")
	}
}

// Tick processes every ACTIVE recommendation once. Overlapping calls return
// ErrTickInProgress immediately; they are not queued.
func (t *OutcomeTracker) Tick(ctx context.Context) (TickSummary, error) {
	var summary TickSummary
	if !t.tickMu.TryLock() {
		t.deps.Metrics.TrackerTicks.WithLabelValues("overlap").Inc()
		t.deps.Log.Warn("⏭️ Outcome tracker tick skipped: previous tick still running")
		return summary, ErrTickInProgress
	}
	defer t.tickMu.Unlock()

	ctx, span := observability.Tracer().Start(ctx, "tracker.Tick")
	defer span.End()

	active, err := t.deps.Store.ListActiveRecommendations(ctx)
	if err != nil {
		t.deps.Metrics.TrackerTicks.WithLabelValues("failed").Inc()
		t.deps.Log.WithError(err).Error("❌ Error getting active recommendations")
		span.SetStatus(codes.Error, err.Error())
		return summary, err
	}

	summary.Active = len(active)
	t.deps.Metrics.ActiveRecommendations.Set(float64(len(active)))
	if len(active) == 0 {
		t.deps.Metrics.TrackerTicks.WithLabelValues("idle").Inc()
		t.deps.Log.Debug("📊 No active recommendations to track")
		return summary, nil
	}

	t.deps.Log.Infof("📊 Tracking %d active recommendations...", len(active))

	var errs error
	closedDays := make(map[time.Time]bool)
	for _, rec := range active {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}

		res, err := t.track(ctx, rec)
		if err != nil {
			summary.Failed++
			errs = multierr.Append(errs, fmt.Errorf("recommendation %d: %w", rec.ID, err))
			t.deps.Log.WithFields(logrus.Fields{"recommendation_id": rec.ID, "ticker": rec.Ticker}).
				WithError(err).Error("❌ Error tracking recommendation")
			continue
		}
		if res.skipped {
			summary.Skipped++
		}
		summary.Checkpoints += res.checkpoints
		if res.closed {
			summary.Closed++
			closedDays[t.stats.dayOf(res.exitTime)] = true
		}
	}

	for day := range closedDays {
		if _, err := t.stats.RecomputeDay(ctx, day); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	span.SetAttributes(
		attribute.Int("tracker.active", summary.Active),
		attribute.Int("tracker.checkpoints", summary.Checkpoints),
		attribute.Int("tracker.closed", summary.Closed),
	)
	if errs != nil {
		t.deps.Metrics.TrackerTicks.WithLabelValues("partial").Inc()
		span.SetStatus(codes.Error, errs.Error())
	} else {
		t.deps.Metrics.TrackerTicks.WithLabelValues("ok").Inc()
	}

	if summary.Checkpoints > 0 || summary.Closed > 0 || summary.Failed > 0 {
		t.deps.Log.Infof("✅ Outcome tracking completed: %d checkpoints, %d closed, %d skipped, %d failed",
			summary.Checkpoints, summary.Closed, summary.Skipped, summary.Failed)
	}
	return summary, errs
}

type trackResult struct {
	checkpoints int
	closed      bool
	skipped     bool
	exitTime    time.Time
}

// track builds and applies one TrackingUpdate for rec
func (t *OutcomeTracker) track(ctx context.Context, rec models.Recommendation) (trackResult, error) {
	now := t.deps.Now()
	log := t.deps.Log.WithFields(logrus.Fields{"recommendation_id": rec.ID, "ticker": rec.Ticker})

	existing, err := t.deps.Store.GetCheckpoints(ctx, rec.ID)
	if err != nil {
		return trackResult{}, err
	}
	due := t.dueHours(rec, existing, now)

	snap, err := t.deps.Snapshots.GetSnapshot(ctx, rec.Ticker)
	if err != nil {
		if expired(rec, now) {
			log.WithError(err).Warn("⚠️ No price for expired recommendation, closing at last known price")
			return t.closeStale(ctx, rec, existing, now)
		}
		if errors.Is(err, snapshot.ErrNoData) {
			log.Debug("⏭️ No data for tracked ticker, skipping this tick")
			return trackResult{skipped: true}, nil
		}
		t.recordFailedAttempt(rec.ID, due, log)
		log.WithError(err).Warn("⚠️ Snapshot fetch failed, will retry next tick")
		return trackResult{skipped: true}, nil
	}

	update := models.TrackingUpdate{RecommendationID: rec.ID}
	for _, h := range due {
		pct, abs := DirectionalPnL(rec.State, rec.EntryPrice, snap.Price)
		update.Checkpoints = append(update.Checkpoints, models.TimeCheckpointEvaluation{
			RecommendationID: rec.ID,
			Hour:             h,
			Price:            snap.Price,
			PnlPct:           pct,
			PnlAbs:           abs,
			Volume:           snap.Volume,
			RSI:              snap.RSI,
			CreatedAt:        now,
		})
	}

	all := append(append([]models.TimeCheckpointEvaluation(nil), existing...), update.Checkpoints...)
	if hour, ok := SelectOptimalExit(all); ok && (len(update.Checkpoints) > 0 || !hasOptimalFlag(existing)) {
		update.OptimalHour = hour
	}

	reason := t.closeReason(rec, snap.Price, now)
	update.Outcome = buildOutcome(rec, snap.Price, now, reason)
	if reason != "" {
		update.Close = true
		update.ClosedAt = now
	}

	closed, err := t.deps.Store.ApplyTrackingUpdate(ctx, update)
	if err != nil {
		return trackResult{}, err
	}
	t.clearAttempts(rec.ID, due)
	t.deps.Metrics.CheckpointsWritten.Add(float64(len(update.Checkpoints)))

	res := trackResult{checkpoints: len(update.Checkpoints)}
	if closed {
		res.closed = true
		res.exitTime = now
		t.forget(rec.ID)
		t.announceClose(ctx, rec, update.Outcome)
	}
	return res, nil
}

// closeStale closes an expired recommendation that could not be priced. The
// exit price is the latest checkpoint price, or the entry price when no
// checkpoint was recorded.
func (t *OutcomeTracker) closeStale(ctx context.Context, rec models.Recommendation, existing []models.TimeCheckpointEvaluation, now time.Time) (trackResult, error) {
	price, last := rec.EntryPrice, 0
	for _, cp := range existing {
		if cp.Hour > last {
			price, last = cp.Price, cp.Hour
		}
	}

	out := buildOutcome(rec, price, now, models.ExitSessionEnd8H)
	out.PriceStale = true
	update := models.TrackingUpdate{RecommendationID: rec.ID, Outcome: out, Close: true, ClosedAt: now}
	if hour, ok := SelectOptimalExit(existing); ok && !hasOptimalFlag(existing) {
		update.OptimalHour = hour
	}

	closed, err := t.deps.Store.ApplyTrackingUpdate(ctx, update)
	if err != nil {
		return trackResult{}, err
	}
	if !closed {
		return trackResult{}, nil
	}
	t.forget(rec.ID)
	t.announceClose(ctx, rec, out)
	return trackResult{closed: true, exitTime: now}, nil
}

func expired(rec models.Recommendation, now time.Time) bool {
	return now.Sub(rec.CreatedAt) > time.Duration(models.MaxCheckpointHour)*time.Hour
}

// dueHours lists the elapsed checkpoint hours not yet recorded or abandoned
func (t *OutcomeTracker) dueHours(rec models.Recommendation, existing []models.TimeCheckpointEvaluation, now time.Time) []int {
	elapsed := int(now.Sub(rec.CreatedAt) / time.Hour)
	if elapsed > models.MaxCheckpointHour {
		elapsed = models.MaxCheckpointHour
	}

	recorded := make(map[int]bool, len(existing))
	for _, cp := range existing {
		recorded[cp.Hour] = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	var due []int
	for h := 1; h <= elapsed; h++ {
		if recorded[h] || t.abandoned[checkpointKey{rec.ID, h}] {
			continue
		}
		due = append(due, h)
	}
	return due
}

// closeReason returns the exit reason that applies at price, or "" to stay open
func (t *OutcomeTracker) closeReason(rec models.Recommendation, price float64, now time.Time) string {
	if reason, hit := ExitCrossed(rec, price); hit {
		return reason
	}
	if expired(rec, now) {
		return models.ExitSessionEnd8H
	}
	if t.closeAtSessionEnd && t.deps.Session != nil && !now.Before(t.deps.Session.CloseTime(rec.CreatedAt)) {
		return models.ExitSessionEnd
	}
	return ""
}

func buildOutcome(rec models.Recommendation, price float64, now time.Time, reason string) *models.OutcomeResult {
	pct, abs := DirectionalPnL(rec.State, rec.EntryPrice, price)
	out := &models.OutcomeResult{
		RecommendationID: rec.ID,
		ExitPrice:        price,
		DurationMinutes:  int(now.Sub(rec.CreatedAt).Minutes()),
		PnlPct:           pct,
		PnlAbs:           abs,
		Status:           models.OutcomeOpen,
	}
	if reason == "" {
		return out
	}

	exit := now
	out.Status = models.OutcomeClosed
	out.ExitReason = reason
	out.ExitTime = &exit
	switch reason {
	case models.ExitTargetReached:
		out.Success = true
	case models.ExitStopLoss:
		out.Success = false
	default:
		out.Success = pct > 0
	}
	return out
}

// recordFailedAttempt bumps the attempt counter of every due hour and
// abandons hours that reached the limit
func (t *OutcomeTracker) recordFailedAttempt(recID int64, due []int, log *logrus.Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range due {
		key := checkpointKey{recID, h}
		t.attempts[key]++
		if t.attempts[key] >= t.maxAttempts {
			delete(t.attempts, key)
			t.abandoned[key] = true
			log.WithField("hour", h).Warnf("⚠️ Abandoning checkpoint after %d failed attempts", t.maxAttempts)
		}
	}
}

func (t *OutcomeTracker) clearAttempts(recID int64, due []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range due {
		delete(t.attempts, checkpointKey{recID, h})
	}
}

func (t *OutcomeTracker) forget(recID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for h := 1; h <= models.MaxCheckpointHour; h++ {
		key := checkpointKey{recID, h}
		delete(t.attempts, key)
		delete(t.abandoned, key)
	}
}

// Attempts returns the failed attempt count of one checkpoint hour and
// whether it has been abandoned
func (t *OutcomeTracker) Attempts(recID int64, hour int) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := checkpointKey{recID, hour}
	return t.attempts[key], t.abandoned[key]
}

func (t *OutcomeTracker) announceClose(ctx context.Context, rec models.Recommendation, out *models.OutcomeResult) {
	t.deps.Metrics.OutcomesClosed.WithLabelValues(out.ExitReason).Inc()
	t.deps.Log.WithFields(logrus.Fields{"recommendation_id": rec.ID, "ticker": rec.Ticker}).
		Infof("✅ Closed %s recommendation: %s with %.2f%%", rec.State, out.ExitReason, out.PnlPct)

	t.deps.Broker.Broadcast(realtime.EventOutcomeClosed, out)

	result := "❌ LOSS"
	if out.Success {
		result = "✅ WIN"
	}
	title := fmt.Sprintf("%s %s closed: %s", rec.State, rec.Ticker, out.ExitReason)
	body := fmt.Sprintf("%s %+.2f%% after %d minutes (entry %.2f, exit %.2f)",
		result, out.PnlPct, out.DurationMinutes, rec.EntryPrice, out.ExitPrice)
	t.deps.Notifier.Notify(ctx, title, body, rec.Ticker, map[string]interface{}{
		"recommendation_id": rec.ID,
		"exit_reason":       out.ExitReason,
		"pnl_pct":           out.PnlPct,
	})
}

// CloseManual closes an ACTIVE recommendation at the current price with
// reason MANUAL
func (t *OutcomeTracker) CloseManual(ctx context.Context, id int64) (*models.OutcomeResult, error) {
	rec, err := t.deps.Store.GetRecommendation(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, database.NewNotFoundErrorWithID("recommendation", id)
	}
	if rec.Status != models.StatusActive {
		return nil, ErrAlreadyClosed
	}

	snap, err := t.deps.Snapshots.GetSnapshot(ctx, rec.Ticker)
	if err != nil {
		return nil, fmt.Errorf("price %s for manual close: %w", rec.Ticker, err)
	}
	return t.CloseAt(ctx, *rec, snap.Price, models.ExitManual)
}

// CloseAt closes an ACTIVE recommendation at price with reason and refreshes
// the statistics of the closing day. It returns ErrAlreadyClosed when another
// writer closed it first.
func (t *OutcomeTracker) CloseAt(ctx context.Context, rec models.Recommendation, price float64, reason string) (*models.OutcomeResult, error) {
	now := t.deps.Now()
	out := buildOutcome(rec, price, now, reason)
	closed, err := t.deps.Store.ApplyTrackingUpdate(ctx, models.TrackingUpdate{
		RecommendationID: rec.ID,
		Outcome:          out,
		Close:            true,
		ClosedAt:         now,
	})
	if err != nil {
		return nil, err
	}
	if !closed {
		return nil, ErrAlreadyClosed
	}

	t.forget(rec.ID)
	t.announceClose(ctx, rec, out)
	if _, err := t.stats.RecomputeDay(ctx, t.stats.dayOf(now)); err != nil {
		t.deps.Log.WithError(err).WithField("exit_reason", reason).Warn("⚠️ Failed to refresh daily stats after close")
	}
	return out, nil
}

// SelectOptimalExit returns the checkpoint hour with the highest P&L, ties
// going to the earliest hour. ok is false until hours 1..8 are all present.
func SelectOptimalExit(checkpoints []models.TimeCheckpointEvaluation) (hour int, ok bool) {
	byHour := make(map[int]models.TimeCheckpointEvaluation, len(checkpoints))
	for _, cp := range checkpoints {
		if cp.Hour >= 1 && cp.Hour <= models.MaxCheckpointHour {
			if _, dup := byHour[cp.Hour]; !dup {
				byHour[cp.Hour] = cp
			}
		}
	}
	if len(byHour) != models.MaxCheckpointHour {
		return 0, false
	}

	best := byHour[1]
	for h := 2; h <= models.MaxCheckpointHour; h++ {
		if byHour[h].PnlPct > best.PnlPct {
			best = byHour[h]
		}
	}
	return best.Hour, true
}

func hasOptimalFlag(checkpoints []models.TimeCheckpointEvaluation) bool {
	for _, cp := range checkpoints {
		if cp.IsOptimalExit {
			return true
		}
	}
	return false
}
