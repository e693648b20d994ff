package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	models "intraday-advisor/database/models_pkg"
	"intraday-advisor/market"
)

// DefaultStatsDays is the look-back used when a caller passes daysBack <= 0
const DefaultStatsDays = 7

// HourStat summarises one checkpoint hour across recommendations
type HourStat struct {
	Hour         int     `json:"hour"`
	Samples      int     `json:"samples"`
	AvgPnlPct    float64 `json:"avg_pnl_pct"`
	WinRate      float64 `json:"win_rate"`
	OptimalCount int     `json:"optimal_count"`
}

// OptimalExitAnalysis reports which holding hour has historically been the best exit
type OptimalExitAnalysis struct {
	PerHour         []HourStat `json:"per_hour"`
	RecommendedHour int        `json:"recommended_hour"`
	Samples         int        `json:"samples"`
}

// ConfigRanking is the realized performance of one named, versioned rule set
type ConfigRanking struct {
	ConfigName    string  `json:"config_name"`
	ConfigVersion int     `json:"config_version"`
	Total         int     `json:"total"`
	Successful    int     `json:"successful"`
	SuccessRate   float64 `json:"success_rate"`
	AvgPnlPct     float64 `json:"avg_pnl_pct"`
}

// StatsAggregator derives statistics from closed outcomes and checkpoints.
// Daily rows are always recomputed from source rows, never incremented.
type StatsAggregator struct {
	store   Store
	session *market.Session
	log     *logrus.Logger
	now     func() time.Time
}

// NewStatsAggregator creates a new statistics aggregator
func NewStatsAggregator(deps Deps) *StatsAggregator {
	deps = deps.withDefaults()
	return &StatsAggregator{
		store:   deps.Store,
		session: deps.Session,
		log:     deps.Log,
		now:     deps.Now,
	}
}

// dayOf returns midnight of t's trading date in the market timezone
func (a *StatsAggregator) dayOf(t time.Time) time.Time {
	if a.session != nil {
		return a.session.SessionDate(t)
	}
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// RecomputeDay rebuilds the DailyStats row of day from every CLOSED outcome
// whose exit time falls on that date
func (a *StatsAggregator) RecomputeDay(ctx context.Context, day time.Time) (*models.DailyStats, error) {
	from := a.dayOf(day)
	to := from.AddDate(0, 0, 1)

	outcomes, err := a.store.ListClosedOutcomes(ctx, from, to)
	if err != nil {
		return nil, err
	}

	stats := ComputeDailyStats(from, outcomes)
	stats.UpdatedAt = a.now()
	if err := a.store.UpsertDailyStats(ctx, &stats); err != nil {
		return nil, err
	}

	a.log.WithField("date", from.Format("2006-01-02")).
		Debugf("📊 Daily stats recomputed: %d closed, %.2f%% success", stats.Total, stats.SuccessRate)
	return &stats, nil
}

// ComputeDailyStats summarises outcomes into one DailyStats row for date.
// AvgProfit averages successful outcomes and AvgLoss the rest.
func ComputeDailyStats(date time.Time, outcomes []models.OutcomeResult) models.DailyStats {
	stats := models.DailyStats{Date: date}
	if len(outcomes) == 0 {
		return stats
	}

	var profitSum, lossSum, durationSum decimal.Decimal
	best, worst := outcomes[0].PnlPct, outcomes[0].PnlPct
	for _, o := range outcomes {
		pnl := decimal.NewFromFloat(o.PnlPct)
		if o.Success {
			stats.Successful++
			profitSum = profitSum.Add(pnl)
		} else {
			stats.Failed++
			lossSum = lossSum.Add(pnl)
		}
		durationSum = durationSum.Add(decimal.NewFromInt(int64(o.DurationMinutes)))
		if o.PnlPct > best {
			best = o.PnlPct
		}
		if o.PnlPct < worst {
			worst = o.PnlPct
		}
	}

	stats.Total = len(outcomes)
	stats.SuccessRate = ratio(stats.Successful, stats.Total)
	stats.AvgProfit = average(profitSum, stats.Successful, 4)
	stats.AvgLoss = average(lossSum, stats.Failed, 4)
	stats.AvgDurationMinutes = average(durationSum, stats.Total, 2)
	stats.Best = best
	stats.Worst = worst
	return stats
}

// GetPerformanceStats returns the daily rows of the last daysBack trading dates, newest first
func (a *StatsAggregator) GetPerformanceStats(ctx context.Context, daysBack int) ([]models.DailyStats, error) {
	stats, err := a.store.GetDailyStats(ctx, a.since(daysBack))
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []models.DailyStats{}
	}
	return stats, nil
}

// GetOptimalExitAnalysis aggregates checkpoints of recommendations created in
// the last daysBack days. RecommendedHour is the hour flagged optimal most
// often; ties go to the higher average P&L, then to the earlier hour.
func (a *StatsAggregator) GetOptimalExitAnalysis(ctx context.Context, daysBack int) (OptimalExitAnalysis, error) {
	checkpoints, err := a.store.ListCheckpointsSince(ctx, a.since(daysBack))
	if err != nil {
		return OptimalExitAnalysis{}, err
	}
	return AnalyzeCheckpoints(checkpoints), nil
}

// AnalyzeCheckpoints builds the per-hour analysis from raw checkpoints
func AnalyzeCheckpoints(checkpoints []models.TimeCheckpointEvaluation) OptimalExitAnalysis {
	type acc struct {
		samples, wins, optimal int
		pnl                    decimal.Decimal
	}
	hours := make([]acc, models.MaxCheckpointHour+1)
	recs := make(map[int64]bool)
	for _, cp := range checkpoints {
		if cp.Hour < 1 || cp.Hour > models.MaxCheckpointHour {
			continue
		}
		recs[cp.RecommendationID] = true
		h := &hours[cp.Hour]
		h.samples++
		h.pnl = h.pnl.Add(decimal.NewFromFloat(cp.PnlPct))
		if cp.PnlPct > 0 {
			h.wins++
		}
		if cp.IsOptimalExit {
			h.optimal++
		}
	}

	analysis := OptimalExitAnalysis{
		PerHour: make([]HourStat, 0, models.MaxCheckpointHour),
		Samples: len(recs),
	}
	var best *HourStat
	for hour := 1; hour <= models.MaxCheckpointHour; hour++ {
		h := hours[hour]
		analysis.PerHour = append(analysis.PerHour, HourStat{
			Hour:         hour,
			Samples:      h.samples,
			AvgPnlPct:    average(h.pnl, h.samples, 4),
			WinRate:      ratio(h.wins, h.samples),
			OptimalCount: h.optimal,
		})
	}
	for i := range analysis.PerHour {
		s := &analysis.PerHour[i]
		if s.OptimalCount == 0 {
			continue
		}
		if best == nil || s.OptimalCount > best.OptimalCount ||
			(s.OptimalCount == best.OptimalCount && s.AvgPnlPct > best.AvgPnlPct) {
			best = s
		}
	}
	if best != nil {
		analysis.RecommendedHour = best.Hour
	}
	return analysis
}

// RankConfigurations orders rule sets by realized success rate over the last
// daysBack days. Ties go to more samples, then to higher average P&L.
func (a *StatsAggregator) RankConfigurations(ctx context.Context, daysBack int) ([]ConfigRanking, error) {
	rows, err := a.store.ListConfigOutcomes(ctx, a.since(daysBack))
	if err != nil {
		return nil, err
	}
	return RankConfigOutcomes(rows), nil
}

// RankConfigOutcomes groups closed outcomes per configuration and ranks them
func RankConfigOutcomes(rows []models.ConfigOutcome) []ConfigRanking {
	type key struct {
		name    string
		version int
	}
	type acc struct {
		total, successful int
		pnl               decimal.Decimal
	}
	groups := make(map[key]*acc)
	for _, r := range rows {
		k := key{r.ConfigName, r.ConfigVersion}
		g, ok := groups[k]
		if !ok {
			g = &acc{}
			groups[k] = g
		}
		g.total++
		if r.Success {
			g.successful++
		}
		g.pnl = g.pnl.Add(decimal.NewFromFloat(r.PnlPct))
	}

	rankings := make([]ConfigRanking, 0, len(groups))
	for k, g := range groups {
		rankings = append(rankings, ConfigRanking{
			ConfigName:    k.name,
			ConfigVersion: k.version,
			Total:         g.total,
			Successful:    g.successful,
			SuccessRate:   ratio(g.successful, g.total),
			AvgPnlPct:     average(g.pnl, g.total, 4),
		})
	}

	sort.Slice(rankings, func(i, j int) bool {
		a, b := rankings[i], rankings[j]
		switch {
		case a.SuccessRate != b.SuccessRate:
			return a.SuccessRate > b.SuccessRate
		case a.Total != b.Total:
			return a.Total > b.Total
		case a.AvgPnlPct != b.AvgPnlPct:
			return a.AvgPnlPct > b.AvgPnlPct
		case a.ConfigName != b.ConfigName:
			return a.ConfigName < b.ConfigName
		default:
			return a.ConfigVersion < b.ConfigVersion
		}
	})
	return rankings
}

// since returns the first trading date covered by a daysBack window
func (a *StatsAggregator) since(daysBack int) time.Time {
	if daysBack <= 0 {
		daysBack = DefaultStatsDays
	}
	return a.dayOf(a.now()).AddDate(0, 0, -(daysBack - 1))
}

// ratio returns part/total as a percentage rounded to two places
func ratio(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(part)).
		Div(decimal.NewFromInt(int64(total))).
		Mul(decHundred).
		Round(2).
		InexactFloat64()
}

func average(sum decimal.Decimal, n int, places int32) float64 {
	if n == 0 {
		return 0
	}
	return sum.Div(decimal.NewFromInt(int64(n))).Round(places).InexactFloat64()
}

// StatsRefresher periodically recomputes today's and yesterday's daily stats
type StatsRefresher struct {
	stats    *StatsAggregator
	interval time.Duration
	log      *logrus.Logger

	// refreshMu is held for the whole of a Refresh
	refreshMu sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// NewStatsRefresher creates a new stats refresher
func NewStatsRefresher(stats *StatsAggregator, interval time.Duration) *StatsRefresher {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &StatsRefresher{
		stats:    stats,
		interval: interval,
		log:      stats.log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins the refresh loop
func (r *StatsRefresher) Start() {
	r.log.Info("🔄 Stats Refresher started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Initial run
	r.Refresh(r.ctx)

	for {
		select {
		case <-ticker.C:
			r.Refresh(r.ctx)
		case <-r.done:
			r.log.Info("🔄 Stats Refresher stopped")
			return
		}
	}
}

// Stop stops the refresh loop and waits for an in-flight refresh. Safe to
// call more than once.
func (r *StatsRefresher) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.cancel()
	})
	r.refreshMu.Lock()
	r.refreshMu.Unlock()
}

// Refresh recomputes today and yesterday. Late closes near midnight can land
// on the previous trading date, so both are rebuilt.
func (r *StatsRefresher) Refresh(ctx context.Context) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	today := r.stats.dayOf(r.stats.now())
	for _, day := range []time.Time{today.AddDate(0, 0, -1), today} {
		if _, err := r.stats.RecomputeDay(ctx, day); err != nil {
			r.log.WithError(err).Warnf("⚠️ Failed to refresh daily stats for %s", day.Format("2006-01-02"))
			return
		}
	}
	r.log.Debug("✅ Daily stats refreshed")
}
