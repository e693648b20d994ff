package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intraday-advisor/database/memory"
	models "intraday-advisor/database/models_pkg"
	"intraday-advisor/signals"
)

func TestComputeDailyStats(t *testing.T) {
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	outcomes := []models.OutcomeResult{
		{PnlPct: 2.0, Success: true, DurationMinutes: 60},
		{PnlPct: -1.0, Success: false, DurationMinutes: 120},
		{PnlPct: 4.0, Success: true, DurationMinutes: 30},
	}

	stats := ComputeDailyStats(day, outcomes)

	assert.Equal(t, day, stats.Date)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Successful)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 66.67, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 3.0, stats.AvgProfit, 1e-9)
	assert.InDelta(t, -1.0, stats.AvgLoss, 1e-9)
	assert.InDelta(t, 4.0, stats.Best, 1e-9)
	assert.InDelta(t, -1.0, stats.Worst, 1e-9)
	assert.InDelta(t, 70.0, stats.AvgDurationMinutes, 1e-9)
}

func TestComputeDailyStatsEmpty(t *testing.T) {
	stats := ComputeDailyStats(time.Time{}, nil)
	assert.Zero(t, stats.Total)
	assert.Zero(t, stats.SuccessRate)
}

func TestRecomputeDayIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	snaps := newFakeSnapshots()
	clk := newClock(trackerBase.Add(time.Hour))
	deps := Deps{Store: store, Snapshots: snaps, Now: clk.Now}
	stats := NewStatsAggregator(deps)
	tracker := NewOutcomeTracker(deps, stats, time.Hour, 3, false)
	ctx := context.Background()

	snaps.setPrice("BBRI", 102)
	snaps.setPrice("TLKM", 98)
	newRecommendation(t, store, "BBRI", signals.Buy, 100, intradayExit(), trackerBase)
	newRecommendation(t, store, "TLKM", signals.Buy, 100, intradayExit(), trackerBase)

	_, err := tracker.Tick(ctx)
	require.NoError(t, err)

	first, err := stats.RecomputeDay(ctx, trackerBase)
	require.NoError(t, err)
	second, err := stats.RecomputeDay(ctx, trackerBase)
	require.NoError(t, err)

	assert.Equal(t, 2, first.Total)
	assert.Equal(t, first.Total, second.Total)
	assert.Equal(t, first.SuccessRate, second.SuccessRate)
	assert.InDelta(t, 50.0, second.SuccessRate, 1e-9)

	daily, err := stats.GetPerformanceStats(ctx, 1)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, 2, daily[0].Total)
}

func TestGetPerformanceStatsEmptyIsNotNil(t *testing.T) {
	stats := NewStatsAggregator(Deps{Store: memory.NewStore()})
	daily, err := stats.GetPerformanceStats(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, daily)
	assert.Empty(t, daily)
}

func TestAnalyzeCheckpoints(t *testing.T) {
	cp := func(rec int64, hour int, pnl float64, optimal bool) models.TimeCheckpointEvaluation {
		return models.TimeCheckpointEvaluation{RecommendationID: rec, Hour: hour, PnlPct: pnl, IsOptimalExit: optimal}
	}
	checkpoints := []models.TimeCheckpointEvaluation{
		cp(1, 1, 1.0, false), cp(1, 2, 2.0, true),
		cp(2, 1, -1.0, false), cp(2, 2, 0.5, false), cp(2, 5, 3.0, true),
		cp(3, 5, 1.0, false),
	}

	analysis := AnalyzeCheckpoints(checkpoints)

	assert.Equal(t, 3, analysis.Samples)
	require.Len(t, analysis.PerHour, models.MaxCheckpointHour)

	h1 := analysis.PerHour[0]
	assert.Equal(t, 1, h1.Hour)
	assert.Equal(t, 2, h1.Samples)
	assert.InDelta(t, 0.0, h1.AvgPnlPct, 1e-9)
	assert.InDelta(t, 50.0, h1.WinRate, 1e-9)

	h5 := analysis.PerHour[4]
	assert.Equal(t, 2, h5.Samples)
	assert.InDelta(t, 2.0, h5.AvgPnlPct, 1e-9)
	assert.Equal(t, 1, h5.OptimalCount)

	// hours 2 and 5 are each optimal once; 5 wins on average P&L
	assert.Equal(t, 5, analysis.RecommendedHour)

	assert.Zero(t, analysis.PerHour[7].Samples)
	assert.Zero(t, AnalyzeCheckpoints(nil).RecommendedHour)
}

func TestRankConfigOutcomes(t *testing.T) {
	rows := []models.ConfigOutcome{
		{ConfigName: "aggressive", ConfigVersion: 1, Success: true, PnlPct: 2},
		{ConfigName: "aggressive", ConfigVersion: 1, Success: false, PnlPct: -1},
		{ConfigName: "default", ConfigVersion: 1, Success: true, PnlPct: 1},
		{ConfigName: "default", ConfigVersion: 2, Success: true, PnlPct: 1},
		{ConfigName: "default", ConfigVersion: 2, Success: true, PnlPct: 3},
		{ConfigName: "careful", ConfigVersion: 1, Success: false, PnlPct: -0.5},
	}

	rankings := RankConfigOutcomes(rows)

	require.Len(t, rankings, 4)
	got := make([]string, 0, len(rankings))
	for _, r := range rankings {
		got = append(got, fmt.Sprintf("%s@%d", r.ConfigName, r.ConfigVersion))
	}
	assert.Equal(t, []string{"default@2", "default@1", "aggressive@1", "careful@1"}, got)

	assert.InDelta(t, 100.0, rankings[0].SuccessRate, 1e-9)
	assert.Equal(t, 2, rankings[0].Total)
	assert.InDelta(t, 2.0, rankings[0].AvgPnlPct, 1e-9)
	assert.InDelta(t, 50.0, rankings[2].SuccessRate, 1e-9)
	assert.InDelta(t, 0.5, rankings[2].AvgPnlPct, 1e-9)
}

func TestStatsRefresherStop(t *testing.T) {
	store := newStallingStore()
	deps := Deps{Store: store, Now: newClock(trackerBase).Now}
	refresher := NewStatsRefresher(NewStatsAggregator(deps), time.Hour)

	go refresher.Start()
	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("refresher never started a refresh")
	}

	assertStopWaits(t, refresher.Stop, store.release)
	assert.NotPanics(t, refresher.Stop)
}
