package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intraday-advisor/database"
	models "intraday-advisor/database/models_pkg"
)

func newActive(t *testing.T, s *Store, ticker, state string) *models.Recommendation {
	t.Helper()
	rec := &models.Recommendation{
		Ticker:      ticker,
		State:       state,
		EntryPrice:  100,
		TargetPrice: 101.5,
		StopPrice:   98.5,
		CreatedAt:   time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC),
	}
	require.NoError(t, s.CreateRecommendation(context.Background(), rec))
	return rec
}

func TestStore_CheckpointInsertIsIdempotent(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	rec := newActive(t, s, "BBRI", "BUY")

	u := models.TrackingUpdate{
		RecommendationID: rec.ID,
		Checkpoints:      []models.TimeCheckpointEvaluation{{Hour: 1, Price: 100.5, PnlPct: 0.5}},
	}
	_, err := s.ApplyTrackingUpdate(ctx, u)
	require.NoError(t, err)

	u.Checkpoints[0].Price = 200
	_, err = s.ApplyTrackingUpdate(ctx, u)
	require.NoError(t, err)

	cps, err := s.GetCheckpoints(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, cps, 1)
	assert.Equal(t, 100.5, cps[0].Price)
}

func TestStore_CloseHappensOnce(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	rec := newActive(t, s, "TLKM", "BUY")
	exit := time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC)

	closeUpdate := models.TrackingUpdate{
		RecommendationID: rec.ID,
		Outcome:          &models.OutcomeResult{Status: models.OutcomeClosed, ExitReason: models.ExitTargetReached, ExitTime: &exit, PnlPct: 1.6, Success: true},
		Close:            true,
		ClosedAt:         exit,
	}

	var wg sync.WaitGroup
	results := make(chan bool, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			closed, err := s.ApplyTrackingUpdate(ctx, closeUpdate)
			assert.NoError(t, err)
			results <- closed
		}()
	}
	wg.Wait()
	close(results)

	transitions := 0
	for closed := range results {
		if closed {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions)

	// a later OPEN upsert must not reopen the outcome
	_, err := s.ApplyTrackingUpdate(ctx, models.TrackingUpdate{
		RecommendationID: rec.ID,
		Outcome:          &models.OutcomeResult{Status: models.OutcomeOpen},
	})
	require.NoError(t, err)

	out, err := s.GetOutcome(ctx, rec.ID)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, models.OutcomeClosed, out.Status)

	active, err := s.ListActiveRecommendations(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestStore_OptimalExitFlagIsExclusive(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	rec := newActive(t, s, "ASII", "BUY")

	var cps []models.TimeCheckpointEvaluation
	for h := 1; h <= 8; h++ {
		cps = append(cps, models.TimeCheckpointEvaluation{Hour: h, PnlPct: float64(h)})
	}
	_, err := s.ApplyTrackingUpdate(ctx, models.TrackingUpdate{RecommendationID: rec.ID, Checkpoints: cps, OptimalHour: 8})
	require.NoError(t, err)
	_, err = s.ApplyTrackingUpdate(ctx, models.TrackingUpdate{RecommendationID: rec.ID, OptimalHour: 3})
	require.NoError(t, err)

	got, err := s.GetCheckpoints(ctx, rec.ID)
	require.NoError(t, err)
	flagged := 0
	for _, cp := range got {
		if cp.IsOptimalExit {
			flagged++
			assert.Equal(t, 3, cp.Hour)
		}
	}
	assert.Equal(t, 1, flagged)
}

func TestStore_FailedApplyWritesNothing(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	rec := newActive(t, s, "UNVR", "BUY")
	s.FailApply(rec.ID, errors.New("connection reset"))

	_, err := s.ApplyTrackingUpdate(ctx, models.TrackingUpdate{
		RecommendationID: rec.ID,
		Checkpoints:      []models.TimeCheckpointEvaluation{{Hour: 1}},
		Close:            true,
	})
	var pe *database.PersistenceError
	require.ErrorAs(t, err, &pe)

	cps, _ := s.GetCheckpoints(ctx, rec.ID)
	assert.Empty(t, cps)
	got, _ := s.GetRecommendation(ctx, rec.ID)
	assert.Equal(t, models.StatusActive, got.Status)
}

func TestStore_HasActiveRecommendation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	newActive(t, s, "BBCA", "BUY")

	has, err := s.HasActiveRecommendation(ctx, "BBCA", "BUY")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.HasActiveRecommendation(ctx, "BBCA", "SELL")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestStore_ConcurrentCreateKeepsOneActive(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	const writers = 10
	errs := make([]error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = s.CreateRecommendation(ctx, &models.Recommendation{Ticker: "BBRI", State: "BUY", EntryPrice: 100})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.ErrorIs(t, err, database.ErrDuplicateActive)
	}
	assert.Equal(t, 1, created)

	active, err := s.ListActiveRecommendations(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	// the opposite state is a different slot
	newActive(t, s, "BBRI", "SELL")

	// closing frees the slot
	_, err = s.ApplyTrackingUpdate(ctx, models.TrackingUpdate{RecommendationID: active[0].ID, Close: true, ClosedAt: time.Now()})
	require.NoError(t, err)
	newActive(t, s, "BBRI", "BUY")
}

func TestStore_DailyStatsUpsertReplaces(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertDailyStats(ctx, &models.DailyStats{Date: day, Total: 3}))
	require.NoError(t, s.UpsertDailyStats(ctx, &models.DailyStats{Date: day, Total: 2}))

	rows, err := s.GetDailyStats(ctx, day.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Total)
}

func TestStore_UnknownCompany(t *testing.T) {
	s := NewStore()
	_, err := s.GetCompanyID(context.Background(), "XXXX")
	assert.True(t, database.IsNotFound(err))

	id := s.AddCompany("bbri")
	got, err := s.GetCompanyID(context.Background(), "BBRI")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}
