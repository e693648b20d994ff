package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intraday-advisor/config"
	"intraday-advisor/database"
	"intraday-advisor/database/memory"
	models "intraday-advisor/database/models_pkg"
	"intraday-advisor/market"
	"intraday-advisor/signals"
	"intraday-advisor/snapshot"
)

// fakeSnapshots serves canned snapshots and errors per ticker
type fakeSnapshots struct {
	mu    sync.Mutex
	snaps map[string]signals.TechnicalSnapshot
	errs  map[string]error
	block map[string]bool
	calls map[string]int

	// entered receives the ticker of every blocking call
	entered chan string
	release chan struct{}
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{
		snaps:   make(map[string]signals.TechnicalSnapshot),
		errs:    make(map[string]error),
		block:   make(map[string]bool),
		calls:   make(map[string]int),
		entered: make(chan string, 16),
		release: make(chan struct{}),
	}
}

func (f *fakeSnapshots) set(snap signals.TechnicalSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[snap.Ticker] = snap
	delete(f.errs, snap.Ticker)
}

func (f *fakeSnapshots) setPrice(ticker string, price float64) {
	f.set(signals.TechnicalSnapshot{Ticker: ticker, Price: price, Volume: 1000, AvgVolume: 1000, RSI: 50})
}

func (f *fakeSnapshots) fail(ticker string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[ticker] = err
}

func (f *fakeSnapshots) blockOn(ticker string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block[ticker] = true
}

func (f *fakeSnapshots) callCount(ticker string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ticker]
}

func (f *fakeSnapshots) GetSnapshot(ctx context.Context, ticker string) (signals.TechnicalSnapshot, error) {
	f.mu.Lock()
	f.calls[ticker]++
	blocked := f.block[ticker]
	snap, ok := f.snaps[ticker]
	err := f.errs[ticker]
	f.mu.Unlock()

	if blocked {
		f.entered <- ticker
		select {
		case <-f.release:
		case <-ctx.Done():
			return signals.TechnicalSnapshot{}, ctx.Err()
		}
	}
	if err != nil {
		return signals.TechnicalSnapshot{}, err
	}
	if !ok {
		return signals.TechnicalSnapshot{}, snapshot.ErrNoData
	}
	return snap, nil
}

// buySnapshot fires the price-drop rule (weight 1.2) and nothing else
func buySnapshot(ticker string, price float64) signals.TechnicalSnapshot {
	return signals.TechnicalSnapshot{
		Ticker:        ticker,
		Price:         price,
		Volume:        2000,
		AvgVolume:     1000,
		PriceChange1d: -3,
		RSI:           50,
	}
}

// waitSnapshot fires no rule
func waitSnapshot(ticker string, price float64) signals.TechnicalSnapshot {
	return signals.TechnicalSnapshot{Ticker: ticker, Price: price, Volume: 1000, AvgVolume: 1000, RSI: 50}
}

type notification struct {
	title, body, ticker string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) Notify(_ context.Context, title, body, ticker string, _ map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{title: title, body: body, ticker: ticker})
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type recordingBroker struct {
	mu     sync.Mutex
	events []string
}

func (b *recordingBroker) Broadcast(event string, _ interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBroker) count(event string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e == event {
			n++
		}
	}
	return n
}

// failingCreateStore rejects every new recommendation
type failingCreateStore struct {
	*memory.Store
}

func (failingCreateStore) CreateRecommendation(context.Context, *models.Recommendation) error {
	return database.Wrap("CreateRecommendation", errors.New("disk full"))
}

// clock is a settable test clock
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock { return &clock{now: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newJakartaSession(t *testing.T) *market.Session {
	t.Helper()
	s, err := market.NewSession(config.SessionConfig{TimeZone: "Asia/Jakarta", Open: "09:00", Close: "16:00"})
	require.NoError(t, err)
	return s
}

// mondayMorning is 10:00 local on a trading day
func mondayMorning(s *market.Session) time.Time {
	return time.Date(2024, 3, 4, 10, 0, 0, 0, s.Location())
}

func newRecommendation(t *testing.T, store Store, ticker, state string, entry float64, exit config.ExitConfig, createdAt time.Time) *models.Recommendation {
	t.Helper()
	levels := CalculateExitLevels(state, entry, exit)
	rec := &models.Recommendation{
		Ticker:        ticker,
		State:         state,
		EntryPrice:    entry,
		TargetPrice:   levels.Target,
		StopPrice:     levels.Stop,
		ExitProfile:   levels.Profile,
		ConfigName:    "default",
		ConfigVersion: 1,
		CreatedAt:     createdAt,
		SessionDate:   createdAt,
		Status:        models.StatusActive,
	}
	require.NoError(t, store.CreateRecommendation(context.Background(), rec))
	return rec
}

// stallingStore holds GetCheckpoints and ListClosedOutcomes until release is
// closed, ignoring cancellation the way a driver stuck in a query would
type stallingStore struct {
	*memory.Store
	entered chan struct{}
	release chan struct{}
}

func newStallingStore() *stallingStore {
	return &stallingStore{
		Store:   memory.NewStore(),
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (s *stallingStore) stall() {
	s.entered <- struct{}{}
	<-s.release
}

func (s *stallingStore) GetCheckpoints(ctx context.Context, recommendationID int64) ([]models.TimeCheckpointEvaluation, error) {
	s.stall()
	return s.Store.GetCheckpoints(ctx, recommendationID)
}

func (s *stallingStore) ListClosedOutcomes(ctx context.Context, from, to time.Time) ([]models.OutcomeResult, error) {
	s.stall()
	return s.Store.ListClosedOutcomes(ctx, from, to)
}

// assertStopWaits checks that stop blocks until release is closed
func assertStopWaits(t *testing.T, stop func(), release chan struct{}) {
	t.Helper()
	stopped := make(chan struct{})
	go func() {
		stop()
		close(stopped)
	}()
	isStopped := func() bool {
		select {
		case <-stopped:
			return true
		default:
			return false
		}
	}
	assert.Never(t, isStopped, 150*time.Millisecond, 10*time.Millisecond, "stop returned while work was in flight")
	close(release)
	assert.Eventually(t, isStopped, 2*time.Second, 10*time.Millisecond)
}
