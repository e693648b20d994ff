package news

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intraday-advisor/cache"
	"intraday-advisor/database/memory"
	models "intraday-advisor/database/models_pkg"
	"intraday-advisor/llm"
)

type fakeScorer struct {
	calls int
	resp  llm.Sentiment
	err   error
}

func (f *fakeScorer) ScoreHeadlines(context.Context, string, []string) (llm.Sentiment, error) {
	f.calls++
	return f.resp, f.err
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newCache(t *testing.T) *cache.AdvisorCache {
	mr := miniredis.RunT(t)
	return cache.NewAdvisorCache(cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), quietLogger()))
}

func seeded(now time.Time) *memory.Store {
	store := memory.NewStore()
	store.AddNews(models.NewsItem{Ticker: "BBRI", Headline: "BBRI posts record profit, dividend raised", PublishedAt: now.Add(-2 * time.Hour)})
	store.AddNews(models.NewsItem{Ticker: "BBRI", Headline: "Old lawsuit story", PublishedAt: now.Add(-72 * time.Hour)})
	return store
}

func TestNewsImpactUsesLLMAndCaches(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	scorer := &fakeScorer{resp: llm.Sentiment{Score: 0.5, Summary: "strong earnings"}}
	src := NewSource(seeded(now), scorer, newCache(t), quietLogger())
	src.now = func() time.Time { return now }

	mod, note := src.NewsImpact(context.Background(), "BBRI", 24)
	assert.InDelta(t, 0.15, mod, 1e-9)
	assert.Equal(t, "strong earnings", note)

	mod2, _ := src.NewsImpact(context.Background(), "bbri", 24)
	assert.Equal(t, mod, mod2)
	assert.Equal(t, 1, scorer.calls, "second call served from cache")
}

func TestNewsImpactFallsBackToKeywords(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	c := newCache(t)
	scorer := &fakeScorer{err: errors.New("timeout")}
	src := NewSource(seeded(now), scorer, c, quietLogger())
	src.now = func() time.Time { return now }

	mod, note := src.NewsImpact(context.Background(), "BBRI", 24)
	assert.InDelta(t, MaxImpact, mod, 1e-9, "only positive keywords inside the window")
	assert.Contains(t, note, "positive")
	assert.True(t, c.IsLLMInCooldown(context.Background(), "BBRI"))
}

func TestNewsImpactNeutralCases(t *testing.T) {
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	src := NewSource(seeded(now), nil, nil, quietLogger())
	src.now = func() time.Time { return now }

	tests := []struct {
		name   string
		ticker string
		window int
	}{
		{name: "no headlines", ticker: "TLKM", window: 24},
		{name: "disabled window", ticker: "BBRI", window: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod, note := src.NewsImpact(context.Background(), tt.ticker, tt.window)
			assert.Zero(t, mod)
			assert.Empty(t, note)
		})
	}
}

func TestKeywordScore(t *testing.T) {
	score, pos, neg := KeywordScore([]string{"Bank reports record profit", "Regulator opens investigation"})
	require.Equal(t, 2, pos)
	require.Equal(t, 1, neg)
	assert.InDelta(t, 1.0/3.0, score, 1e-9)

	score, _, _ = KeywordScore([]string{"Quarterly meeting scheduled"})
	assert.Zero(t, score)
}
