// Package news converts recent headlines into a bounded confidence modifier.
package news

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"intraday-advisor/cache"
	models "intraday-advisor/database/models_pkg"
	"intraday-advisor/llm"
)

const (
	// MaxImpact bounds the modifier added to either confidence side
	MaxImpact = 0.3

	cacheTTL    = 15 * time.Minute
	llmCooldown = 5 * time.Minute
	llmTimeout  = 10 * time.Second
)

// Store reads stored headlines
type Store interface {
	GetRecentNews(ctx context.Context, ticker string, since time.Time) ([]models.NewsItem, error)
}

// Scorer scores headlines with a language model
type Scorer interface {
	ScoreHeadlines(ctx context.Context, ticker string, headlines []string) (llm.Sentiment, error)
}

// Source computes news impact from stored headlines, scored by the LLM when
// configured and by keywords otherwise. Results are cached in Redis.
type Source struct {
	store  Store
	scorer Scorer
	cache  *cache.AdvisorCache
	log    *logrus.Logger
	now    func() time.Time
}

// NewSource creates a news source. scorer and advisorCache may be nil.
func NewSource(store Store, scorer Scorer, advisorCache *cache.AdvisorCache, log *logrus.Logger) *Source {
	return &Source{
		store:  store,
		scorer: scorer,
		cache:  advisorCache,
		log:    log,
		now:    time.Now,
	}
}

// NewsImpact returns a modifier in [-MaxImpact, MaxImpact] and a short note.
// Any failure degrades to neutral (0, "").
func (s *Source) NewsImpact(ctx context.Context, ticker string, windowHours int) (float64, string) {
	if windowHours <= 0 {
		return 0, ""
	}
	ticker = strings.ToUpper(ticker)

	if cached, ok := s.cache.GetNewsImpact(ctx, ticker, windowHours); ok {
		return cached.Modifier, cached.Note
	}

	since := s.now().Add(-time.Duration(windowHours) * time.Hour)
	items, err := s.store.GetRecentNews(ctx, ticker, since)
	if err != nil {
		s.log.WithError(err).WithField("ticker", ticker).Warn("⚠️ News lookup failed, treating as neutral")
		return 0, ""
	}

	impact := s.score(ctx, ticker, items)
	if err := s.cache.SetNewsImpact(ctx, ticker, windowHours, impact, cacheTTL); err != nil && s.cache.Enabled() {
		s.log.WithError(err).WithField("ticker", ticker).Debug("News impact cache write failed")
	}
	return impact.Modifier, impact.Note
}

func (s *Source) score(ctx context.Context, ticker string, items []models.NewsItem) cache.NewsImpact {
	impact := cache.NewsImpact{ScoredAt: s.now(), Headlines: len(items)}
	if len(items) == 0 {
		impact.Source = "none"
		return impact
	}

	headlines := make([]string, 0, len(items))
	for _, it := range items {
		headlines = append(headlines, it.Headline)
	}

	if s.scorer != nil && !s.cache.IsLLMInCooldown(ctx, ticker) {
		llmCtx, cancel := context.WithTimeout(ctx, llmTimeout)
		sentiment, err := s.scorer.ScoreHeadlines(llmCtx, ticker, headlines)
		cancel()
		if err == nil {
			impact.Source = "llm"
			impact.Modifier = modifier(sentiment.Score)
			impact.Note = sentiment.Summary
			if impact.Note == "" && impact.Modifier != 0 {
				impact.Note = fmt.Sprintf("%d headlines scored %+.2f", len(items), sentiment.Score)
			}
			return impact
		}
		s.log.WithError(err).WithField("ticker", ticker).Warn("⚠️ LLM news scoring failed, using keyword fallback")
		_ = s.cache.SetLLMCooldown(ctx, ticker, llmCooldown)
	}

	score, pos, neg := KeywordScore(headlines)
	impact.Source = "keywords"
	impact.Modifier = modifier(score)
	if impact.Modifier != 0 {
		impact.Note = fmt.Sprintf("%d headlines: %d positive, %d negative", len(items), pos, neg)
	}
	return impact
}

func modifier(score float64) float64 {
	m := math.Max(-1, math.Min(1, score)) * MaxImpact
	if math.Abs(m) < 0.01 {
		return 0
	}
	return math.Round(m*1000) / 1000
}

var (
	positiveWords = []string{
		"profit", "record", "beat", "upgrade", "dividend", "buyback", "growth", "surge", "rally",
		"expansion", "acquire", "contract win", "laba naik", "dividen", "naik", "melonjak", "ekspansi",
	}
	negativeWords = []string{
		"loss", "miss", "downgrade", "lawsuit", "fraud", "default", "plunge", "decline", "suspend",
		"investigation", "delay", "rugi", "turun", "anjlok", "gagal bayar", "suspensi",
	}
)

// KeywordScore is a net-sentiment score in [-1, 1] over all headlines,
// with the counts of positive and negative keyword hits
func KeywordScore(headlines []string) (score float64, positive, negative int) {
	for _, h := range headlines {
		lower := strings.ToLower(h)
		for _, w := range positiveWords {
			if strings.Contains(lower, w) {
				positive++
			}
		}
		for _, w := range negativeWords {
			if strings.Contains(lower, w) {
				negative++
			}
		}
	}
	total := positive + negative
	if total == 0 {
		return 0, 0, 0
	}
	return float64(positive-negative) / float64(total), positive, negative
}
