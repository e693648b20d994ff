package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Cache keys
const (
	KeyConfigOverride = "config:override"
	KeyLatestScan     = "scan:latest"
	newsImpactKey     = "news:impact:%s:%d"
	llmCooldownKey    = "llm:cooldown:%s"
)

// NewsImpact is a cached news modifier for one ticker and window
type NewsImpact struct {
	Modifier  float64   `json:"modifier"`
	Note      string    `json:"note"`
	Source    string    `json:"source"`
	ScoredAt  time.Time `json:"scored_at"`
	Headlines int       `json:"headlines"`
}

// AdvisorCache groups the advisor's typed Redis entries.
// Every method is safe on a nil RedisClient and reports a miss.
type AdvisorCache struct {
	redis *RedisClient
}

// NewAdvisorCache creates a new advisor cache
func NewAdvisorCache(redis *RedisClient) *AdvisorCache {
	return &AdvisorCache{redis: redis}
}

// Enabled reports whether a Redis connection backs the cache
func (c *AdvisorCache) Enabled() bool {
	return c != nil && c.redis != nil
}

// GetNewsImpact returns the cached news impact for ticker, if any
func (c *AdvisorCache) GetNewsImpact(ctx context.Context, ticker string, windowHours int) (*NewsImpact, bool) {
	if !c.Enabled() {
		return nil, false
	}

	var impact NewsImpact
	if err := c.redis.Get(ctx, fmt.Sprintf(newsImpactKey, strings.ToUpper(ticker), windowHours), &impact); err != nil {
		return nil, false
	}
	return &impact, true
}

// SetNewsImpact caches a news impact for ttl
func (c *AdvisorCache) SetNewsImpact(ctx context.Context, ticker string, windowHours int, impact NewsImpact, ttl time.Duration) error {
	if !c.Enabled() {
		return fmt.Errorf("redis client not available")
	}
	return c.redis.Set(ctx, fmt.Sprintf(newsImpactKey, strings.ToUpper(ticker), windowHours), impact, ttl)
}

// SetLLMCooldown pauses LLM scoring for ticker after a failure
func (c *AdvisorCache) SetLLMCooldown(ctx context.Context, ticker string, ttl time.Duration) error {
	if !c.Enabled() {
		return fmt.Errorf("redis client not available")
	}
	return c.redis.Set(ctx, fmt.Sprintf(llmCooldownKey, strings.ToUpper(ticker)), time.Now().Unix(), ttl)
}

// IsLLMInCooldown checks if ticker is in its LLM cooldown period
func (c *AdvisorCache) IsLLMInCooldown(ctx context.Context, ticker string) bool {
	if !c.Enabled() {
		return false
	}

	var timestamp int64
	if err := c.redis.Get(ctx, fmt.Sprintf(llmCooldownKey, strings.ToUpper(ticker)), &timestamp); err != nil {
		return false
	}
	return timestamp > 0
}

// SaveLatestScan stores the most recent scan result
func (c *AdvisorCache) SaveLatestScan(ctx context.Context, scan interface{}, ttl time.Duration) error {
	if !c.Enabled() {
		return fmt.Errorf("redis client not available")
	}
	return c.redis.Set(ctx, KeyLatestScan, scan, ttl)
}

// LoadLatestScan decodes the most recent scan into dest
func (c *AdvisorCache) LoadLatestScan(ctx context.Context, dest interface{}) bool {
	if !c.Enabled() {
		return false
	}
	return c.redis.Get(ctx, KeyLatestScan, dest) == nil
}

// SaveConfigOverride persists the accumulated rule override without expiry
func (c *AdvisorCache) SaveConfigOverride(ctx context.Context, override interface{}) error {
	if !c.Enabled() {
		return fmt.Errorf("redis client not available")
	}
	return c.redis.Set(ctx, KeyConfigOverride, override, 0)
}

// LoadConfigOverride decodes a persisted override into dest.
// found is false with a nil error when no override was saved.
func (c *AdvisorCache) LoadConfigOverride(ctx context.Context, dest interface{}) (found bool, err error) {
	if !c.Enabled() {
		return false, nil
	}
	err = c.redis.Get(ctx, KeyConfigOverride, dest)
	if errors.Is(err, ErrMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
