package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCache(t *testing.T) (*AdvisorCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	log := logrus.New()
	log.SetOutput(io.Discard)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc := NewFromClient(client, log)
	t.Cleanup(func() { _ = rc.Close() })
	return NewAdvisorCache(rc), mr
}

func TestNewsImpactRoundTripAndExpiry(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	_, ok := c.GetNewsImpact(ctx, "bbri", 24)
	assert.False(t, ok)

	require.NoError(t, c.SetNewsImpact(ctx, "bbri", 24, NewsImpact{Modifier: 0.2, Note: "dividend raised", Source: "llm"}, time.Minute))
	assert.True(t, mr.Exists("news:impact:BBRI:24"))

	got, ok := c.GetNewsImpact(ctx, "BBRI", 24)
	require.True(t, ok)
	assert.Equal(t, 0.2, got.Modifier)
	assert.Equal(t, "dividend raised", got.Note)

	_, ok = c.GetNewsImpact(ctx, "BBRI", 12)
	assert.False(t, ok, "window is part of the key")

	mr.FastForward(2 * time.Minute)
	_, ok = c.GetNewsImpact(ctx, "BBRI", 24)
	assert.False(t, ok)
}

func TestLLMCooldown(t *testing.T) {
	c, mr := setupCache(t)
	ctx := context.Background()

	assert.False(t, c.IsLLMInCooldown(ctx, "TLKM"))
	require.NoError(t, c.SetLLMCooldown(ctx, "TLKM", 5*time.Minute))
	assert.True(t, c.IsLLMInCooldown(ctx, "TLKM"))

	mr.FastForward(6 * time.Minute)
	assert.False(t, c.IsLLMInCooldown(ctx, "TLKM"))
}

func TestConfigOverridePersistence(t *testing.T) {
	c, _ := setupCache(t)
	ctx := context.Background()

	type payload struct {
		Name    string `json:"name"`
		Version int    `json:"version"`
	}

	var got payload
	found, err := c.LoadConfigOverride(ctx, &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.SaveConfigOverride(ctx, payload{Name: "aggressive", Version: 3}))
	found, err = c.LoadConfigOverride(ctx, &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Name: "aggressive", Version: 3}, got)
}

func TestDisabledCacheMisses(t *testing.T) {
	c := NewAdvisorCache(nil)
	ctx := context.Background()

	assert.False(t, c.Enabled())
	_, ok := c.GetNewsImpact(ctx, "BBCA", 24)
	assert.False(t, ok)
	assert.Error(t, c.SaveLatestScan(ctx, map[string]int{"a": 1}, time.Minute))

	var dest map[string]int
	assert.False(t, c.LoadLatestScan(ctx, &dest))
	found, err := c.LoadConfigOverride(ctx, &dest)
	assert.NoError(t, err)
	assert.False(t, found)
}
