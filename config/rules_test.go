package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func TestDefaultRuleConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultRuleConfig().Validate())
}

func TestMergeChangesOnlyListedFields(t *testing.T) {
	base := DefaultRuleConfig()

	merged, err := Merge(base, RuleOverride{
		Buy: &BuyOverride{
			PriceDrop: &PriceDropOverride{Weight: floatPtr(2.0)},
		},
		Ensemble: &EnsembleOverride{BuyThreshold: floatPtr(1.4)},
	})
	require.NoError(t, err)

	assert.Equal(t, 2.0, merged.Buy.PriceDrop.Weight)
	assert.Equal(t, 1.4, merged.Ensemble.BuyThreshold)

	// untouched fields keep their base value
	assert.Equal(t, base.Buy.PriceDrop.DropPct, merged.Buy.PriceDrop.DropPct)
	assert.Equal(t, base.Buy.PriceDrop.MinVolumeRatio, merged.Buy.PriceDrop.MinVolumeRatio)
	assert.Equal(t, base.Sell, merged.Sell)
	assert.Equal(t, base.Ensemble.SellThreshold, merged.Ensemble.SellThreshold)
	assert.Equal(t, base.Version+1, merged.Version)

	// base is never mutated
	assert.Equal(t, 1.2, base.Buy.PriceDrop.Weight)
	assert.Equal(t, 1.0, base.Ensemble.BuyThreshold)
}

func TestMergeRejectsInvalidOverrideAtomically(t *testing.T) {
	base := DefaultRuleConfig()

	tests := []struct {
		name     string
		override RuleOverride
		field    string
	}{
		{
			name: "negative weight",
			override: RuleOverride{
				// the valid part must not leak into the result either
				Ensemble: &EnsembleOverride{BuyThreshold: floatPtr(3)},
				Sell:     &SellOverride{QuickProfit: &QuickProfitOverride{Weight: floatPtr(-1)}},
			},
			field: "sell.quick_profit.weight",
		},
		{
			name:     "rsi threshold out of range",
			override: RuleOverride{Buy: &BuyOverride{RSIOversold: &ThresholdOverride{Threshold: floatPtr(120)}}},
			field:    "buy.rsi_oversold.threshold",
		},
		{
			name:     "unknown exit profile",
			override: RuleOverride{Exit: &ExitOverride{Profile: strPtr("scalp")}},
			field:    "exit.profile",
		},
		{
			name:     "support factor above one",
			override: RuleOverride{Ensemble: &EnsembleOverride{ClassifierSupportFactor: floatPtr(1.5)}},
			field:    "ensemble.classifier_support_factor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, err := Merge(base, tt.override)
			require.Error(t, err)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.field, vErr.Field)
			assert.Equal(t, base, merged)
		})
	}
}

func TestMergeEmptyOverrideKeepsVersion(t *testing.T) {
	base := DefaultRuleConfig()
	merged, err := Merge(base, RuleOverride{})
	require.NoError(t, err)
	assert.Equal(t, base, merged)
}

func TestMergeTogglesRule(t *testing.T) {
	merged, err := Merge(DefaultRuleConfig(), RuleOverride{
		Sell: &SellOverride{ResistanceHit: &ProximityOverride{Enabled: boolPtr(false)}},
	})
	require.NoError(t, err)
	assert.False(t, merged.Sell.ResistanceHit.Enabled)
	assert.Equal(t, 0.5, merged.Sell.ResistanceHit.ProximityPct)
}

func TestLoadRuleConfig(t *testing.T) {
	t.Run("missing file falls back to defaults", func(t *testing.T) {
		cfg, err := LoadRuleConfig(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultRuleConfig(), cfg)
	})

	t.Run("yaml overlays defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		content := "name: aggressive\nversion: 3\nbuy:\n  price_drop:\n    drop_pct: 2.0\nensemble:\n  buy_threshold: 0.9\nexit:\n  profile: swing\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		cfg, err := LoadRuleConfig(path)
		require.NoError(t, err)
		assert.Equal(t, "aggressive", cfg.Name)
		assert.Equal(t, 3, cfg.Version)
		assert.Equal(t, 2.0, cfg.Buy.PriceDrop.DropPct)
		assert.Equal(t, 1.8, cfg.Buy.PriceDrop.MinVolumeRatio)
		assert.Equal(t, 0.9, cfg.Ensemble.BuyThreshold)

		target, stop := cfg.Exit.Multipliers()
		assert.Equal(t, 1.05, target)
		assert.Equal(t, 0.95, stop)
	})

	t.Run("invalid yaml values are rejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "rules.yaml")
		require.NoError(t, os.WriteFile(path, []byte("ensemble:\n  buy_threshold: -1\n"), 0o600))

		_, err := LoadRuleConfig(path)
		var vErr *ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "ensemble.buy_threshold", vErr.Field)
	})
}

func strPtr(v string) *string { return &v }
