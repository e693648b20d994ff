package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Exit profiles
const (
	ProfileIntraday = "intraday"
	ProfileSwing    = "swing"
)

// RuleConfig is the named, versioned rule set used for one evaluation.
// It holds only value fields, so assigning it produces an independent copy.
type RuleConfig struct {
	Name     string         `yaml:"name" json:"name"`
	Version  int            `yaml:"version" json:"version"`
	Buy      BuyRules       `yaml:"buy" json:"buy"`
	Sell     SellRules      `yaml:"sell" json:"sell"`
	Ensemble EnsembleConfig `yaml:"ensemble" json:"ensemble"`
	Exit     ExitConfig     `yaml:"exit" json:"exit"`
}

// BuyRules groups the buy-side rules
type BuyRules struct {
	PriceDrop        PriceDropRule        `yaml:"price_drop" json:"price_drop"`
	RSIOversold      ThresholdRule        `yaml:"rsi_oversold" json:"rsi_oversold"`
	MomentumReversal MomentumReversalRule `yaml:"momentum_reversal" json:"momentum_reversal"`
	BollingerBounce  ProximityRule        `yaml:"bollinger_bounce" json:"bollinger_bounce"`
	MACDCross        MACDCrossRule        `yaml:"macd_cross" json:"macd_cross"`
}

// SellRules groups the sell-side rules
type SellRules struct {
	QuickProfit    QuickProfitRule `yaml:"quick_profit" json:"quick_profit"`
	SessionEndExit SessionEndRule  `yaml:"session_end_exit" json:"session_end_exit"`
	StopLoss       StopLossRule    `yaml:"stop_loss" json:"stop_loss"`
	RSIOverbought  ThresholdRule   `yaml:"rsi_overbought" json:"rsi_overbought"`
	ResistanceHit  ProximityRule   `yaml:"resistance_hit" json:"resistance_hit"`
}

// PriceDropRule fires on a daily drop backed by above-average volume.
// DropPct is compared by magnitude, so 2.5 and -2.5 are equivalent.
type PriceDropRule struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	DropPct        float64 `yaml:"drop_pct" json:"drop_pct"`
	MinVolumeRatio float64 `yaml:"min_volume_ratio" json:"min_volume_ratio"`
	Weight         float64 `yaml:"weight" json:"weight"`
}

// ThresholdRule is a single-threshold rule (RSI oversold / overbought)
type ThresholdRule struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
	Weight    float64 `yaml:"weight" json:"weight"`
}

// MomentumReversalRule fires when a multi-day decline turns up today
type MomentumReversalRule struct {
	Enabled        bool    `yaml:"enabled" json:"enabled"`
	Decline5dPct   float64 `yaml:"decline_5d_pct" json:"decline_5d_pct"`
	MinBounce1dPct float64 `yaml:"min_bounce_1d_pct" json:"min_bounce_1d_pct"`
	Weight         float64 `yaml:"weight" json:"weight"`
}

// ProximityRule fires when price is within ProximityPct of a band
type ProximityRule struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ProximityPct float64 `yaml:"proximity_pct" json:"proximity_pct"`
	Weight       float64 `yaml:"weight" json:"weight"`
}

// MACDCrossRule fires on a bullish histogram cross
type MACDCrossRule struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	MinHistogram float64 `yaml:"min_histogram" json:"min_histogram"`
	Weight       float64 `yaml:"weight" json:"weight"`
}

type QuickProfitRule struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	ProfitPct float64 `yaml:"profit_pct" json:"profit_pct"`
	Weight    float64 `yaml:"weight" json:"weight"`
}

type SessionEndRule struct {
	Enabled            bool    `yaml:"enabled" json:"enabled"`
	MinutesBeforeClose int     `yaml:"minutes_before_close" json:"minutes_before_close"`
	Weight             float64 `yaml:"weight" json:"weight"`
}

type StopLossRule struct {
	Enabled bool    `yaml:"enabled" json:"enabled"`
	LossPct float64 `yaml:"loss_pct" json:"loss_pct"`
	Weight  float64 `yaml:"weight" json:"weight"`
}

// EnsembleConfig holds integrator weights and decision thresholds
type EnsembleConfig struct {
	BuyThreshold     float64 `yaml:"buy_threshold" json:"buy_threshold"`
	SellThreshold    float64 `yaml:"sell_threshold" json:"sell_threshold"`
	RuleWeight       float64 `yaml:"rule_weight" json:"rule_weight"`
	ClassifierWeight float64 `yaml:"classifier_weight" json:"classifier_weight"`
	// ClassifierScale maps a [0,1] classifier confidence onto the rule engine's range
	ClassifierScale float64 `yaml:"classifier_scale" json:"classifier_scale"`
	// ClassifierSupportFactor discounts BuyThreshold when the classifier leads
	ClassifierSupportFactor float64 `yaml:"classifier_support_factor" json:"classifier_support_factor"`
	NewsWindowHours         int     `yaml:"news_window_hours" json:"news_window_hours"`
}

// ExitConfig holds target/stop multipliers per profile
type ExitConfig struct {
	Profile                  string  `yaml:"profile" json:"profile"`
	IntradayTargetMultiplier float64 `yaml:"intraday_target_multiplier" json:"intraday_target_multiplier"`
	IntradayStopMultiplier   float64 `yaml:"intraday_stop_multiplier" json:"intraday_stop_multiplier"`
	SwingTargetMultiplier    float64 `yaml:"swing_target_multiplier" json:"swing_target_multiplier"`
	SwingStopMultiplier      float64 `yaml:"swing_stop_multiplier" json:"swing_stop_multiplier"`
}

// Multipliers returns the target and stop multipliers of the active profile
func (e ExitConfig) Multipliers() (target, stop float64) {
	if e.Profile == ProfileSwing {
		return e.SwingTargetMultiplier, e.SwingStopMultiplier
	}
	return e.IntradayTargetMultiplier, e.IntradayStopMultiplier
}

// DefaultRuleConfig returns the built-in rule set
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		Name:    "default",
		Version: 1,
		Buy: BuyRules{
			PriceDrop:        PriceDropRule{Enabled: true, DropPct: 2.5, MinVolumeRatio: 1.8, Weight: 1.2},
			RSIOversold:      ThresholdRule{Enabled: true, Threshold: 30, Weight: 1.0},
			MomentumReversal: MomentumReversalRule{Enabled: true, Decline5dPct: 5, MinBounce1dPct: 0.5, Weight: 0.8},
			BollingerBounce:  ProximityRule{Enabled: true, ProximityPct: 1.0, Weight: 0.8},
			MACDCross:        MACDCrossRule{Enabled: true, MinHistogram: 0, Weight: 0.7},
		},
		Sell: SellRules{
			QuickProfit:    QuickProfitRule{Enabled: true, ProfitPct: 1.5, Weight: 1.5},
			SessionEndExit: SessionEndRule{Enabled: true, MinutesBeforeClose: 30, Weight: 1.0},
			StopLoss:       StopLossRule{Enabled: true, LossPct: 1.5, Weight: 2.0},
			RSIOverbought:  ThresholdRule{Enabled: true, Threshold: 70, Weight: 1.0},
			ResistanceHit:  ProximityRule{Enabled: true, ProximityPct: 0.5, Weight: 0.8},
		},
		Ensemble: EnsembleConfig{
			BuyThreshold:            1.0,
			SellThreshold:           1.0,
			RuleWeight:              0.7,
			ClassifierWeight:        0.3,
			ClassifierScale:         2.0,
			ClassifierSupportFactor: 0.8,
			NewsWindowHours:         24,
		},
		Exit: ExitConfig{
			Profile:                  ProfileIntraday,
			IntradayTargetMultiplier: 1.015,
			IntradayStopMultiplier:   0.985,
			SwingTargetMultiplier:    1.05,
			SwingStopMultiplier:      0.95,
		},
	}
}

// LoadRuleConfig overlays the YAML file at path onto the defaults.
// A missing file is not an error.
func LoadRuleConfig(path string) (RuleConfig, error) {
	cfg := DefaultRuleConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read rules file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultRuleConfig(), fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return DefaultRuleConfig(), err
	}
	return cfg, nil
}

// Validate checks every threshold and weight. The first problem is returned.
func (c RuleConfig) Validate() error {
	if c.Name == "" {
		return NewValidationError("name", "must not be empty")
	}

	checks := []struct {
		field string
		value float64
		ok    bool
		why   string
	}{
		{"buy.price_drop.drop_pct", c.Buy.PriceDrop.DropPct, c.Buy.PriceDrop.DropPct != 0, "must not be zero"},
		{"buy.price_drop.min_volume_ratio", c.Buy.PriceDrop.MinVolumeRatio, c.Buy.PriceDrop.MinVolumeRatio >= 0, "must be >= 0"},
		{"buy.price_drop.weight", c.Buy.PriceDrop.Weight, c.Buy.PriceDrop.Weight >= 0, "must be >= 0"},
		{"buy.rsi_oversold.threshold", c.Buy.RSIOversold.Threshold, inOpenRange(c.Buy.RSIOversold.Threshold, 0, 100), "must be within (0, 100)"},
		{"buy.rsi_oversold.weight", c.Buy.RSIOversold.Weight, c.Buy.RSIOversold.Weight >= 0, "must be >= 0"},
		{"buy.momentum_reversal.decline_5d_pct", c.Buy.MomentumReversal.Decline5dPct, c.Buy.MomentumReversal.Decline5dPct != 0, "must not be zero"},
		{"buy.momentum_reversal.weight", c.Buy.MomentumReversal.Weight, c.Buy.MomentumReversal.Weight >= 0, "must be >= 0"},
		{"buy.bollinger_bounce.proximity_pct", c.Buy.BollingerBounce.ProximityPct, c.Buy.BollingerBounce.ProximityPct >= 0 && c.Buy.BollingerBounce.ProximityPct < 100, "must be within [0, 100)"},
		{"buy.bollinger_bounce.weight", c.Buy.BollingerBounce.Weight, c.Buy.BollingerBounce.Weight >= 0, "must be >= 0"},
		{"buy.macd_cross.weight", c.Buy.MACDCross.Weight, c.Buy.MACDCross.Weight >= 0, "must be >= 0"},
		{"sell.quick_profit.profit_pct", c.Sell.QuickProfit.ProfitPct, c.Sell.QuickProfit.ProfitPct > 0, "must be > 0"},
		{"sell.quick_profit.weight", c.Sell.QuickProfit.Weight, c.Sell.QuickProfit.Weight >= 0, "must be >= 0"},
		{"sell.session_end_exit.minutes_before_close", float64(c.Sell.SessionEndExit.MinutesBeforeClose), c.Sell.SessionEndExit.MinutesBeforeClose >= 0 && c.Sell.SessionEndExit.MinutesBeforeClose <= 24*60, "must be within [0, 1440]"},
		{"sell.session_end_exit.weight", c.Sell.SessionEndExit.Weight, c.Sell.SessionEndExit.Weight >= 0, "must be >= 0"},
		{"sell.stop_loss.loss_pct", c.Sell.StopLoss.LossPct, c.Sell.StopLoss.LossPct != 0, "must not be zero"},
		{"sell.stop_loss.weight", c.Sell.StopLoss.Weight, c.Sell.StopLoss.Weight >= 0, "must be >= 0"},
		{"sell.rsi_overbought.threshold", c.Sell.RSIOverbought.Threshold, inOpenRange(c.Sell.RSIOverbought.Threshold, 0, 100), "must be within (0, 100)"},
		{"sell.rsi_overbought.weight", c.Sell.RSIOverbought.Weight, c.Sell.RSIOverbought.Weight >= 0, "must be >= 0"},
		{"sell.resistance_hit.proximity_pct", c.Sell.ResistanceHit.ProximityPct, c.Sell.ResistanceHit.ProximityPct >= 0 && c.Sell.ResistanceHit.ProximityPct < 100, "must be within [0, 100)"},
		{"sell.resistance_hit.weight", c.Sell.ResistanceHit.Weight, c.Sell.ResistanceHit.Weight >= 0, "must be >= 0"},
		{"ensemble.buy_threshold", c.Ensemble.BuyThreshold, c.Ensemble.BuyThreshold > 0, "must be > 0"},
		{"ensemble.sell_threshold", c.Ensemble.SellThreshold, c.Ensemble.SellThreshold > 0, "must be > 0"},
		{"ensemble.rule_weight", c.Ensemble.RuleWeight, c.Ensemble.RuleWeight >= 0, "must be >= 0"},
		{"ensemble.classifier_weight", c.Ensemble.ClassifierWeight, c.Ensemble.ClassifierWeight >= 0, "must be >= 0"},
		{"ensemble.rule_weight", c.Ensemble.RuleWeight, c.Ensemble.RuleWeight+c.Ensemble.ClassifierWeight > 0, "rule and classifier weights must not both be zero"},
		{"ensemble.classifier_scale", c.Ensemble.ClassifierScale, c.Ensemble.ClassifierScale > 0, "must be > 0"},
		{"ensemble.classifier_support_factor", c.Ensemble.ClassifierSupportFactor, c.Ensemble.ClassifierSupportFactor > 0 && c.Ensemble.ClassifierSupportFactor <= 1, "must be within (0, 1]"},
		{"ensemble.news_window_hours", float64(c.Ensemble.NewsWindowHours), c.Ensemble.NewsWindowHours >= 1, "must be >= 1"},
		{"exit.intraday_target_multiplier", c.Exit.IntradayTargetMultiplier, c.Exit.IntradayTargetMultiplier > 1, "must be > 1"},
		{"exit.intraday_stop_multiplier", c.Exit.IntradayStopMultiplier, inOpenRange(c.Exit.IntradayStopMultiplier, 0, 1), "must be within (0, 1)"},
		{"exit.swing_target_multiplier", c.Exit.SwingTargetMultiplier, c.Exit.SwingTargetMultiplier > 1, "must be > 1"},
		{"exit.swing_stop_multiplier", c.Exit.SwingStopMultiplier, inOpenRange(c.Exit.SwingStopMultiplier, 0, 1), "must be within (0, 1)"},
	}

	for _, chk := range checks {
		if math.IsNaN(chk.value) || math.IsInf(chk.value, 0) {
			return NewValidationErrorWithValue(chk.field, "must be a finite number", chk.value)
		}
		if !chk.ok {
			return NewValidationErrorWithValue(chk.field, chk.why, chk.value)
		}
	}

	if c.Exit.Profile != ProfileIntraday && c.Exit.Profile != ProfileSwing {
		return NewValidationErrorWithValue("exit.profile", "must be intraday or swing", c.Exit.Profile)
	}

	return nil
}

func inOpenRange(v, lo, hi float64) bool {
	return v > lo && v < hi
}
