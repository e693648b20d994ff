package config

// RuleOverride is a partial RuleConfig. Nil fields keep the base value.
type RuleOverride struct {
	Name     *string           `json:"name,omitempty" yaml:"name,omitempty"`
	Buy      *BuyOverride      `json:"buy,omitempty" yaml:"buy,omitempty"`
	Sell     *SellOverride     `json:"sell,omitempty" yaml:"sell,omitempty"`
	Ensemble *EnsembleOverride `json:"ensemble,omitempty" yaml:"ensemble,omitempty"`
	Exit     *ExitOverride     `json:"exit,omitempty" yaml:"exit,omitempty"`
}

type BuyOverride struct {
	PriceDrop        *PriceDropOverride        `json:"price_drop,omitempty" yaml:"price_drop,omitempty"`
	RSIOversold      *ThresholdOverride        `json:"rsi_oversold,omitempty" yaml:"rsi_oversold,omitempty"`
	MomentumReversal *MomentumReversalOverride `json:"momentum_reversal,omitempty" yaml:"momentum_reversal,omitempty"`
	BollingerBounce  *ProximityOverride        `json:"bollinger_bounce,omitempty" yaml:"bollinger_bounce,omitempty"`
	MACDCross        *MACDCrossOverride        `json:"macd_cross,omitempty" yaml:"macd_cross,omitempty"`
}

type SellOverride struct {
	QuickProfit    *QuickProfitOverride `json:"quick_profit,omitempty" yaml:"quick_profit,omitempty"`
	SessionEndExit *SessionEndOverride  `json:"session_end_exit,omitempty" yaml:"session_end_exit,omitempty"`
	StopLoss       *StopLossOverride    `json:"stop_loss,omitempty" yaml:"stop_loss,omitempty"`
	RSIOverbought  *ThresholdOverride   `json:"rsi_overbought,omitempty" yaml:"rsi_overbought,omitempty"`
	ResistanceHit  *ProximityOverride   `json:"resistance_hit,omitempty" yaml:"resistance_hit,omitempty"`
}

type PriceDropOverride struct {
	Enabled        *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	DropPct        *float64 `json:"drop_pct,omitempty" yaml:"drop_pct,omitempty"`
	MinVolumeRatio *float64 `json:"min_volume_ratio,omitempty" yaml:"min_volume_ratio,omitempty"`
	Weight         *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

type ThresholdOverride struct {
	Enabled   *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Threshold *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Weight    *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

type MomentumReversalOverride struct {
	Enabled        *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Decline5dPct   *float64 `json:"decline_5d_pct,omitempty" yaml:"decline_5d_pct,omitempty"`
	MinBounce1dPct *float64 `json:"min_bounce_1d_pct,omitempty" yaml:"min_bounce_1d_pct,omitempty"`
	Weight         *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

type ProximityOverride struct {
	Enabled      *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	ProximityPct *float64 `json:"proximity_pct,omitempty" yaml:"proximity_pct,omitempty"`
	Weight       *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

type MACDCrossOverride struct {
	Enabled      *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	MinHistogram *float64 `json:"min_histogram,omitempty" yaml:"min_histogram,omitempty"`
	Weight       *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

type QuickProfitOverride struct {
	Enabled   *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	ProfitPct *float64 `json:"profit_pct,omitempty" yaml:"profit_pct,omitempty"`
	Weight    *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

type SessionEndOverride struct {
	Enabled            *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	MinutesBeforeClose *int     `json:"minutes_before_close,omitempty" yaml:"minutes_before_close,omitempty"`
	Weight             *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

type StopLossOverride struct {
	Enabled *bool    `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	LossPct *float64 `json:"loss_pct,omitempty" yaml:"loss_pct,omitempty"`
	Weight  *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

type EnsembleOverride struct {
	BuyThreshold            *float64 `json:"buy_threshold,omitempty" yaml:"buy_threshold,omitempty"`
	SellThreshold           *float64 `json:"sell_threshold,omitempty" yaml:"sell_threshold,omitempty"`
	RuleWeight              *float64 `json:"rule_weight,omitempty" yaml:"rule_weight,omitempty"`
	ClassifierWeight        *float64 `json:"classifier_weight,omitempty" yaml:"classifier_weight,omitempty"`
	ClassifierScale         *float64 `json:"classifier_scale,omitempty" yaml:"classifier_scale,omitempty"`
	ClassifierSupportFactor *float64 `json:"classifier_support_factor,omitempty" yaml:"classifier_support_factor,omitempty"`
	NewsWindowHours         *int     `json:"news_window_hours,omitempty" yaml:"news_window_hours,omitempty"`
}

type ExitOverride struct {
	Profile                  *string  `json:"profile,omitempty" yaml:"profile,omitempty"`
	IntradayTargetMultiplier *float64 `json:"intraday_target_multiplier,omitempty" yaml:"intraday_target_multiplier,omitempty"`
	IntradayStopMultiplier   *float64 `json:"intraday_stop_multiplier,omitempty" yaml:"intraday_stop_multiplier,omitempty"`
	SwingTargetMultiplier    *float64 `json:"swing_target_multiplier,omitempty" yaml:"swing_target_multiplier,omitempty"`
	SwingStopMultiplier      *float64 `json:"swing_stop_multiplier,omitempty" yaml:"swing_stop_multiplier,omitempty"`
}

// IsEmpty reports whether the override changes nothing
func (o RuleOverride) IsEmpty() bool {
	return o.Name == nil && o.Buy == nil && o.Sell == nil && o.Ensemble == nil && o.Exit == nil
}

// Merge applies the override to a copy of base and validates the result.
// On error base is returned unchanged together with a *ValidationError.
// A successful merge that changes something increments Version.
func Merge(base RuleConfig, o RuleOverride) (RuleConfig, error) {
	merged := base
	if o.IsEmpty() {
		return merged, nil
	}

	set(&merged.Name, o.Name)

	if b := o.Buy; b != nil {
		if r := b.PriceDrop; r != nil {
			dst := &merged.Buy.PriceDrop
			set(&dst.Enabled, r.Enabled)
			set(&dst.DropPct, r.DropPct)
			set(&dst.MinVolumeRatio, r.MinVolumeRatio)
			set(&dst.Weight, r.Weight)
		}
		b.RSIOversold.applyTo(&merged.Buy.RSIOversold)
		if m := b.MomentumReversal; m != nil {
			dst := &merged.Buy.MomentumReversal
			set(&dst.Enabled, m.Enabled)
			set(&dst.Decline5dPct, m.Decline5dPct)
			set(&dst.MinBounce1dPct, m.MinBounce1dPct)
			set(&dst.Weight, m.Weight)
		}
		b.BollingerBounce.applyTo(&merged.Buy.BollingerBounce)
		if m := b.MACDCross; m != nil {
			dst := &merged.Buy.MACDCross
			set(&dst.Enabled, m.Enabled)
			set(&dst.MinHistogram, m.MinHistogram)
			set(&dst.Weight, m.Weight)
		}
	}

	if s := o.Sell; s != nil {
		if q := s.QuickProfit; q != nil {
			dst := &merged.Sell.QuickProfit
			set(&dst.Enabled, q.Enabled)
			set(&dst.ProfitPct, q.ProfitPct)
			set(&dst.Weight, q.Weight)
		}
		if q := s.SessionEndExit; q != nil {
			dst := &merged.Sell.SessionEndExit
			set(&dst.Enabled, q.Enabled)
			set(&dst.MinutesBeforeClose, q.MinutesBeforeClose)
			set(&dst.Weight, q.Weight)
		}
		if q := s.StopLoss; q != nil {
			dst := &merged.Sell.StopLoss
			set(&dst.Enabled, q.Enabled)
			set(&dst.LossPct, q.LossPct)
			set(&dst.Weight, q.Weight)
		}
		s.RSIOverbought.applyTo(&merged.Sell.RSIOverbought)
		s.ResistanceHit.applyTo(&merged.Sell.ResistanceHit)
	}

	if e := o.Ensemble; e != nil {
		dst := &merged.Ensemble
		set(&dst.BuyThreshold, e.BuyThreshold)
		set(&dst.SellThreshold, e.SellThreshold)
		set(&dst.RuleWeight, e.RuleWeight)
		set(&dst.ClassifierWeight, e.ClassifierWeight)
		set(&dst.ClassifierScale, e.ClassifierScale)
		set(&dst.ClassifierSupportFactor, e.ClassifierSupportFactor)
		set(&dst.NewsWindowHours, e.NewsWindowHours)
	}

	if x := o.Exit; x != nil {
		dst := &merged.Exit
		set(&dst.Profile, x.Profile)
		set(&dst.IntradayTargetMultiplier, x.IntradayTargetMultiplier)
		set(&dst.IntradayStopMultiplier, x.IntradayStopMultiplier)
		set(&dst.SwingTargetMultiplier, x.SwingTargetMultiplier)
		set(&dst.SwingStopMultiplier, x.SwingStopMultiplier)
	}

	if err := merged.Validate(); err != nil {
		return base, err
	}

	merged.Version = base.Version + 1
	return merged, nil
}

func (t *ThresholdOverride) applyTo(dst *ThresholdRule) {
	if t == nil {
		return
	}
	set(&dst.Enabled, t.Enabled)
	set(&dst.Threshold, t.Threshold)
	set(&dst.Weight, t.Weight)
}

func (p *ProximityOverride) applyTo(dst *ProximityRule) {
	if p == nil {
		return
	}
	set(&dst.Enabled, p.Enabled)
	set(&dst.ProximityPct, p.ProximityPct)
	set(&dst.Weight, p.Weight)
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
