package signals

import (
	"fmt"
	"math"
	"time"

	"intraday-advisor/config"
)

// RuleKind identifies one technical rule
type RuleKind int

const (
	PriceDrop RuleKind = iota + 1
	RSIOversold
	MomentumReversal
	BollingerBounce
	MACDCross

	QuickProfit
	SessionEndExit
	StopLoss
	RSIOverbought
	ResistanceHit

	// NewsImpact is the synthetic signal appended by the integrator
	NewsImpact
)

// BuyRules and SellRules list the rules in evaluation order
var (
	BuyRules  = []RuleKind{PriceDrop, RSIOversold, MomentumReversal, BollingerBounce, MACDCross}
	SellRules = []RuleKind{QuickProfit, SessionEndExit, StopLoss, RSIOverbought, ResistanceHit}
)

var ruleNames = map[RuleKind]string{
	PriceDrop:        "price_drop",
	RSIOversold:      "rsi_oversold",
	MomentumReversal: "momentum_reversal",
	BollingerBounce:  "bollinger_bounce",
	MACDCross:        "macd_cross",
	QuickProfit:      "quick_profit",
	SessionEndExit:   "session_end_exit",
	StopLoss:         "stop_loss",
	RSIOverbought:    "rsi_overbought",
	ResistanceHit:    "resistance_hit",
	NewsImpact:       "news_impact",
}

func (k RuleKind) String() string {
	if name, ok := ruleNames[k]; ok {
		return name
	}
	return fmt.Sprintf("rule(%d)", int(k))
}

// MarshalText encodes the rule by name
func (k RuleKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a rule name; unknown names are an error
func (k *RuleKind) UnmarshalText(b []byte) error {
	for kind, name := range ruleNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown rule %q", string(b))
}

// maxScale caps distance-scaled RSI confidence at twice the weight
const maxScale = 2.0

// EvaluateBuy runs every enabled buy rule against the snapshot
func EvaluateBuy(snap TechnicalSnapshot, cfg config.RuleConfig) SignalSet {
	var set SignalSet
	for _, kind := range BuyRules {
		if sig, ok := evaluateBuyRule(kind, snap, cfg.Buy); ok {
			set.add(sig)
		}
	}
	return set
}

func evaluateBuyRule(kind RuleKind, snap TechnicalSnapshot, rules config.BuyRules) (Signal, bool) {
	switch kind {
	case PriceDrop:
		r := rules.PriceDrop
		if !r.Enabled {
			return Signal{}, false
		}
		threshold := -math.Abs(r.DropPct)
		ratio := snap.VolumeRatio()
		if snap.PriceChange1d > threshold || ratio < r.MinVolumeRatio {
			return Signal{}, false
		}
		return Signal{
			Rule:        kind,
			Label:       "Price drop with volume",
			Value:       snap.PriceChange1d,
			Threshold:   threshold,
			Confidence:  r.Weight,
			Explanation: fmt.Sprintf("1d change %.2f%% <= %.2f%% on %.2fx average volume", snap.PriceChange1d, threshold, ratio),
		}, true

	case RSIOversold:
		r := rules.RSIOversold
		if !r.Enabled || snap.RSI <= 0 || snap.RSI > r.Threshold {
			return Signal{}, false
		}
		scale := math.Min(1+(r.Threshold-snap.RSI)/r.Threshold, maxScale)
		return Signal{
			Rule:        kind,
			Label:       "RSI oversold",
			Value:       snap.RSI,
			Threshold:   r.Threshold,
			Confidence:  r.Weight * scale,
			Explanation: fmt.Sprintf("RSI %.1f <= %.1f", snap.RSI, r.Threshold),
		}, true

	case MomentumReversal:
		r := rules.MomentumReversal
		if !r.Enabled {
			return Signal{}, false
		}
		decline := -math.Abs(r.Decline5dPct)
		if snap.PriceChange5d > decline || snap.PriceChange1d < r.MinBounce1dPct {
			return Signal{}, false
		}
		return Signal{
			Rule:        kind,
			Label:       "Momentum reversal",
			Value:       snap.PriceChange1d,
			Threshold:   r.MinBounce1dPct,
			Confidence:  r.Weight,
			Explanation: fmt.Sprintf("5d change %.2f%% then 1d bounce %.2f%%", snap.PriceChange5d, snap.PriceChange1d),
		}, true

	case BollingerBounce:
		r := rules.BollingerBounce
		if !r.Enabled || snap.BBLower <= 0 {
			return Signal{}, false
		}
		limit := snap.BBLower * (1 + r.ProximityPct/100)
		if snap.Price > limit {
			return Signal{}, false
		}
		return Signal{
			Rule:        kind,
			Label:       "Bollinger lower band bounce",
			Value:       (snap.Price - snap.BBLower) / snap.BBLower * 100,
			Threshold:   r.ProximityPct,
			Confidence:  r.Weight,
			Explanation: fmt.Sprintf("price %.2f within %.2f%% of lower band %.2f", snap.Price, r.ProximityPct, snap.BBLower),
		}, true

	case MACDCross:
		r := rules.MACDCross
		if !r.Enabled || snap.PrevMACDHistogram > 0 || snap.MACDHistogram <= r.MinHistogram {
			return Signal{}, false
		}
		return Signal{
			Rule:        kind,
			Label:       "MACD bullish cross",
			Value:       snap.MACDHistogram,
			Threshold:   r.MinHistogram,
			Confidence:  r.Weight,
			Explanation: fmt.Sprintf("histogram crossed from %.4f to %.4f", snap.PrevMACDHistogram, snap.MACDHistogram),
		}, true
	}
	return Signal{}, false
}

// EvaluateSell runs every enabled sell rule. entryPrice and entryTime are nil
// when no position is held; profit and stop rules then never fire.
func EvaluateSell(snap TechnicalSnapshot, cfg config.RuleConfig, entryPrice *float64, entryTime *time.Time, session SessionState) SignalSet {
	var set SignalSet
	for _, kind := range SellRules {
		if sig, ok := evaluateSellRule(kind, snap, cfg.Sell, entryPrice, entryTime, session); ok {
			set.add(sig)
		}
	}
	return set
}

func evaluateSellRule(kind RuleKind, snap TechnicalSnapshot, rules config.SellRules, entryPrice *float64, entryTime *time.Time, session SessionState) (Signal, bool) {
	switch kind {
	case QuickProfit:
		r := rules.QuickProfit
		pnl, ok := positionPnlPct(snap.Price, entryPrice)
		if !r.Enabled || !ok || pnl < r.ProfitPct {
			return Signal{}, false
		}
		return Signal{
			Rule:        kind,
			Label:       "Quick profit",
			Value:       pnl,
			Threshold:   r.ProfitPct,
			Confidence:  r.Weight,
			Explanation: fmt.Sprintf("gain %.2f%% >= %.2f%%%s", pnl, r.ProfitPct, holdingNote(snap.Timestamp, entryTime)),
		}, true

	case SessionEndExit:
		r := rules.SessionEndExit
		if !r.Enabled || !session.Open || session.MinutesToClose < 0 || session.MinutesToClose > r.MinutesBeforeClose {
			return Signal{}, false
		}
		return Signal{
			Rule:        kind,
			Label:       "Session ending",
			Value:       float64(session.MinutesToClose),
			Threshold:   float64(r.MinutesBeforeClose),
			Confidence:  r.Weight,
			Explanation: fmt.Sprintf("%d minutes to close", session.MinutesToClose),
		}, true

	case StopLoss:
		r := rules.StopLoss
		pnl, ok := positionPnlPct(snap.Price, entryPrice)
		threshold := -math.Abs(r.LossPct)
		if !r.Enabled || !ok || pnl > threshold {
			return Signal{}, false
		}
		return Signal{
			Rule:        kind,
			Label:       "Stop loss",
			Value:       pnl,
			Threshold:   threshold,
			Confidence:  r.Weight,
			Explanation: fmt.Sprintf("loss %.2f%% <= %.2f%%%s", pnl, threshold, holdingNote(snap.Timestamp, entryTime)),
		}, true

	case RSIOverbought:
		r := rules.RSIOverbought
		if !r.Enabled || snap.RSI < r.Threshold {
			return Signal{}, false
		}
		scale := math.Min(1+(snap.RSI-r.Threshold)/(100-r.Threshold), maxScale)
		return Signal{
			Rule:        kind,
			Label:       "RSI overbought",
			Value:       snap.RSI,
			Threshold:   r.Threshold,
			Confidence:  r.Weight * scale,
			Explanation: fmt.Sprintf("RSI %.1f >= %.1f", snap.RSI, r.Threshold),
		}, true

	case ResistanceHit:
		r := rules.ResistanceHit
		if !r.Enabled || snap.High20 <= 0 {
			return Signal{}, false
		}
		limit := snap.High20 * (1 - r.ProximityPct/100)
		if snap.Price < limit {
			return Signal{}, false
		}
		return Signal{
			Rule:        kind,
			Label:       "Resistance hit",
			Value:       snap.Price,
			Threshold:   limit,
			Confidence:  r.Weight,
			Explanation: fmt.Sprintf("price %.2f within %.2f%% of 20-bar high %.2f", snap.Price, r.ProximityPct, snap.High20),
		}, true
	}
	return Signal{}, false
}

func positionPnlPct(price float64, entryPrice *float64) (float64, bool) {
	if entryPrice == nil || *entryPrice <= 0 {
		return 0, false
	}
	return (price - *entryPrice) / *entryPrice * 100, true
}

func holdingNote(now time.Time, entryTime *time.Time) string {
	if entryTime == nil || now.IsZero() || now.Before(*entryTime) {
		return ""
	}
	return fmt.Sprintf(" after %d minutes", int(now.Sub(*entryTime).Minutes()))
}
