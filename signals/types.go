// Package signals turns a technical snapshot into weighted buy/sell evidence
// and blends it with classifier and news input into one recommendation.
//
// Everything here is pure: no I/O, no clocks, no shared state. Callers pass
// the RuleConfig and session state for each evaluation.
package signals

import (
	"time"
)

// Recommendation states
const (
	Buy  = "BUY"
	Sell = "SELL"
	Hold = "HOLD"
	Wait = "WAIT"
)

// TechnicalSnapshot is a point-in-time price/volume/indicator bundle for one ticker
type TechnicalSnapshot struct {
	Ticker    string    `json:"ticker"`
	Timestamp time.Time `json:"timestamp"`

	Price     float64 `json:"price"`
	Volume    float64 `json:"volume"`
	AvgVolume float64 `json:"avg_volume"`

	SMA5  float64 `json:"sma_5"`
	SMA10 float64 `json:"sma_10"`
	SMA20 float64 `json:"sma_20"`
	SMA50 float64 `json:"sma_50"`

	RSI float64 `json:"rsi"`

	MACD              float64 `json:"macd"`
	MACDSignal        float64 `json:"macd_signal"`
	MACDHistogram     float64 `json:"macd_histogram"`
	PrevMACDHistogram float64 `json:"prev_macd_histogram"`

	BBUpper  float64 `json:"bb_upper"`
	BBMiddle float64 `json:"bb_middle"`
	BBLower  float64 `json:"bb_lower"`

	PriceChange1d float64 `json:"price_change_1d"` // percent
	PriceChange5d float64 `json:"price_change_5d"` // percent
	High20        float64 `json:"high_20"`
}

// VolumeRatio is current volume over average volume, 0 without an average
func (s TechnicalSnapshot) VolumeRatio() float64 {
	if s.AvgVolume <= 0 {
		return 0
	}
	return s.Volume / s.AvgVolume
}

// Signal is one rule's fired evidence
type Signal struct {
	Rule        RuleKind `json:"rule"`
	Label       string   `json:"label"`
	Value       float64  `json:"value"`
	Threshold   float64  `json:"threshold"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
}

// SignalSet holds the fired signals of one side.
// TotalConfidence is additive and unbounded, not a probability.
type SignalSet struct {
	Signals         []Signal `json:"signals"`
	TotalConfidence float64  `json:"total_confidence"`
}

func (s *SignalSet) add(sig Signal) {
	s.Signals = append(s.Signals, sig)
	s.TotalConfidence += sig.Confidence
}

// SessionState is the trading-session context for sell rules
type SessionState struct {
	Open           bool
	MinutesToClose int
}

// ClassifierResult is the classifier's view of one snapshot
type ClassifierResult struct {
	Available  bool    `json:"available"`
	Buy        bool    `json:"buy"`
	Confidence float64 `json:"confidence"` // [0,1]
}

// NewsResult is a sentiment-derived confidence modifier
type NewsResult struct {
	Modifier float64 `json:"modifier"`
	Note     string  `json:"note"`
}

// ClassifierContribution records what the classifier added to the buy side
type ClassifierContribution struct {
	Available      bool    `json:"available"`
	Recommendation string  `json:"recommendation"`
	RawConfidence  float64 `json:"raw_confidence"`
	Scaled         float64 `json:"scaled"`
	Weighted       float64 `json:"weighted"`
}

// EvaluationResult is the full outcome of evaluating one ticker
type EvaluationResult struct {
	Ticker   string            `json:"ticker"`
	Snapshot TechnicalSnapshot `json:"snapshot"`

	Buy  SignalSet `json:"buy"`
	Sell SignalSet `json:"sell"`

	BuyConfidence      float64 `json:"buy_confidence"`
	SellConfidence     float64 `json:"sell_confidence"`
	RuleRecommendation string  `json:"rule_recommendation"`

	Classifier *ClassifierContribution `json:"classifier,omitempty"`
	News       *NewsResult             `json:"news,omitempty"`

	Recommendation string `json:"recommendation"`

	HasPosition bool       `json:"has_position"`
	EntryPrice  *float64   `json:"entry_price,omitempty"`
	EntryTime   *time.Time `json:"entry_time,omitempty"`

	ConfigName    string `json:"config_name"`
	ConfigVersion int    `json:"config_version"`
}

// IsActionable reports whether the result is BUY or SELL
func (r EvaluationResult) IsActionable() bool {
	return r.Recommendation == Buy || r.Recommendation == Sell
}

// MaxConfidence is the larger of the integrated buy and sell confidences
func (r EvaluationResult) MaxConfidence() float64 {
	if r.BuyConfidence > r.SellConfidence {
		return r.BuyConfidence
	}
	return r.SellConfidence
}
