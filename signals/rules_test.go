package signals

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intraday-advisor/config"
)

func floatPtr(v float64) *float64 { return &v }

// onlyRule returns a config with every rule disabled except kind
func onlyRule(kind RuleKind) config.RuleConfig {
	cfg := disableAll(config.DefaultRuleConfig())
	enable(&cfg, kind, true)
	return cfg
}

func disableAll(cfg config.RuleConfig) config.RuleConfig {
	for _, k := range append(append([]RuleKind{}, BuyRules...), SellRules...) {
		enable(&cfg, k, false)
	}
	return cfg
}

func enable(cfg *config.RuleConfig, kind RuleKind, on bool) {
	switch kind {
	case PriceDrop:
		cfg.Buy.PriceDrop.Enabled = on
	case RSIOversold:
		cfg.Buy.RSIOversold.Enabled = on
	case MomentumReversal:
		cfg.Buy.MomentumReversal.Enabled = on
	case BollingerBounce:
		cfg.Buy.BollingerBounce.Enabled = on
	case MACDCross:
		cfg.Buy.MACDCross.Enabled = on
	case QuickProfit:
		cfg.Sell.QuickProfit.Enabled = on
	case SessionEndExit:
		cfg.Sell.SessionEndExit.Enabled = on
	case StopLoss:
		cfg.Sell.StopLoss.Enabled = on
	case RSIOverbought:
		cfg.Sell.RSIOverbought.Enabled = on
	case ResistanceHit:
		cfg.Sell.ResistanceHit.Enabled = on
	}
}

// bullishSnapshot satisfies every buy rule of the default config
func bullishSnapshot() TechnicalSnapshot {
	return TechnicalSnapshot{
		Ticker:            "BBCA",
		Price:             95,
		Volume:            2_000_000,
		AvgVolume:         1_000_000,
		RSI:               25,
		MACDHistogram:     0.4,
		PrevMACDHistogram: -0.2,
		BBLower:           94.5,
		BBMiddle:          100,
		BBUpper:           105.5,
		PriceChange1d:     -3.0,
		PriceChange5d:     -8.0,
	}
}

func TestPriceDropScenario(t *testing.T) {
	snap := TechnicalSnapshot{
		Ticker:        "TLKM",
		Price:         3000,
		Volume:        2_000_000,
		AvgVolume:     1_000_000,
		PriceChange1d: -3.0,
	}
	cfg := onlyRule(PriceDrop)
	cfg.Buy.PriceDrop.DropPct = -2.5
	cfg.Buy.PriceDrop.MinVolumeRatio = 1.8
	cfg.Buy.PriceDrop.Weight = 1.2

	set := EvaluateBuy(snap, cfg)
	require.Len(t, set.Signals, 1)
	assert.Equal(t, PriceDrop, set.Signals[0].Rule)
	assert.InDelta(t, 1.2, set.TotalConfidence, 1e-9)

	cfg.Ensemble.BuyThreshold = 1.2
	result := Evaluate(snap, cfg, SessionState{Open: true, MinutesToClose: 200}, nil, nil, nil)
	assert.Equal(t, Buy, result.Recommendation)
	assert.InDelta(t, 1.2, result.BuyConfidence, 1e-9)
}

func TestQuickProfitScenario(t *testing.T) {
	snap := TechnicalSnapshot{Ticker: "ASII", Price: 101.6, Timestamp: time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC)}
	cfg := onlyRule(QuickProfit)
	cfg.Sell.QuickProfit.ProfitPct = 1.5
	cfg.Sell.QuickProfit.Weight = 1.5
	cfg.Ensemble.SellThreshold = 1.5

	entry := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	set := EvaluateSell(snap, cfg, floatPtr(100), &entry, SessionState{Open: true, MinutesToClose: 300})
	require.Len(t, set.Signals, 1)
	assert.InDelta(t, 1.6, set.Signals[0].Value, 1e-9)
	assert.InDelta(t, 1.5, set.TotalConfidence, 1e-9)
	assert.Contains(t, set.Signals[0].Explanation, "after 60 minutes")

	result := Evaluate(snap, cfg, SessionState{Open: true, MinutesToClose: 300}, &Position{EntryPrice: 100, EntryTime: entry}, nil, nil)
	assert.Equal(t, Sell, result.Recommendation)
	assert.True(t, result.HasPosition)
}

func TestRuleIsolation(t *testing.T) {
	now := time.Date(2024, 3, 4, 15, 45, 0, 0, time.UTC)
	entry := 100.0

	tests := []struct {
		kind    RuleKind
		holds   TechnicalSnapshot
		fails   TechnicalSnapshot
		session SessionState
	}{
		{
			kind:  PriceDrop,
			holds: TechnicalSnapshot{Price: 97, PriceChange1d: -3, Volume: 200, AvgVolume: 100},
			fails: TechnicalSnapshot{Price: 97, PriceChange1d: -3, Volume: 150, AvgVolume: 100},
		},
		{
			kind:  RSIOversold,
			holds: TechnicalSnapshot{Price: 100, RSI: 22},
			fails: TechnicalSnapshot{Price: 100, RSI: 45},
		},
		{
			kind:  MomentumReversal,
			holds: TechnicalSnapshot{Price: 100, PriceChange5d: -7, PriceChange1d: 1.2},
			fails: TechnicalSnapshot{Price: 100, PriceChange5d: -7, PriceChange1d: -0.5},
		},
		{
			kind:  BollingerBounce,
			holds: TechnicalSnapshot{Price: 90.5, BBLower: 90},
			fails: TechnicalSnapshot{Price: 95, BBLower: 90},
		},
		{
			kind:  MACDCross,
			holds: TechnicalSnapshot{Price: 100, PrevMACDHistogram: -0.1, MACDHistogram: 0.05},
			fails: TechnicalSnapshot{Price: 100, PrevMACDHistogram: 0.1, MACDHistogram: 0.2},
		},
		{
			kind:  QuickProfit,
			holds: TechnicalSnapshot{Price: 102},
			fails: TechnicalSnapshot{Price: 101},
		},
		{
			kind:    SessionEndExit,
			holds:   TechnicalSnapshot{Price: 100, Timestamp: now},
			fails:   TechnicalSnapshot{Price: 100, Timestamp: now},
			session: SessionState{Open: true, MinutesToClose: 15},
		},
		{
			kind:  StopLoss,
			holds: TechnicalSnapshot{Price: 98},
			fails: TechnicalSnapshot{Price: 99.5},
		},
		{
			kind:  RSIOverbought,
			holds: TechnicalSnapshot{Price: 100, RSI: 81},
			fails: TechnicalSnapshot{Price: 100, RSI: 60},
		},
		{
			kind:  ResistanceHit,
			holds: TechnicalSnapshot{Price: 109.8, High20: 110},
			fails: TechnicalSnapshot{Price: 100, High20: 110},
		},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			cfg := onlyRule(tt.kind)

			eval := func(snap TechnicalSnapshot, session SessionState) SignalSet {
				if isBuyRule(tt.kind) {
					return EvaluateBuy(snap, cfg)
				}
				return EvaluateSell(snap, cfg, &entry, nil, session)
			}

			fired := eval(tt.holds, tt.session)
			require.Len(t, fired.Signals, 1)
			assert.Equal(t, tt.kind, fired.Signals[0].Rule)

			failSession := tt.session
			if tt.kind == SessionEndExit {
				failSession = SessionState{Open: true, MinutesToClose: 120}
			}
			assert.Empty(t, eval(tt.fails, failSession).Signals)

			// a disabled rule never fires
			enable(&cfg, tt.kind, false)
			assert.Empty(t, eval(tt.holds, tt.session).Signals)
		})
	}
}

func isBuyRule(kind RuleKind) bool {
	for _, k := range BuyRules {
		if k == kind {
			return true
		}
	}
	return false
}

func TestTotalConfidenceIsAdditive(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	snap := bullishSnapshot()
	snap.RSI = 82
	snap.High20 = 95.2
	snap.Timestamp = time.Date(2024, 3, 4, 15, 50, 0, 0, time.UTC)
	entry := 90.0

	for i := 0; i < 200; i++ {
		cfg := disableAll(config.DefaultRuleConfig())
		for _, k := range append(append([]RuleKind{}, BuyRules...), SellRules...) {
			enable(&cfg, k, rng.Intn(2) == 1)
		}
		cfg.Buy.PriceDrop.Weight = rng.Float64() * 3
		cfg.Sell.QuickProfit.Weight = rng.Float64() * 3

		for _, set := range []SignalSet{
			EvaluateBuy(snap, cfg),
			EvaluateSell(snap, cfg, &entry, nil, SessionState{Open: true, MinutesToClose: 10}),
		} {
			sum := 0.0
			for _, s := range set.Signals {
				sum += s.Confidence
			}
			assert.InDelta(t, sum, set.TotalConfidence, 1e-12)
		}
	}
}

func TestRSIConfidenceScalesWithDistance(t *testing.T) {
	cfg := onlyRule(RSIOversold)

	near := EvaluateBuy(TechnicalSnapshot{RSI: 29}, cfg)
	deep := EvaluateBuy(TechnicalSnapshot{RSI: 10}, cfg)
	require.Len(t, near.Signals, 1)
	require.Len(t, deep.Signals, 1)
	assert.Greater(t, deep.TotalConfidence, near.TotalConfidence)
	assert.LessOrEqual(t, deep.TotalConfidence, 2*cfg.Buy.RSIOversold.Weight)

	sellCfg := onlyRule(RSIOverbought)
	extreme := EvaluateSell(TechnicalSnapshot{RSI: 100}, sellCfg, nil, nil, SessionState{})
	require.Len(t, extreme.Signals, 1)
	assert.InDelta(t, 2*sellCfg.Sell.RSIOverbought.Weight, extreme.TotalConfidence, 1e-9)
}

func TestProfitRulesNeedPosition(t *testing.T) {
	cfg := disableAll(config.DefaultRuleConfig())
	enable(&cfg, QuickProfit, true)
	enable(&cfg, StopLoss, true)

	set := EvaluateSell(TechnicalSnapshot{Price: 50}, cfg, nil, nil, SessionState{Open: true})
	assert.Empty(t, set.Signals)
	assert.Zero(t, set.TotalConfidence)
}

func TestRuleKindText(t *testing.T) {
	for _, k := range append(append([]RuleKind{}, BuyRules...), SellRules...) {
		b, err := k.MarshalText()
		require.NoError(t, err)

		var back RuleKind
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, k, back)
	}

	var k RuleKind
	assert.Error(t, k.UnmarshalText([]byte("price_dorp")))
}
