package app

import (
	"github.com/shopspring/decimal"

	"intraday-advisor/config"
	models "intraday-advisor/database/models_pkg"
	"intraday-advisor/signals"
)

var (
	decOne     = decimal.NewFromInt(1)
	decHundred = decimal.NewFromInt(100)
)

// ExitLevels contains the fixed exit prices of a recommendation
type ExitLevels struct {
	Profile string  `json:"profile"`
	Target  float64 `json:"target"`
	Stop    float64 `json:"stop"`
}

// CalculateExitLevels derives target and stop from the entry price and the
// active exit profile. SELL recommendations mirror the bands: the target sits
// below the entry and the stop above it.
func CalculateExitLevels(state string, entry float64, exit config.ExitConfig) ExitLevels {
	targetMul, stopMul := exit.Multipliers()
	t := decimal.NewFromFloat(targetMul)
	s := decimal.NewFromFloat(stopMul)
	if state == signals.Sell {
		t, s = decOne.Sub(t.Sub(decOne)), decOne.Add(decOne.Sub(s))
	}

	e := decimal.NewFromFloat(entry)
	profile := exit.Profile
	if profile == "" {
		profile = config.ProfileIntraday
	}
	return ExitLevels{
		Profile: profile,
		Target:  e.Mul(t).Round(4).InexactFloat64(),
		Stop:    e.Mul(s).Round(4).InexactFloat64(),
	}
}

// DirectionalPnL returns the percent and absolute P&L of a recommendation at
// price. SELL recommendations profit when the price falls.
func DirectionalPnL(state string, entry, price float64) (pct, abs float64) {
	if entry <= 0 {
		return 0, 0
	}
	e := decimal.NewFromFloat(entry)
	diff := decimal.NewFromFloat(price).Sub(e)
	if state == signals.Sell {
		diff = diff.Neg()
	}
	pct = diff.Div(e).Mul(decHundred).Round(4).InexactFloat64()
	abs = diff.Round(4).InexactFloat64()
	return pct, abs
}

// ExitCrossed reports whether price has crossed the target or stop of rec.
// The returned reason is TARGET_REACHED or STOP_LOSS.
func ExitCrossed(rec models.Recommendation, price float64) (string, bool) {
	p := decimal.NewFromFloat(price)
	target := decimal.NewFromFloat(rec.TargetPrice)
	stop := decimal.NewFromFloat(rec.StopPrice)

	if rec.IsBuy() {
		switch {
		case p.GreaterThanOrEqual(target):
			return models.ExitTargetReached, true
		case p.LessThanOrEqual(stop):
			return models.ExitStopLoss, true
		}
		return "", false
	}

	switch {
	case p.LessThanOrEqual(target):
		return models.ExitTargetReached, true
	case p.GreaterThanOrEqual(stop):
		return models.ExitStopLoss, true
	}
	return "", false
}
