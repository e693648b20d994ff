// Package snapshot builds technical snapshots from stored daily bars.
package snapshot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/sirupsen/logrus"

	"intraday-advisor/database"
	models "intraday-advisor/database/models_pkg"
	"intraday-advisor/signals"
)

const (
	// MinBars covers MACD(12,26,9) plus the previous histogram value
	MinBars = 35
	// lookback loads enough bars for SMA50
	lookback = 60
)

// BarSource is the read side of the market data tables
type BarSource interface {
	GetCompanyID(ctx context.Context, ticker string) (int64, error)
	GetRecentBars(ctx context.Context, companyID int64, limit int) ([]models.PriceBar, error)
}

// Provider computes TechnicalSnapshots with go-talib
type Provider struct {
	bars BarSource
	log  *logrus.Logger
	now  func() time.Time
}

// NewProvider creates a snapshot provider over the given bar source
func NewProvider(bars BarSource, log *logrus.Logger) *Provider {
	return &Provider{bars: bars, log: log, now: time.Now}
}

// WithClock overrides the snapshot timestamp source
func (p *Provider) WithClock(now func() time.Time) *Provider {
	p.now = now
	return p
}

// GetSnapshot loads recent bars for ticker and computes its indicators.
// Unknown tickers and short histories return ErrNoData; store failures
// return a *TransientFetchError.
func (p *Provider) GetSnapshot(ctx context.Context, ticker string) (signals.TechnicalSnapshot, error) {
	ticker = strings.ToUpper(ticker)

	companyID, err := p.bars.GetCompanyID(ctx, ticker)
	if err != nil {
		if database.IsNotFound(err) {
			return signals.TechnicalSnapshot{}, fmt.Errorf("%s: %w", ticker, ErrNoData)
		}
		return signals.TechnicalSnapshot{}, &TransientFetchError{Ticker: ticker, Err: err}
	}

	bars, err := p.bars.GetRecentBars(ctx, companyID, lookback)
	if err != nil {
		return signals.TechnicalSnapshot{}, &TransientFetchError{Ticker: ticker, Err: err}
	}
	if len(bars) < MinBars {
		p.log.WithFields(logrus.Fields{"ticker": ticker, "bars": len(bars)}).Debug("⚠️ Not enough bars for snapshot")
		return signals.TechnicalSnapshot{}, fmt.Errorf("%s has %d bars, need %d: %w", ticker, len(bars), MinBars, ErrNoData)
	}

	snap := Compute(ticker, bars)
	snap.Timestamp = p.now()
	return snap, nil
}

// Compute derives a snapshot from chronological bars (len >= MinBars).
// Indicators needing more history than available are left at zero.
func Compute(ticker string, bars []models.PriceBar) signals.TechnicalSnapshot {
	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		volumes[i] = b.Volume
	}

	last := n - 1
	snap := signals.TechnicalSnapshot{
		Ticker: ticker,
		Price:  closes[last],
		Volume: volumes[last],
	}

	snap.SMA5 = smaLast(closes, 5)
	snap.SMA10 = smaLast(closes, 10)
	snap.SMA20 = smaLast(closes, 20)
	snap.SMA50 = smaLast(closes, 50)

	snap.RSI = talib.Rsi(closes, 14)[last]

	macd, signal, hist := talib.Macd(closes, 12, 26, 9)
	snap.MACD = macd[last]
	snap.MACDSignal = signal[last]
	snap.MACDHistogram = hist[last]
	snap.PrevMACDHistogram = hist[last-1]

	upper, middle, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
	snap.BBUpper = upper[last]
	snap.BBMiddle = middle[last]
	snap.BBLower = lower[last]

	snap.High20 = talib.Max(highs, 20)[last]

	// Average volume of the 20 bars before today
	snap.AvgVolume = smaLast(volumes[:last], 20)

	snap.PriceChange1d = pctChange(closes[last-1], closes[last])
	if n > 5 {
		snap.PriceChange5d = pctChange(closes[last-5], closes[last])
	}

	return snap
}

// smaLast is the latest SMA value, 0 when the series is shorter than period
func smaLast(series []float64, period int) float64 {
	if len(series) < period {
		return 0
	}
	return talib.Sma(series, period)[len(series)-1]
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}
