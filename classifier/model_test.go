package classifier

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intraday-advisor/signals"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestLoadMissingFileIsUnavailable(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), quietLogger())
	require.NoError(t, err)
	assert.False(t, m.Available())

	p := m.Predict(context.Background(), signals.TechnicalSnapshot{RSI: 20})
	assert.False(t, p.Available)
	assert.False(t, p.Buy)
}

func TestLoadAndPredict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: oversold-v1
bias: 1.5
threshold: 0.6
weights:
  rsi: -0.05
  macd_histogram: 1.0
`), 0o644))

	m, err := Load(path, quietLogger())
	require.NoError(t, err)
	require.True(t, m.Available())
	assert.Equal(t, "oversold-v1", m.Name())

	tests := []struct {
		name    string
		snap    signals.TechnicalSnapshot
		wantBuy bool
	}{
		// z = 1.5 - 1.0 + 0.2 = 0.7 -> p ~ 0.668
		{name: "oversold votes buy", snap: signals.TechnicalSnapshot{RSI: 20, MACDHistogram: 0.2}, wantBuy: true},
		// z = 1.5 - 3.5 = -2 -> p ~ 0.119
		{name: "overbought stays out", snap: signals.TechnicalSnapshot{RSI: 70}, wantBuy: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := m.Predict(context.Background(), tt.snap)
			assert.True(t, p.Available)
			assert.Equal(t, tt.wantBuy, p.Buy)
			assert.Greater(t, p.Confidence, 0.0)
			assert.Less(t, p.Confidence, 1.0)
		})
	}
}

func TestNewRejectsBadModels(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
	}{
		{name: "no weights", spec: Spec{Name: "empty"}},
		{name: "unknown feature", spec: Spec{Weights: map[string]float64{"moon_phase": 1}}},
		{name: "threshold out of range", spec: Spec{Threshold: 1.2, Weights: map[string]float64{"rsi": 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.spec)
			assert.Error(t, err)
		})
	}
}

func TestBBPositionFeature(t *testing.T) {
	m, err := New(Spec{Weights: map[string]float64{FeatureBBPosition: -4}, Bias: 2})
	require.NoError(t, err)

	nearLower := m.Predict(context.Background(), signals.TechnicalSnapshot{Price: 91, BBLower: 90, BBUpper: 110})
	nearUpper := m.Predict(context.Background(), signals.TechnicalSnapshot{Price: 109, BBLower: 90, BBUpper: 110})
	assert.Greater(t, nearLower.Confidence, nearUpper.Confidence)
	assert.True(t, nearLower.Buy)
	assert.False(t, nearUpper.Buy)
}
