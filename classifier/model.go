// Package classifier scores snapshots with a logistic model loaded from YAML.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"intraday-advisor/signals"
)

// Prediction is the classifier's buy vote for one snapshot
type Prediction = signals.ClassifierResult

// Feature names accepted in the model file
const (
	FeatureRSI           = "rsi"
	FeatureMACDHistogram = "macd_histogram"
	FeatureChange1d      = "price_change_1d"
	FeatureChange5d      = "price_change_5d"
	FeatureVolumeRatio   = "volume_ratio"
	FeatureBBPosition    = "bb_position"
	FeatureSMAGap        = "sma20_gap"
)

// Spec is the on-disk model definition
type Spec struct {
	Name      string             `yaml:"name"`
	Bias      float64            `yaml:"bias"`
	Threshold float64            `yaml:"threshold"`
	Weights   map[string]float64 `yaml:"weights"`
}

// Model is a loaded logistic classifier. A zero Model is unavailable.
type Model struct {
	spec      Spec
	available bool
}

// Load reads a model file. A missing file yields an unavailable model
// and no error; a malformed one is an error.
func Load(path string, log *logrus.Logger) (*Model, error) {
	if path == "" {
		log.Info("🧠 No classifier model configured, running rules only")
		return &Model{}, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.WithField("path", path).Warn("⚠️ Classifier model file not found, running rules only")
		return &Model{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read classifier model: %w", err)
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse classifier model: %w", err)
	}

	m, err := New(spec)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"model": spec.Name, "features": len(spec.Weights)}).Info("🧠 Classifier model loaded")
	return m, nil
}

// New validates spec and builds an available model
func New(spec Spec) (*Model, error) {
	if len(spec.Weights) == 0 {
		return nil, errors.New("classifier model has no weights")
	}
	for name := range spec.Weights {
		if _, ok := extractors[name]; !ok {
			return nil, fmt.Errorf("classifier model: unknown feature %q", name)
		}
	}
	if spec.Threshold == 0 {
		spec.Threshold = 0.5
	}
	if spec.Threshold <= 0 || spec.Threshold >= 1 {
		return nil, fmt.Errorf("classifier model: threshold %.2f outside (0,1)", spec.Threshold)
	}
	return &Model{spec: spec, available: true}, nil
}

// Available reports whether predictions carry a vote
func (m *Model) Available() bool {
	return m != nil && m.available
}

// Name returns the model name from the file
func (m *Model) Name() string {
	if m == nil {
		return ""
	}
	return m.spec.Name
}

// Predict scores the snapshot. Confidence is the modelled probability of a
// rise; the model votes buy when it reaches the threshold.
func (m *Model) Predict(_ context.Context, snap signals.TechnicalSnapshot) Prediction {
	if !m.Available() {
		return Prediction{}
	}

	z := m.spec.Bias
	for name, w := range m.spec.Weights {
		z += w * extractors[name](snap)
	}
	p := 1 / (1 + math.Exp(-z))

	return Prediction{
		Available:  true,
		Buy:        p >= m.spec.Threshold,
		Confidence: p,
	}
}

var extractors = map[string]func(signals.TechnicalSnapshot) float64{
	FeatureRSI:           func(s signals.TechnicalSnapshot) float64 { return s.RSI },
	FeatureMACDHistogram: func(s signals.TechnicalSnapshot) float64 { return s.MACDHistogram },
	FeatureChange1d:      func(s signals.TechnicalSnapshot) float64 { return s.PriceChange1d },
	FeatureChange5d:      func(s signals.TechnicalSnapshot) float64 { return s.PriceChange5d },
	FeatureVolumeRatio:   func(s signals.TechnicalSnapshot) float64 { return s.VolumeRatio() },
	FeatureBBPosition: func(s signals.TechnicalSnapshot) float64 {
		width := s.BBUpper - s.BBLower
		if width <= 0 {
			return 0.5
		}
		return (s.Price - s.BBLower) / width
	},
	FeatureSMAGap: func(s signals.TechnicalSnapshot) float64 {
		if s.SMA20 <= 0 {
			return 0
		}
		return (s.Price - s.SMA20) / s.SMA20 * 100
	},
}
