package app

import (
	"sync/atomic"

	"intraday-advisor/config"
)

// RuleHolder shares the active RuleConfig between the scanner, the API and
// the override endpoint. Readers get a copy; writers swap the whole pointer.
type RuleHolder struct {
	current atomic.Pointer[config.RuleConfig]
}

// NewRuleHolder creates a holder seeded with cfg
func NewRuleHolder(cfg config.RuleConfig) *RuleHolder {
	h := &RuleHolder{}
	h.current.Store(&cfg)
	return h
}

// Current returns a copy of the active configuration
func (h *RuleHolder) Current() config.RuleConfig {
	return *h.current.Load()
}

// Apply merges o into the active configuration and swaps it in.
// A rejected override leaves the active configuration untouched.
func (h *RuleHolder) Apply(o config.RuleOverride) (config.RuleConfig, error) {
	for {
		base := h.current.Load()
		merged, err := config.Merge(*base, o)
		if err != nil {
			return *base, err
		}
		if h.current.CompareAndSwap(base, &merged) {
			return merged, nil
		}
	}
}

// Replace installs cfg as is. Used when restoring a persisted override.
func (h *RuleHolder) Replace(cfg config.RuleConfig) {
	h.current.Store(&cfg)
}

// scanOverrideSuffix marks a configuration derived for a single scan
const scanOverrideSuffix = "+scan"

// Derive merges o into a copy of the active configuration without installing
// it. The copy keeps the active version; unless o renames it, its name gets a
// "+scan" suffix so outcomes stay attributable. A nil or empty o returns the
// active configuration.
func (h *RuleHolder) Derive(o *config.RuleOverride) (config.RuleConfig, error) {
	base := h.Current()
	if o == nil || o.IsEmpty() {
		return base, nil
	}
	merged, err := config.Merge(base, *o)
	if err != nil {
		return base, err
	}
	merged.Version = base.Version
	if o.Name == nil {
		merged.Name = base.Name + scanOverrideSuffix
	}
	return merged, nil
}
