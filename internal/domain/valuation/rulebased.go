package valuation

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/minkalla/valyze/internal/domain/model"
)

// Rule-based scorer defaults and constants.
const (
	DefaultName          = "SimpleValuationModel"
	DefaultVersion       = "0.1.0-mvp"
	DefaultBaseValue     = 100.0
	DefaultPriorityLabel = "low_priority"
	DefaultMultiplier    = 1.0
	SensitivityPremium   = 1.2
	RuleBasedConfidence  = 0.85
	scorePrecision       = 2
)

// DefaultMultipliers returns the multiplier table used when none is configured.
func DefaultMultipliers() map[string]float64 {
	return map[string]float64{
		"high_priority": 1.5,
		"low_priority":  0.5,
	}
}

// RuleBased scores a record as base_value times the multiplier of its
// priority label, with a premium for sensitive records. value_points are
// not consulted.
type RuleBased struct {
	name        string
	version     string
	baseValue   float64
	multipliers map[string]float64
	now         func() time.Time
}

// NewRuleBased creates a rule-based scorer. Absent fields take defaults;
// non-finite values and negative multipliers are rejected.
func NewRuleBased(cfg Configuration, opts ...Option) (*RuleBased, error) {
	o := buildOptions(opts)
	m := &RuleBased{
		name:      strings.TrimSpace(cfg.Name),
		version:   strings.TrimSpace(cfg.Version),
		baseValue: DefaultBaseValue,
		now:       o.now,
	}
	if m.name == "" {
		m.name = DefaultName
	}
	if m.version == "" {
		m.version = DefaultVersion
	}

	if cfg.BaseValue != nil {
		if !isFinite(*cfg.BaseValue) {
			return nil, &ConfigurationError{Field: "base_value", Reason: "must be a finite number"}
		}
		m.baseValue = *cfg.BaseValue
	}

	source := cfg.MultiplierFactor
	if source == nil {
		source = DefaultMultipliers()
	}
	// Copy the map so callers cannot change the model after construction;
	// labels are matched case-insensitively.
	m.multipliers = make(map[string]float64, len(source))
	for label, factor := range source {
		key := strings.ToLower(strings.TrimSpace(label))
		field := "multiplier_factor." + label
		switch {
		case key == "":
			return nil, &ConfigurationError{Field: "multiplier_factor", Reason: "empty priority label"}
		case !isFinite(factor):
			return nil, &ConfigurationError{Field: field, Reason: "must be a finite number"}
		case factor < 0:
			return nil, &ConfigurationError{Field: field, Reason: "must not be negative"}
		}
		if existing, dup := m.multipliers[key]; dup && existing != factor {
			return nil, &ConfigurationError{Field: field, Reason: "conflicts with another label differing only in case"}
		}
		m.multipliers[key] = factor
	}

	return m, nil
}

// Name returns the configured model name.
func (m *RuleBased) Name() string { return m.name }

// Version returns the configured model version.
func (m *RuleBased) Version() string { return m.version }

// Predict computes the valuation for in.
func (m *RuleBased) Predict(in model.InputRecord) (model.ValuationResult, error) {
	label := DefaultPriorityLabel
	if p, ok := in.PriorityLabel(); ok {
		label = p
	}
	label = strings.ToLower(strings.TrimSpace(label))

	multiplier, ok := m.multipliers[label]
	if !ok {
		multiplier = DefaultMultiplier
	}

	score := m.baseValue * multiplier
	if in.IsSensitive {
		score *= SensitivityPremium
	}

	score = Round(score, scorePrecision)
	if !isFinite(score) {
		return model.ValuationResult{}, &ModelExecutionError{
			DataID: in.DataID,
			Model:  m.name,
			Cause:  fmt.Errorf("non-finite valuation score for priority %q", label),
		}
	}

	return model.ValuationResult{
		ValuationScore:     score,
		ConfidenceScore:    RuleBasedConfidence,
		ValuationTimestamp: m.now().UTC(),
		ModelUsed:          m.name,
		ModelVersion:       m.version,
	}, nil
}

// Describe reports the scorer's configuration.
func (m *RuleBased) Describe() model.ModelInfo {
	multipliers := make(map[string]float64, len(m.multipliers))
	for k, v := range m.multipliers {
		multipliers[k] = v
	}
	return model.ModelInfo{
		Kind:             KindRuleBased,
		Name:             m.name,
		Version:          m.version,
		BaseValue:        m.baseValue,
		MultiplierFactor: multipliers,
		ConfidenceScore:  RuleBasedConfidence,
	}
}

// Round rounds v to the given number of decimal places, halves away from zero.
// Values too large to scale are returned unchanged; they carry no fraction.
func Round(v float64, places int) float64 {
	p := math.Pow10(places)
	scaled := v * p
	if !isFinite(scaled) {
		return v
	}
	return math.Round(scaled) / p
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
