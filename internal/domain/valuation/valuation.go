// Package valuation defines the contract for computing valuations from input
// records and the registry of model variants.
package valuation

import (
	"strings"
	"time"

	"github.com/minkalla/valyze/internal/domain/model"
)

// Known model kinds.
const (
	KindRuleBased = "rule_based"
)

// Model computes a valuation for an input record.
//
// Implementations must be safe for concurrent use: Predict reads only
// construction-time configuration and the record it is given. Predict must
// not log, mutate configuration, or block on I/O; observability belongs to
// the caller.
type Model interface {
	Name() string
	Version() string

	// Predict returns a fresh result or a *ModelExecutionError.
	Predict(in model.InputRecord) (model.ValuationResult, error)
}

// Describer is implemented by models that can report their configuration.
type Describer interface {
	Describe() model.ModelInfo
}

// Configuration is supplied once at model construction and never mutated.
// Absent fields fall back to variant defaults.
type Configuration struct {
	Name             string
	Version          string
	BaseValue        *float64
	MultiplierFactor map[string]float64
}

// Option applies a construction option shared by all variants.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used for valuation timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New constructs a model of the given kind. An empty kind selects the
// rule-based scorer.
func New(kind string, cfg Configuration, opts ...Option) (Model, error) {
	switch normalizeKind(kind) {
	case KindRuleBased:
		return NewRuleBased(cfg, opts...)
	default:
		return nil, &ConfigurationError{Field: "kind", Reason: "unknown model kind " + strings.TrimSpace(kind)}
	}
}

// Describe reports a model's identity, including variant details when the
// model implements Describer.
func Describe(m Model) model.ModelInfo {
	if d, ok := m.(Describer); ok {
		return d.Describe()
	}
	return model.ModelInfo{Name: m.Name(), Version: m.Version()}
}

func normalizeKind(kind string) string {
	k := strings.ToLower(strings.TrimSpace(kind))
	if k == "" {
		return KindRuleBased
	}
	return k
}
