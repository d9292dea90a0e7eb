// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load(ctx) layers defaults, an optional YAML file and environment variables.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"github.com/minkalla/valyze/internal/domain/valuation"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	Server     ServerConfig     `koanf:"server"`
	Model      ModelConfig      `koanf:"model"`
	Provenance ProvenanceConfig `koanf:"provenance"`
	Metrics    MetricsConfig    `koanf:"metrics"`
}

// ServerConfig tunes the HTTP surface.
type ServerConfig struct {
	// ExposeErrorDetail includes the model's diagnostic text in 500 responses.
	ExposeErrorDetail bool `koanf:"expose_error_detail"`
}

// ModelConfig selects and configures the valuation model.
type ModelConfig struct {
	Kind             string             `koanf:"kind"`
	Name             string             `koanf:"name"`
	Version          string             `koanf:"version"`
	BaseValue        float64            `koanf:"base_value"`
	MultiplierFactor map[string]float64 `koanf:"multiplier_factor"`
}

// ProvenanceConfig sizes the provenance pipeline and ledger.
type ProvenanceConfig struct {
	// QueueSize bounds the in-memory provenance queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of provenance workers.
	WorkerCount int `koanf:"worker_count"`

	// LedgerPath enables the SQLite ledger when set; otherwise an in-memory ledger is used.
	LedgerPath string `koanf:"ledger_path"`

	// LedgerCapacity caps the in-memory ledger.
	LedgerCapacity int `koanf:"ledger_capacity"`

	// MaxQueryLimit caps GET /valyze/provenance/{data_id}?limit.
	MaxQueryLimit int `koanf:"max_query_limit"`
}

// MetricsConfig shapes the Prometheus registry.
type MetricsConfig struct {
	Namespace   string            `koanf:"namespace"`
	Subsystem   string            `koanf:"subsystem"`
	ConstLabels map[string]string `koanf:"const_labels"`

	// LatencyBuckets are histogram bounds in milliseconds.
	LatencyBuckets []float64 `koanf:"latency_buckets"`
}

// Valuation converts the model section into a model construction configuration.
func (m ModelConfig) Valuation() valuation.Configuration {
	base := m.BaseValue
	var multipliers map[string]float64
	if m.MultiplierFactor != nil {
		multipliers = make(map[string]float64, len(m.MultiplierFactor))
		for k, v := range m.MultiplierFactor {
			multipliers[k] = v
		}
	}
	return valuation.Configuration{
		Name:             m.Name,
		Version:          m.Version,
		BaseValue:        &base,
		MultiplierFactor: multipliers,
	}
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Addr:      ":8000",
		Server: ServerConfig{
			ExposeErrorDetail: true,
		},
		Model: ModelConfig{
			Kind:      valuation.KindRuleBased,
			Name:      "MVP_SimpleValuer",
			Version:   "0.1.0",
			BaseValue: 100,
			MultiplierFactor: map[string]float64{
				"high_priority": 1.5,
				"critical":      2.0,
				"normal":        1.0,
				"low":           0.5,
			},
		},
		Provenance: ProvenanceConfig{
			QueueSize:      10_000,
			WorkerCount:    2,
			LedgerCapacity: 10_000,
			MaxQueryLimit:  100,
		},
		Metrics: MetricsConfig{
			Namespace: "valyze",
			Subsystem: "engine",
		},
	}
}
