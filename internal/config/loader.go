package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables understood by Load.
const (
	EnvPrefix     = "VALYZE_"
	EnvConfigPath = "VALYZE_CONFIG"

	// nestedKeySeparator maps VALYZE_MODEL__BASE_VALUE to model.base_value.
	nestedKeySeparator = "__"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if VALYZE_CONFIG is set
//  3. env (prefix VALYZE_)
//
// A multiplier_factor supplied by file or env replaces the default table
// rather than merging into it.
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// Flat keys keep their underscores; "__" descends into a section.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, nestedKeySeparator, ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if k.Exists("model.multiplier_factor") {
		cfg.Model.MultiplierFactor = nil
	}
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks process-level settings. Model settings are validated when
// the model is constructed.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	case c.Provenance.QueueSize < 0:
		return fmt.Errorf("%w: provenance.queue_size must not be negative", ErrInvalidConfig)
	case c.Provenance.WorkerCount < 0:
		return fmt.Errorf("%w: provenance.worker_count must not be negative", ErrInvalidConfig)
	case c.Provenance.LedgerCapacity < 0:
		return fmt.Errorf("%w: provenance.ledger_capacity must not be negative", ErrInvalidConfig)
	case c.Provenance.MaxQueryLimit < 1:
		return fmt.Errorf("%w: provenance.max_query_limit must be at least 1", ErrInvalidConfig)
	}
	for i := 1; i < len(c.Metrics.LatencyBuckets); i++ {
		if c.Metrics.LatencyBuckets[i] <= c.Metrics.LatencyBuckets[i-1] {
			return fmt.Errorf("%w: metrics.latency_buckets must be strictly increasing", ErrInvalidConfig)
		}
	}
	return nil
}
