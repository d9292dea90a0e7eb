package config_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/minkalla/valyze/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8000")
				convey.So(cfg.Model.Name, convey.ShouldEqual, "MVP_SimpleValuer")
				convey.So(cfg.Model.Version, convey.ShouldEqual, "0.1.0")
				convey.So(cfg.Model.BaseValue, convey.ShouldEqual, 100.0)
				convey.So(cfg.Model.MultiplierFactor, convey.ShouldContainKey, "critical")
				convey.So(cfg.Server.ExposeErrorDetail, convey.ShouldBeTrue)
				convey.So(cfg.Provenance.LedgerPath, convey.ShouldEqual, "")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("VALYZE_ADDR", ":8080")
			_ = os.Setenv("VALYZE_LOG_LEVEL", "debug")
			_ = os.Setenv("VALYZE_MODEL__NAME", "EnvValuer")
			_ = os.Setenv("VALYZE_MODEL__BASE_VALUE", "42.5")
			_ = os.Setenv("VALYZE_SERVER__EXPOSE_ERROR_DETAIL", "false")
			_ = os.Setenv("VALYZE_PROVENANCE__QUEUE_SIZE", "64")
			_ = os.Setenv("VALYZE_PROVENANCE__LEDGER_PATH", "/tmp/ledger.db")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.Model.Name, convey.ShouldEqual, "EnvValuer")
				convey.So(cfg.Model.BaseValue, convey.ShouldEqual, 42.5)
				convey.So(cfg.Server.ExposeErrorDetail, convey.ShouldBeFalse)
				convey.So(cfg.Provenance.QueueSize, convey.ShouldEqual, 64)
				convey.So(cfg.Provenance.LedgerPath, convey.ShouldEqual, "/tmp/ledger.db")
				convey.So(cfg.Model.Version, convey.ShouldEqual, "0.1.0") // untouched default
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
addr: ":9090"
log_format: json
model:
  name: DemoMLModel
  version: 0.1-alpha
  base_value: 50
  multiplier_factor:
    critical: 2.0
    normal: 1.0
provenance:
  worker_count: 4
metrics:
  const_labels:
    instance: valyze-1
  latency_buckets: [1, 10, 100]
`
			tmpFile := createTempConfigFile(t, yamlContent)
			_ = os.Setenv("VALYZE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.Model.Name, convey.ShouldEqual, "DemoMLModel")
				convey.So(cfg.Model.Version, convey.ShouldEqual, "0.1-alpha")
				convey.So(cfg.Model.BaseValue, convey.ShouldEqual, 50.0)
				convey.So(cfg.Provenance.WorkerCount, convey.ShouldEqual, 4)
				convey.So(cfg.Provenance.QueueSize, convey.ShouldEqual, 10_000) // From defaults
				convey.So(cfg.Metrics.Namespace, convey.ShouldEqual, "valyze")
				convey.So(cfg.Metrics.ConstLabels, convey.ShouldResemble, map[string]string{"instance": "valyze-1"})
				convey.So(cfg.Metrics.LatencyBuckets, convey.ShouldResemble, []float64{1, 10, 100})
			})

			convey.Convey("And the multiplier table should replace the defaults", func() {
				convey.So(cfg.Model.MultiplierFactor, convey.ShouldResemble, map[string]float64{
					"critical": 2.0,
					"normal":   1.0,
				})
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
addr: ":9090"
model:
  name: FileValuer
`
			tmpFile := createTempConfigFile(t, yamlContent)
			_ = os.Setenv("VALYZE_CONFIG", tmpFile)
			_ = os.Setenv("VALYZE_MODEL__NAME", "EnvValuer")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")           // From file
				convey.So(cfg.Model.Name, convey.ShouldEqual, "EnvValuer") // Overridden by env
			})
		})

		convey.Convey("When setting a multiplier through the environment", func() {
			_ = os.Setenv("VALYZE_MODEL__MULTIPLIER_FACTOR__GOLD", "3")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then the table should contain only that label", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Model.MultiplierFactor, convey.ShouldResemble, map[string]float64{"gold": 3})
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("VALYZE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("VALYZE_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("VALYZE_MODEL__BASE_VALUE", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("VALYZE_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(cfg, convey.ShouldBeNil)
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
			})
		})

		convey.Convey("When loading config with an unknown log format", func() {
			_ = os.Setenv("VALYZE_LOG_FORMAT", "xml")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the latency buckets are not increasing", func() {
			tmpFile := createTempConfigFile(t, "metrics:\n  latency_buckets: [10, 1]\n")
			_ = os.Setenv("VALYZE_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "latency_buckets")
			})
		})

		convey.Convey("When loading config with negative provenance sizes", func() {
			_ = os.Setenv("VALYZE_PROVENANCE__WORKER_COUNT", "-1")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "worker_count")
			})
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				key := kv[:i]
				if len(key) >= len(config.EnvPrefix) && key[:len(config.EnvPrefix)] == config.EnvPrefix {
					_ = os.Unsetenv(key)
				}
				break
			}
		}
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	tmpFile, err := os.CreateTemp(t.TempDir(), "valyze-config-*.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	if err := tmpFile.Close(); err != nil {
		t.Fatal(err)
	}
	return tmpFile.Name()
}
