package config

import (
	"strings"
	"time"

	"github.com/marmos91/pgstate/pkg/adapter/dapr"
	"github.com/marmos91/pgstate/pkg/api"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced; explicit values are preserved. The component
// socket folder is left empty so that DAPR_COMPONENTS_SOCKETS_FOLDER is
// consulted when the server starts.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTelemetryDefaults(&cfg.Telemetry)
	applyServerDefaults(&cfg.Server)
	applyDatabaseDefaults(&cfg.Database)
	applyAPIDefaults(&cfg.API)
}

// applyLoggingDefaults sets logging defaults and normalizes the level.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyTelemetryDefaults sets OpenTelemetry defaults.
func applyTelemetryDefaults(cfg *TelemetryConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}

	applyProfilingDefaults(&cfg.Profiling)
}

// applyProfilingDefaults sets Pyroscope profiling defaults.
func applyProfilingDefaults(cfg *ProfilingConfig) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "http://localhost:4040"
	}

	if len(cfg.ProfileTypes) == 0 {
		cfg.ProfileTypes = []string{
			"cpu",
			"alloc_objects",
			"alloc_space",
			"inuse_objects",
			"inuse_space",
			"goroutines",
		}
	}
}

func applyServerDefaults(cfg *dapr.Config) {
	if cfg.ComponentName == "" {
		cfg.ComponentName = "pgstate"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = 5 * time.Minute
	}
}

func applyAPIDefaults(cfg *api.APIConfig) {
	if cfg.Enabled == nil {
		enabled := true
		cfg.Enabled = &enabled
	}
	cfg.ApplyDefaults()
}

// GetDefaultConfig returns a Config with all default values applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
