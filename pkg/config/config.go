// Package config loads the pgstate process configuration.
//
// The process configuration covers everything the sidecar does not send:
// logging, tracing, the component socket, the database pool and the
// operations HTTP server. Component properties (connection string, schema,
// table, tenancy) still arrive through Init.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/pgstate/pkg/adapter/dapr"
	"github.com/marmos91/pgstate/pkg/api"
	"github.com/marmos91/pgstate/pkg/state"
)

// EnvPrefix prefixes every environment override, e.g. PGSTATE_LOGGING_LEVEL.
const EnvPrefix = "PGSTATE"

// Config is the root process configuration.
//
// Precedence, highest first: environment variables, config file, defaults.
type Config struct {
	// Logging controls log output.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry tracing and Pyroscope profiling.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Server configures the pluggable component gRPC server.
	Server dapr.Config `mapstructure:"server" yaml:"server"`

	// Database sizes the connection pool opened on Init.
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// Metrics toggles Prometheus collection. Metrics are served by the
	// operations HTTP server on /metrics.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// API configures the operations HTTP server (health probes, metrics).
	API api.APIConfig `mapstructure:"api" yaml:"api"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level (DEBUG, INFO, WARN, ERROR).
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is the log output format (text, json).
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// TelemetryConfig controls OpenTelemetry distributed tracing.
type TelemetryConfig struct {
	// Enabled turns tracing on. Default: false.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the OTLP gRPC collector address.
	// Default: localhost:4317
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	Insecure bool `mapstructure:"insecure" yaml:"insecure"`

	// SampleRate is the fraction of traces kept (0.0 to 1.0). Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate" validate:"omitempty,gte=0,lte=1" yaml:"sample_rate"`

	// Profiling configures Pyroscope continuous profiling.
	Profiling ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`
}

// ProfilingConfig controls Pyroscope continuous profiling.
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Endpoint is the Pyroscope server URL. Default: http://localhost:4040
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ProfileTypes lists the profiles to collect (cpu, alloc_objects,
	// alloc_space, inuse_objects, inuse_space, goroutines, mutex_count,
	// mutex_duration, block_count, block_duration).
	ProfileTypes []string `mapstructure:"profile_types" yaml:"profile_types"`
}

// DatabaseConfig sizes the database/sql pool and bounds each request.
type DatabaseConfig struct {
	// MaxOpenConns caps open connections. Default: 25
	MaxOpenConns int `mapstructure:"max_open_conns" validate:"omitempty,min=1" yaml:"max_open_conns"`

	// MaxIdleConns caps idle connections. Default: 5
	MaxIdleConns int `mapstructure:"max_idle_conns" validate:"omitempty,min=0" yaml:"max_idle_conns"`

	// ConnMaxLifetime recycles connections after this age. Default: 30m
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`

	// ConnMaxIdleTime closes connections idle for this long. Default: 5m
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`

	// RequestTimeout bounds every state operation. Zero leaves only the
	// caller's deadline.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// Pool returns the pool settings in the form the coordinator takes.
func (c DatabaseConfig) Pool() state.PoolConfig {
	return state.PoolConfig{
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

// MetricsConfig toggles Prometheus metrics collection.
type MetricsConfig struct {
	// Enabled turns collection on. Default: false (zero overhead).
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// An empty configPath searches the default location. A missing file is not
// an error: defaults plus environment overrides are returned.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)
	bindEnvKeys(v)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration and explains how to create it when an
// explicitly requested file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  pgstate init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes cfg as YAML to path.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return writeConfigFile(path, data)
}

func writeConfigFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600: the file may carry a collector endpoint with credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures environment overrides and the config file search.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}

	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// bindEnvKeys registers every config key with viper so that environment
// overrides apply even when the key is absent from the file. AutomaticEnv
// alone only consults the environment for keys viper already knows.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range configKeys(reflect.TypeOf(Config{}), "") {
		_ = v.BindEnv(key)
	}
}

// configKeys walks the mapstructure tags of t and returns dotted leaf keys.
func configKeys(t reflect.Type, prefix string) []string {
	var keys []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := strings.Split(field.Tag.Get("mapstructure"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		ft := field.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft != reflect.TypeOf(time.Duration(0)) {
			keys = append(keys, configKeys(ft, key)...)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks combines the decode hooks for custom field types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// durationDecodeHook converts strings like "30s" or "5m" to time.Duration.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Raw integers are nanoseconds.
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns $XDG_CONFIG_HOME/pgstate, ~/.config/pgstate, or "."
// when no home directory is known.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "pgstate")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "pgstate")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
