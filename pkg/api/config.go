package api

import "time"

// Defaults for the ops HTTP server.
const (
	DefaultPort         = 9090
	DefaultReadTimeout  = 10 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultIdleTimeout  = 60 * time.Second
)

// APIConfig configures the ops HTTP server that serves health probes and,
// when metrics are on, the Prometheus scrape endpoint.
type APIConfig struct {
	// Enabled is nil when unset, which counts as enabled.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// Port to listen on. Default: 9090
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
}

// IsEnabled reports whether the server should run.
func (c *APIConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ApplyDefaults fills zero fields.
func (c *APIConfig) ApplyDefaults() {
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	for _, d := range []struct {
		field *time.Duration
		value time.Duration
	}{
		{&c.ReadTimeout, DefaultReadTimeout},
		{&c.WriteTimeout, DefaultWriteTimeout},
		{&c.IdleTimeout, DefaultIdleTimeout},
	} {
		if *d.field == 0 {
			*d.field = d.value
		}
	}
}
