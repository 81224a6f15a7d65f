package telemetry

import sdktrace "go.opentelemetry.io/otel/sdk/trace"

// Config selects where traces go and how many are kept.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC collector address, host:port.
	Endpoint string

	// Insecure disables TLS towards the collector.
	Insecure bool

	// SampleRate is the fraction of root spans kept, clamped to [0, 1].
	SampleRate float64
}

// DefaultConfig returns tracing disabled, pointed at a local collector.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "pgstate",
		ServiceVersion: "dev",
		Endpoint:       "localhost:4317",
		Insecure:       true,
		SampleRate:     1.0,
	}
}

// sampler honours the parent's decision and samples new roots by SampleRate.
func (c Config) sampler() sdktrace.Sampler {
	var root sdktrace.Sampler
	switch {
	case c.SampleRate >= 1:
		root = sdktrace.AlwaysSample()
	case c.SampleRate <= 0:
		root = sdktrace.NeverSample()
	default:
		root = sdktrace.TraceIDRatioBased(c.SampleRate)
	}
	return sdktrace.ParentBased(root)
}
