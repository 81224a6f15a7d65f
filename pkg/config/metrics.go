package config

import (
	"github.com/marmos91/pgstate/internal/logger"
	"github.com/marmos91/pgstate/pkg/metrics"
)

// MetricsResult holds the sinks created by InitializeMetrics. Both are nil
// when metrics are disabled, which the consumers treat as "record nothing".
type MetricsResult struct {
	State metrics.StateMetrics
	RPC   metrics.RPCMetrics
}

// InitializeMetrics creates the Prometheus registry and the metric sinks when
// metrics are enabled. It must run before the sinks are handed to the
// coordinator and the component server.
//
// The prometheus implementation registers its constructors from init(), so
// the binary must import pkg/metrics/prometheus for the sinks to be non-nil.
func InitializeMetrics(cfg *Config) MetricsResult {
	if !cfg.Metrics.Enabled {
		return MetricsResult{}
	}

	metrics.InitRegistry()

	result := MetricsResult{
		State: metrics.NewStateMetrics(),
		RPC:   metrics.NewRPCMetrics(),
	}
	if result.State == nil || result.RPC == nil {
		logger.Warn("metrics enabled but no implementation registered")
	}
	return result
}
