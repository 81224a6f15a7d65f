// Package metrics defines the metrics interfaces used by the state store and
// owns the Prometheus registry they report into.
//
// Metrics are opt-in. Until InitRegistry is called every constructor returns
// nil and every helper accepts a nil receiver, so uninstrumented code paths
// pay nothing.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// InitRegistry creates the process registry with Go runtime and process
// collectors. Calling it more than once returns the existing registry.
func InitRegistry() *prometheus.Registry {
	registryMu.Lock()
	defer registryMu.Unlock()

	if registry != nil {
		return registry
	}

	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry
}

// GetRegistry returns the process registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// IsEnabled returns whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// resetRegistry drops the registry. Tests only.
func resetRegistry() {
	registryMu.Lock()
	registry = nil
	registryMu.Unlock()
}
