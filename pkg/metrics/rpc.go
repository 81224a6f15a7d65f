package metrics

import (
	"time"
)

// RPCMetrics provides observability for the gRPC component adapter.
//
// Implementations collect per-method request counts, latency and in-flight
// requests. This interface is optional - pass nil to disable metrics
// collection with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	server := dapr.NewServer(cfg, svc, metrics.NewRPCMetrics())
//
//	// Without metrics (pass nil for zero overhead)
//	server := dapr.NewServer(cfg, svc, nil)
type RPCMetrics interface {
	// RecordRequest records a completed call.
	//
	// Parameters:
	//   - method: short gRPC method name (e.g., "Get", "Transact")
	//   - code: gRPC status code name (e.g., "OK", "FailedPrecondition")
	//   - duration: time taken to serve the call
	RecordRequest(method string, code string, duration time.Duration)

	// RecordRequestStart increments the in-flight gauge for method.
	RecordRequestStart(method string)

	// RecordRequestEnd decrements the in-flight gauge for method.
	RecordRequestEnd(method string)
}

// NewRPCMetrics creates a new Prometheus-backed RPCMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewRPCMetrics() RPCMetrics {
	if !IsEnabled() || newPrometheusRPCMetrics == nil {
		return nil
	}
	return newPrometheusRPCMetrics()
}

// newPrometheusRPCMetrics is implemented in pkg/metrics/prometheus/rpc.go
var newPrometheusRPCMetrics func() RPCMetrics

// RegisterRPCMetricsConstructor registers the Prometheus RPC metrics constructor.
// Called by pkg/metrics/prometheus/rpc.go during package initialization.
func RegisterRPCMetricsConstructor(constructor func() RPCMetrics) {
	newPrometheusRPCMetrics = constructor
}
