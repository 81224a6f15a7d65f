package metrics

import (
	"time"
)

// StateMetrics receives instrumentation from the state store coordinator.
type StateMetrics interface {
	// ObserveOperation records one state operation with its duration and outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// ObserveBatchSize records the number of items in a bulk or transactional request.
	ObserveBatchSize(operation string, items int)

	// RecordRecovery records one missing-object recovery round (schema and
	// table creation followed by a retry).
	RecordRecovery(operation string)

	// RecordEtagMismatch records a conditional write or delete that matched no row.
	RecordEtagMismatch(operation string)
}

// NewStateMetrics creates a new Prometheus-backed StateMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should pass nil to the state service,
// which results in zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	svc := state.NewService(state.WithMetrics(metrics.NewStateMetrics()))
//
//	// Without metrics (zero overhead)
//	svc := state.NewService()
func NewStateMetrics() StateMetrics {
	if !IsEnabled() || newPrometheusStateMetrics == nil {
		return nil
	}
	return newPrometheusStateMetrics()
}

// newPrometheusStateMetrics is implemented in pkg/metrics/prometheus/state.go
// This indirection avoids import cycles while keeping the API clean
var newPrometheusStateMetrics func() StateMetrics

// RegisterStateMetricsConstructor registers the Prometheus state metrics constructor.
// Called by pkg/metrics/prometheus/state.go during package initialization.
func RegisterStateMetricsConstructor(constructor func() StateMetrics) {
	newPrometheusStateMetrics = constructor
}

// ObserveOperation records a state operation if m is non-nil.
//
// Example usage:
//
//	start := time.Now()
//	err := doSet(ctx, req)
//	metrics.ObserveOperation(m, "set", time.Since(start), err)
func ObserveOperation(m StateMetrics, operation string, duration time.Duration, err error) {
	if m != nil {
		m.ObserveOperation(operation, duration, err)
	}
}

// ObserveBatchSize records a batch size if m is non-nil.
func ObserveBatchSize(m StateMetrics, operation string, items int) {
	if m != nil {
		m.ObserveBatchSize(operation, items)
	}
}

// RecordRecovery records a recovery round if m is non-nil.
func RecordRecovery(m StateMetrics, operation string) {
	if m != nil {
		m.RecordRecovery(operation)
	}
}

// RecordEtagMismatch records an etag mismatch if m is non-nil.
func RecordEtagMismatch(m StateMetrics, operation string) {
	if m != nil {
		m.RecordEtagMismatch(operation)
	}
}
