package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/pgstate/pkg/metrics"
	staterrors "github.com/marmos91/pgstate/pkg/state/errors"
)

func init() {
	metrics.RegisterStateMetricsConstructor(func() metrics.StateMetrics {
		return NewStateMetrics()
	})
}

// stateMetrics is the Prometheus implementation of metrics.StateMetrics.
type stateMetrics struct {
	operations     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	batchSize      *prometheus.HistogramVec
	recoveries     *prometheus.CounterVec
	etagMismatches *prometheus.CounterVec
}

// NewStateMetrics creates a new Prometheus-backed StateMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewStateMetrics() metrics.StateMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &stateMetrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgstate_operations_total",
				Help: "Total number of state operations by operation and outcome",
			},
			[]string{"operation", "outcome"}, // outcome: "ok" or an error code
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgstate_operation_duration_seconds",
				Help:    "Duration of state operations in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		batchSize: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgstate_batch_items",
				Help:    "Number of items in bulk and transactional requests",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"operation"},
		),
		recoveries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgstate_recoveries_total",
				Help: "Total number of missing schema/table recovery rounds",
			},
			[]string{"operation"},
		),
		etagMismatches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgstate_etag_mismatches_total",
				Help: "Total number of conditional writes or deletes rejected by etag",
			},
			[]string{"operation"},
		),
	}
}

func (m *stateMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome(err)).Inc()
	m.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *stateMetrics) ObserveBatchSize(operation string, items int) {
	if m == nil {
		return
	}
	m.batchSize.WithLabelValues(operation).Observe(float64(items))
}

func (m *stateMetrics) RecordRecovery(operation string) {
	if m == nil {
		return
	}
	m.recoveries.WithLabelValues(operation).Inc()
}

func (m *stateMetrics) RecordEtagMismatch(operation string) {
	if m == nil {
		return
	}
	m.etagMismatches.WithLabelValues(operation).Inc()
}

// outcome keeps label cardinality bounded to the error code set.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if code := staterrors.CodeOf(err); code != 0 {
		return code.String()
	}
	return "error"
}
