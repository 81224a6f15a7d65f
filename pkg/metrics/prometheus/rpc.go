package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/pgstate/pkg/metrics"
)

func init() {
	metrics.RegisterRPCMetricsConstructor(func() metrics.RPCMetrics {
		return NewRPCMetrics()
	})
}

// rpcMetrics is the Prometheus implementation of metrics.RPCMetrics.
type rpcMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

// NewRPCMetrics creates a new Prometheus-backed RPCMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewRPCMetrics() metrics.RPCMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &rpcMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgstate_grpc_requests_total",
				Help: "Total number of gRPC calls by method and status code",
			},
			[]string{"method", "code"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgstate_grpc_request_duration_seconds",
				Help:    "Duration of gRPC calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		inFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pgstate_grpc_requests_in_flight",
				Help: "Number of gRPC calls currently being served",
			},
			[]string{"method"},
		),
	}
}

func (m *rpcMetrics) RecordRequest(method, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, code).Inc()
	m.duration.WithLabelValues(method).Observe(duration.Seconds())
}

func (m *rpcMetrics) RecordRequestStart(method string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(method).Inc()
}

func (m *rpcMetrics) RecordRequestEnd(method string) {
	if m == nil {
		return
	}
	m.inFlight.WithLabelValues(method).Dec()
}
