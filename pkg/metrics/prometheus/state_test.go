package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/pgstate/pkg/metrics"
	staterrors "github.com/marmos91/pgstate/pkg/state/errors"
)

func TestStateMetrics(t *testing.T) {
	metrics.InitRegistry()

	m := metrics.NewStateMetrics()
	require.NotNil(t, m)

	sm, ok := m.(*stateMetrics)
	require.True(t, ok, "constructor registered by init must be used")

	m.ObserveOperation("set", 2*time.Millisecond, nil)
	m.ObserveOperation("set", time.Millisecond, staterrors.NewEtagMismatchError("k1", "stale"))
	m.ObserveOperation("get", time.Millisecond, errors.New("opaque"))
	m.RecordRecovery("set")
	m.RecordEtagMismatch("set")
	m.ObserveBatchSize("bulk_set", 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(sm.operations.WithLabelValues("set", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sm.operations.WithLabelValues("set", "EtagMismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sm.operations.WithLabelValues("get", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sm.recoveries.WithLabelValues("set")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sm.etagMismatches.WithLabelValues("set")))
	assert.Equal(t, 1, testutil.CollectAndCount(sm.batchSize))
}

func TestStateMetrics_NilReceiver(t *testing.T) {
	var m *stateMetrics
	require.NotPanics(t, func() {
		m.ObserveOperation("get", time.Millisecond, nil)
		m.ObserveBatchSize("bulk_get", 1)
		m.RecordRecovery("set")
		m.RecordEtagMismatch("delete")
	})
}
