package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	m := New(reg)

	m.OperationStarted()
	m.OperationFinished(OutcomeSuccess, "", 20*time.Millisecond, 512)
	m.SurfaceEvicted()
	m.BatchFile("compress", OutcomeSuccess)
	m.BatchCompleted("compress")

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}

	assert.Contains(t, names, "pixelkit_operations_total")
	assert.Contains(t, names, "pixelkit_operation_duration_seconds")
	assert.Contains(t, names, "pixelkit_operations_in_flight")
	assert.Contains(t, names, "pixelkit_surface_evictions_total")
	assert.Contains(t, names, "pixelkit_batch_files_total")
	assert.Contains(t, names, "pixelkit_batches_total")
	assert.Contains(t, names, "pixelkit_output_bytes_total")
}

func TestOperationFinished(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.OperationStarted()
	m.OperationStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.InFlight))

	m.OperationFinished(OutcomeSuccess, "", time.Millisecond, 100)
	m.OperationFinished(OutcomeFailure, "ImageLoadFailed", time.Millisecond, 0)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues(OutcomeSuccess, "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues(OutcomeFailure, "ImageLoadFailed")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.OutputBytes))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.OperationStarted()
		m.OperationFinished(OutcomeTimeout, "ProcessTimeout", time.Second, 0)
		m.SurfaceEvicted()
		m.BatchFile("convert", OutcomeFailure)
		m.BatchCompleted("convert")
	})
}
