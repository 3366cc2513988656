// Package metrics exposes Prometheus collectors for the conversion pipeline.
//
// Collectors are registered per instance so that several processors (and
// tests) can coexist. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pixelkit"

// Operation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration prometheus.Histogram
	InFlight          prometheus.Gauge
	SurfaceEvictions  prometheus.Counter
	BatchFiles        *prometheus.CounterVec
	Batches           *prometheus.CounterVec
	OutputBytes       prometheus.Counter
}

// New creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of single-image operations by outcome and failure kind",
			},
			[]string{"outcome", "kind"},
		),
		OperationDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Single-image operation duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		InFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "operations_in_flight",
				Help:      "Number of single-image operations currently running",
			},
		),
		SurfaceEvictions: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "surface_evictions_total",
				Help:      "Total number of drawing surfaces reclaimed while busy",
			},
		),
		BatchFiles: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_files_total",
				Help:      "Total number of batch files by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		Batches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Total number of completed batches by mode",
			},
			[]string{"mode"},
		),
		OutputBytes: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "output_bytes_total",
				Help:      "Total number of encoded bytes produced",
			},
		),
	}
}

// OperationStarted marks one operation as in flight.
func (m *Metrics) OperationStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// OperationFinished records the outcome of one operation. kind is empty on success.
func (m *Metrics) OperationFinished(outcome, kind string, elapsed time.Duration, outputBytes int) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.Operations.WithLabelValues(outcome, kind).Inc()
	m.OperationDuration.Observe(elapsed.Seconds())
	if outputBytes > 0 {
		m.OutputBytes.Add(float64(outputBytes))
	}
}

// SurfaceEvicted counts one forced surface eviction.
func (m *Metrics) SurfaceEvicted() {
	if m == nil {
		return
	}
	m.SurfaceEvictions.Inc()
}

// BatchFile counts one processed batch file.
func (m *Metrics) BatchFile(mode, outcome string) {
	if m == nil {
		return
	}
	m.BatchFiles.WithLabelValues(mode, outcome).Inc()
}

// BatchCompleted counts one finalized batch.
func (m *Metrics) BatchCompleted(mode string) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(mode).Inc()
}
