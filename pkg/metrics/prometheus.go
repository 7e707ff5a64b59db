// Package metrics provides Prometheus metrics for the backtest pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Stage Metrics - wall time and failures per pipeline stage
	stageDuration *prometheus.HistogramVec
	stageErrors   *prometheus.CounterVec

	// Table Metrics - rows moving through CSV readers and writers
	rowsRead    *prometheus.CounterVec
	rowsWritten *prometheus.CounterVec

	// Archive Metrics - per-run file consolidation
	filesCompiled prometheus.Counter
	filesSkipped  prometheus.Counter

	// Blend Metrics - how forecast rows were combined
	blendedRows     prometheus.Counter
	passthroughRows prometheus.Counter
	droppedRows     prometheus.Counter
	backfilledRows  prometheus.Counter

	// Coverage Metrics - holes in the valid-time grid
	gapsFound    prometheus.Counter
	missingSteps prometheus.Counter

	// PVLive Metrics - upstream API traffic
	pvliveFetches prometheus.Counter
	pvliveRows    prometheus.Counter
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "ukpv",
		subsystem:        "backtest",
		histogramBuckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30, 60, 120, 300, 600},
		registry:         prometheus.DefaultRegisterer,
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	// Initialize metrics
	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	// Ensure metrics are registered on the configured registry (custom by default)
	auto := promauto.With(m.registry)

	// Stage Metrics
	m.stageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stage_duration_seconds",
		Help:      "Histogram of pipeline stage wall time in seconds",
		Buckets:   m.histogramBuckets,
	}, []string{"stage"})

	m.stageErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stage_errors_total",
		Help:      "Total number of pipeline stage failures",
	}, []string{"stage"})

	// Table Metrics
	m.rowsRead = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rows_read_total",
		Help:      "Total number of rows read per table",
	}, []string{"table"})

	m.rowsWritten = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rows_written_total",
		Help:      "Total number of rows written per table",
	}, []string{"table"})

	// Archive Metrics
	m.filesCompiled = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "files_compiled_total",
		Help:      "Total number of per-run forecast files folded into the archive",
	})

	m.filesSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "files_skipped_total",
		Help:      "Total number of unreadable per-run files skipped during compilation",
	})

	// Blend Metrics
	m.blendedRows = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "blended_rows_total",
		Help:      "Total number of output rows mixed from both forecast sources",
	})

	m.passthroughRows = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "passthrough_rows_total",
		Help:      "Total number of output rows taken from a single forecast source",
	})

	m.droppedRows = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dropped_rows_total",
		Help:      "Total number of rows dropped for lacking a usable forecast source",
	})

	m.backfilledRows = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "backfilled_rows_total",
		Help:      "Total number of rows synthesized at the zero horizon",
	})

	// Coverage Metrics
	m.gapsFound = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "gaps_found_total",
		Help:      "Total number of contiguous holes found in the valid-time grid",
	})

	m.missingSteps = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "missing_steps_total",
		Help:      "Total number of half-hour steps absent from the valid-time grid",
	})

	// PVLive Metrics
	m.pvliveFetches = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pvlive_fetches_total",
		Help:      "Total number of PVLive API fetches",
	})

	m.pvliveRows = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "pvlive_rows_total",
		Help:      "Total number of outturn rows returned by PVLive",
	})
}

// RecordStageDuration records the wall time of one pipeline stage in seconds.
func RecordStageDuration(stage string, seconds float64) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordStageError increments the failure counter for a pipeline stage.
func RecordStageError(stage string) {
	globalManager.stageErrors.WithLabelValues(stage).Inc()
}

// RecordRowsRead adds to the rows-read counter for a table.
func RecordRowsRead(table string, n int) {
	globalManager.rowsRead.WithLabelValues(table).Add(float64(n))
}

// RecordRowsWritten adds to the rows-written counter for a table.
func RecordRowsWritten(table string, n int) {
	globalManager.rowsWritten.WithLabelValues(table).Add(float64(n))
}

// RecordFilesCompiled adds to the compiled per-run file counter.
func RecordFilesCompiled(n int) {
	globalManager.filesCompiled.Add(float64(n))
}

// RecordFilesSkipped adds to the skipped per-run file counter.
func RecordFilesSkipped(n int) {
	globalManager.filesSkipped.Add(float64(n))
}

// RecordBlendedRows adds to the blended output row counter.
func RecordBlendedRows(n int) {
	globalManager.blendedRows.Add(float64(n))
}

// RecordPassthroughRows adds to the single-source output row counter.
func RecordPassthroughRows(n int) {
	globalManager.passthroughRows.Add(float64(n))
}

// RecordDroppedRows adds to the dropped row counter.
func RecordDroppedRows(n int) {
	globalManager.droppedRows.Add(float64(n))
}

// RecordBackfilledRows adds to the zero-horizon backfill counter.
func RecordBackfilledRows(n int) {
	globalManager.backfilledRows.Add(float64(n))
}

// RecordGaps adds one scan's holes and missing steps to the coverage counters.
func RecordGaps(found, missingSteps int) {
	globalManager.gapsFound.Add(float64(found))
	globalManager.missingSteps.Add(float64(missingSteps))
}

// RecordPVLiveFetch counts one PVLive API fetch and the rows it returned.
func RecordPVLiveFetch(rows int) {
	globalManager.pvliveFetches.Inc()
	globalManager.pvliveRows.Add(float64(rows))
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
