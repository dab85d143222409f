// Package metrics provides Prometheus instrumentation for statistics runs.
//
// # Overview
//
// Every Collector owns its own registry, so several engines (or tests) can
// run in one process without duplicate registration. The CLI writes the
// registry in text exposition format with WriteToTextfile, which suits
// node_exporter's textfile collector for batch jobs.
//
// # Basic Usage
//
//	c := metrics.NewCollector()
//	timer := metrics.NewTimer()
//	rows := processChunk(chunk)
//	c.ObserveChunk(metrics.StatusSuccess, rows, timer.Stop())
//	_ = c.WriteToTextfile("colstats.prom")
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "colstats"

// Chunk outcome labels.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Collector groups the metrics recorded by one engine.
type Collector struct {
	registry *prometheus.Registry

	rowsProcessed   *prometheus.CounterVec // rows fed to column aggregates
	chunksProcessed *prometheus.CounterVec // parallel chunks by outcome
	chunkLatency    prometheus.Histogram   // per-chunk wall time
	finalizeLatency prometheus.Histogram   // per-column finalization time
	columns         prometheus.Gauge       // selected columns of the last run
	workers         prometheus.Gauge       // worker pool size of the last run
	throughput      prometheus.Gauge       // rows per second of the last run
}

// NewCollector creates a collector backed by a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		rowsProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_processed_total",
				Help:      "Total number of rows fed to column aggregates",
			},
			[]string{"strategy"},
		),
		chunksProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "chunks_processed_total",
				Help:      "Total number of parallel chunks processed",
			},
			[]string{"status"},
		),
		chunkLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "chunk_duration_seconds",
				Help:      "Time spent aggregating one chunk",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
			},
		),
		finalizeLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "finalize_duration_seconds",
				Help:      "Time spent extracting the record of one column",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
		),
		columns: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "columns",
				Help:      "Number of selected columns",
			},
		),
		workers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers",
				Help:      "Size of the worker pool",
			},
		),
		throughput: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "throughput_rows_per_second",
				Help:      "Rows per second of the last run",
			},
		),
	}
}

// Registry exposes the underlying registry, e.g. for tests or an HTTP
// handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveRun records the shape of a run before it starts.
func (c *Collector) ObserveRun(columns, workers int) {
	c.columns.Set(float64(columns))
	c.workers.Set(float64(workers))
}

// AddRows counts rows processed by strategy ("sequential" or "parallel").
func (c *Collector) AddRows(strategy string, rows int64) {
	c.rowsProcessed.WithLabelValues(strategy).Add(float64(rows))
}

// ObserveChunk records the outcome and duration of one parallel chunk.
func (c *Collector) ObserveChunk(status string, d time.Duration) {
	c.chunksProcessed.WithLabelValues(status).Inc()
	c.chunkLatency.Observe(d.Seconds())
}

// ObserveFinalize records the finalization time of one column.
func (c *Collector) ObserveFinalize(d time.Duration) {
	c.finalizeLatency.Observe(d.Seconds())
}

// WriteToTextfile writes every metric of the collector to path in the
// Prometheus text format. The file is replaced atomically.
func (c *Collector) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks rows per second over a run.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64     // Rows processed since last reset
	lastReset time.Time // Time of last reset
	gauge     prometheus.Gauge
}

// NewThroughputTracker creates a tracker reporting into c.
func (c *Collector) NewThroughputTracker() *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		gauge:     c.throughput,
	}
}

// Increment adds n to the row count. Safe for concurrent use.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset calculates the current throughput (rows/second),
// updates the gauge, resets the counter, and returns the calculated
// throughput. Safe for concurrent use.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	// Reset for next period
	t.count = 0
	t.lastReset = time.Now()

	t.gauge.Set(throughput)

	return throughput
}
