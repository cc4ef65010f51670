// Package metrics provides performance tracking and observability for Stratus
// using Prometheus metrics. It tracks connector occupancy, buffer and row
// throughput per operator, worker exits and preparation latency.
//
// # Basic Usage
//
//	// Record a buffer pushed into an operator's connector
//	metrics.BuffersPushed.WithLabelValues("batch").Inc()
//
//	// Track preparation latency
//	timer := metrics.NewTimer("prepare")
//	err := tree.Prepare(ctx)
//	metrics.PrepareLatency.WithLabelValues(metrics.Status(err)).Observe(timer.Stop().Seconds())
//
//	// Track throughput
//	tracker := metrics.NewThroughputTracker("source")
//	tracker.Increment(int64(buf.NumRows()))
//	rowsPerSec := tracker.GetAndReset()
//
// # Metric Types
//
// Counter: monotonically increasing values (buffers pushed, rows produced)
// Gauge: values that go up and down (connector depth)
// Histogram: distributions (preparation latency)
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuffersPushed counts data buffers pushed into an operator's output connector.
	// Labels: operator
	BuffersPushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratus_connector_buffers_pushed_total",
			Help: "Total number of data buffers pushed into a connector",
		},
		[]string{"operator"},
	)

	// BuffersPopped counts data buffers popped from an operator's output connector.
	// Labels: operator
	BuffersPopped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratus_connector_buffers_popped_total",
			Help: "Total number of data buffers popped from a connector",
		},
		[]string{"operator"},
	)

	// ConnectorDepth tracks the number of buffers waiting in a connector.
	// Labels: operator
	ConnectorDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stratus_connector_depth",
			Help: "Current number of buffers held by a connector",
		},
		[]string{"operator"},
	)

	// RowsProduced counts rows an operator pushed downstream.
	// Labels: operator
	RowsProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratus_rows_produced_total",
			Help: "Total number of rows produced by an operator",
		},
		[]string{"operator"},
	)

	// WorkerExits counts worker loop exits by reason.
	// Labels: operator, reason (end_of_data, cancelled, upstream_error, failed)
	WorkerExits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratus_worker_exits_total",
			Help: "Total number of worker loop exits by reason",
		},
		[]string{"operator", "reason"},
	)

	// PrepareLatency tracks how long tree preparation takes, in seconds.
	// Labels: status (success/failure)
	PrepareLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "stratus_tree_prepare_duration_seconds",
			Help: "Execution tree preparation latency in seconds",
			Buckets: []float64{
				0.0001, // 100µs - in-memory generators
				0.001,  // 1ms
				0.01,   // 10ms - small local files
				0.1,    // 100ms
				1,      // 1s - remote objects, database queries
				10,     // 10s - large remote datasets
			},
		},
		[]string{"status"},
	)

	// Throughput tracks rows per second of an operator
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stratus_throughput_rows_per_second",
			Help: "Current throughput in rows per second",
		},
		[]string{"operator"},
	)
)

// Status maps an error to the status label used by PrepareLatency
func Status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// Timer provides a simple timing mechanism for measuring operation durations.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer's label
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. The timer can be stopped
// multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks rows per second over time windows for one operator.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64     // Rows since last reset
	lastReset time.Time // Time of last reset
	operator  string
}

// NewThroughputTracker creates a new throughput tracker for an operator.
func NewThroughputTracker(operator string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset: time.Now(),
		operator:  operator,
	}
}

// Increment adds n to the row count. Safe for concurrent use.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset calculates the current throughput (rows/second),
// updates the Prometheus metric, resets the counter, and returns
// the calculated throughput. Safe for concurrent use.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed

	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.operator).Set(throughput)

	return throughput
}
