// Package metrics provides custom Prometheus metrics for the waveform
// derivation pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains all Prometheus metrics related to waveform task
// processing.
type PipelineMetrics struct {
	// Task lifecycle metrics
	TasksTotal        *prometheus.CounterVec   // Tasks by type and terminal status
	TaskDuration      *prometheus.HistogramVec // Handler wall time by type
	TaskRetriesTotal  *prometheus.CounterVec   // Retry attempts by type
	TaskErrorsTotal   *prometheus.CounterVec   // Errors by type and error category
	TasksInFlight     prometheus.Gauge         // Currently executing handlers
	QueueBacklog      prometheus.Gauge         // Pending tasks reported by the queue

	// Artifact cache metrics
	CacheLookupsTotal *prometheus.CounterVec // Cache checks by result (hit, miss, stale)
	ArtifactBytes     prometheus.Histogram   // Size of generated artifacts

	// Dependency breaker state (0=closed, 1=half-open, 2=open)
	BreakerState *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewPipelineMetrics creates and registers the pipeline metrics against
// the given registry.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for PipelineMetrics.
func (m *PipelineMetrics) initMetrics() error {
	m.TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wavegen_tasks_total",
			Help: "Total number of tasks by type and terminal status",
		},
		[]string{"task_type", "status"}, // status: completed, failed
	)

	m.TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wavegen_task_duration_seconds",
			Help:    "Handler execution time by task type",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 90.0},
		},
		[]string{"task_type"},
	)

	m.TaskRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wavegen_task_retries_total",
			Help: "Total number of task retry attempts by type",
		},
		[]string{"task_type"},
	)

	m.TaskErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wavegen_task_errors_total",
			Help: "Total number of task errors by type and error category",
		},
		[]string{"task_type", "error_category"},
	)

	m.TasksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wavegen_tasks_in_flight",
			Help: "Number of task handlers currently executing",
		},
	)

	m.QueueBacklog = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wavegen_queue_backlog",
			Help: "Pending tasks reported by the queue backend",
		},
	)

	m.CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wavegen_cache_lookups_total",
			Help: "Artifact cache checks by result",
		},
		[]string{"result"}, // result: hit, miss
	)

	m.ArtifactBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wavegen_artifact_bytes",
			Help:    "Serialized size of generated artifacts",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KiB to 2MiB
		},
	)

	m.BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wavegen_breaker_state",
			Help: "Circuit breaker state by dependency (0=closed, 1=half-open, 2=open)",
		},
		[]string{"dependency"},
	)

	return nil
}

// RecordTask records one terminal task outcome with its duration.
func (m *PipelineMetrics) RecordTask(taskType, status string, duration time.Duration) {
	m.TasksTotal.WithLabelValues(taskType, status).Inc()
	m.TaskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// RecordTaskError records a failed attempt with its error category.
func (m *PipelineMetrics) RecordTaskError(taskType, errorCategory string) {
	m.TaskErrorsTotal.WithLabelValues(taskType, errorCategory).Inc()
}

// RecordRetry records a retry attempt.
func (m *PipelineMetrics) RecordRetry(taskType string) {
	m.TaskRetriesTotal.WithLabelValues(taskType).Inc()
}

// RecordCacheLookup records a cache check outcome.
func (m *PipelineMetrics) RecordCacheLookup(result string) {
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordArtifactSize records the serialized artifact size.
func (m *PipelineMetrics) RecordArtifactSize(bytes int) {
	m.ArtifactBytes.Observe(float64(bytes))
}

// SetBreakerState publishes a breaker state for one dependency.
func (m *PipelineMetrics) SetBreakerState(dependency string, state int) {
	m.BreakerState.WithLabelValues(dependency).Set(float64(state))
}

// SetQueueBacklog publishes the pending task count.
func (m *PipelineMetrics) SetQueueBacklog(n int64) {
	m.QueueBacklog.Set(float64(n))
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.TasksTotal.Describe(ch)
	m.TaskDuration.Describe(ch)
	m.TaskRetriesTotal.Describe(ch)
	m.TaskErrorsTotal.Describe(ch)
	m.TasksInFlight.Describe(ch)
	m.QueueBacklog.Describe(ch)
	m.CacheLookupsTotal.Describe(ch)
	m.ArtifactBytes.Describe(ch)
	m.BreakerState.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.TasksTotal.Collect(ch)
	m.TaskDuration.Collect(ch)
	m.TaskRetriesTotal.Collect(ch)
	m.TaskErrorsTotal.Collect(ch)
	m.TasksInFlight.Collect(ch)
	m.QueueBacklog.Collect(ch)
	m.CacheLookupsTotal.Collect(ch)
	m.ArtifactBytes.Collect(ch)
	m.BreakerState.Collect(ch)
}
