package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProcessMetrics holds metrics related to the re-encode worker pool.
type ProcessMetrics struct {
	// JobsTotal tracks completed re-encode jobs by outcome.
	// Labels: outcome (reencoded, skipped, exempt, failed, dropped)
	JobsTotal *prometheus.CounterVec

	// JobDuration tracks per-job processing time.
	JobDuration prometheus.Histogram

	// QueueDepth tracks the number of jobs waiting in the queue.
	QueueDepth prometheus.Gauge

	// BytesSavedTotal tracks bytes saved by re-encoding.
	BytesSavedTotal prometheus.Counter
}

// Re-encode job outcome label values.
const (
	OutcomeReencoded = "reencoded"
	OutcomeSkipped   = "skipped"
	OutcomeExempt    = "exempt"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

// DefaultProcessDurationBuckets are duration buckets for re-encode jobs.
var DefaultProcessDurationBuckets = []float64{
	0.01, // 10ms
	0.05, // 50ms
	0.1,  // 100ms
	0.25, // 250ms
	0.5,  // 500ms
	1.0,  // 1s
	2.5,  // 2.5s
	5.0,  // 5s
	15.0, // 15s
}

// NewProcessMetrics creates and registers re-encode metrics.
// Uses promauto for automatic registration with the default registry.
func NewProcessMetrics() *ProcessMetrics {
	return &ProcessMetrics{
		JobsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "imghost",
				Subsystem: "process",
				Name:      "jobs_total",
				Help:      "Total number of re-encode jobs, broken down by outcome.",
			},
			[]string{"outcome"},
		),
		JobDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "imghost",
				Subsystem: "process",
				Name:      "job_duration_seconds",
				Help:      "Per-job re-encode processing time.",
				Buckets:   DefaultProcessDurationBuckets,
			},
		),
		QueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "imghost",
				Subsystem: "process",
				Name:      "queue_depth",
				Help:      "Number of re-encode jobs waiting in the queue.",
			},
		),
		BytesSavedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "imghost",
				Subsystem: "process",
				Name:      "bytes_saved_total",
				Help:      "Total bytes saved by re-encoding images.",
			},
		),
	}
}

// NewProcessMetricsWithRegistry creates re-encode metrics registered with a custom registry.
// Useful for testing to avoid conflicts with the default registry.
func NewProcessMetricsWithRegistry(reg prometheus.Registerer) *ProcessMetrics {
	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imghost",
			Subsystem: "process",
			Name:      "jobs_total",
			Help:      "Total number of re-encode jobs, broken down by outcome.",
		},
		[]string{"outcome"},
	)

	jobDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "imghost",
			Subsystem: "process",
			Name:      "job_duration_seconds",
			Help:      "Per-job re-encode processing time.",
			Buckets:   DefaultProcessDurationBuckets,
		},
	)

	queueDepth := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "imghost",
			Subsystem: "process",
			Name:      "queue_depth",
			Help:      "Number of re-encode jobs waiting in the queue.",
		},
	)

	bytesSavedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imghost",
			Subsystem: "process",
			Name:      "bytes_saved_total",
			Help:      "Total bytes saved by re-encoding images.",
		},
	)

	reg.MustRegister(jobsTotal)
	reg.MustRegister(jobDuration)
	reg.MustRegister(queueDepth)
	reg.MustRegister(bytesSavedTotal)

	return &ProcessMetrics{
		JobsTotal:       jobsTotal,
		JobDuration:     jobDuration,
		QueueDepth:      queueDepth,
		BytesSavedTotal: bytesSavedTotal,
	}
}

// RecordJob records a completed re-encode job.
// outcome should be one of OutcomeReencoded, OutcomeSkipped, OutcomeExempt, OutcomeFailed.
func (m *ProcessMetrics) RecordJob(outcome string, durationSeconds float64) {
	m.JobsTotal.WithLabelValues(outcome).Inc()
	m.JobDuration.Observe(durationSeconds)
}

// RecordDropped records a job dropped because the queue was full.
func (m *ProcessMetrics) RecordDropped() {
	m.JobsTotal.WithLabelValues(OutcomeDropped).Inc()
}

// RecordQueueDepth updates the queue depth gauge.
func (m *ProcessMetrics) RecordQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// RecordBytesSaved adds to the bytes-saved counter.
func (m *ProcessMetrics) RecordBytesSaved(bytes int64) {
	m.BytesSavedTotal.Add(float64(bytes))
}
