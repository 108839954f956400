package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SweepMetrics holds metrics related to retention sweep runs.
type SweepMetrics struct {
	// RunsTotal tracks completed sweep runs by status (success, failure).
	RunsTotal *prometheus.CounterVec

	// RunDuration tracks the wall-clock duration of a full sweep run.
	RunDuration prometheus.Histogram

	// SoftDeletedTotal tracks records transitioned to soft-deleted.
	SoftDeletedTotal prometheus.Counter

	// HardDeletedTotal tracks soft-deleted records purged from the database.
	HardDeletedTotal prometheus.Counter

	// DeleteFailuresTotal tracks object deletions that failed and were left
	// for the next run.
	DeleteFailuresTotal prometheus.Counter

	// ActiveRecords tracks the number of live, unexpired records.
	ActiveRecords prometheus.Gauge

	// SoftDeletedRecords tracks the number of records awaiting hard deletion.
	SoftDeletedRecords prometheus.Gauge

	// ExpiringWithinHour tracks active records expiring in the next hour.
	ExpiringWithinHour prometheus.Gauge
}

// DefaultSweepDurationBuckets are duration buckets for sweep runs, which scan
// the database and delete objects in batches.
var DefaultSweepDurationBuckets = []float64{
	0.1,   // 100ms
	0.5,   // 500ms
	1.0,   // 1s
	5.0,   // 5s
	15.0,  // 15s
	60.0,  // 1m
	300.0, // 5m
	900.0, // 15m
}

// NewSweepMetrics creates and registers sweep metrics.
// Uses promauto for automatic registration with the default registry.
func NewSweepMetrics() *SweepMetrics {
	return &SweepMetrics{
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "imghost",
				Subsystem: "sweep",
				Name:      "runs_total",
				Help:      "Total number of retention sweep runs, broken down by status.",
			},
			[]string{"status"},
		),
		RunDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "imghost",
				Subsystem: "sweep",
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of a full retention sweep run.",
				Buckets:   DefaultSweepDurationBuckets,
			},
		),
		SoftDeletedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "imghost",
				Subsystem: "sweep",
				Name:      "soft_deleted_total",
				Help:      "Total number of records transitioned to soft-deleted.",
			},
		),
		HardDeletedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "imghost",
				Subsystem: "sweep",
				Name:      "hard_deleted_total",
				Help:      "Total number of soft-deleted records removed from the database.",
			},
		),
		DeleteFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "imghost",
				Subsystem: "sweep",
				Name:      "delete_failures_total",
				Help:      "Total number of object deletions that failed and were deferred.",
			},
		),
		ActiveRecords: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "imghost",
				Subsystem: "sweep",
				Name:      "active_records",
				Help:      "Number of live, unexpired image records.",
			},
		),
		SoftDeletedRecords: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "imghost",
				Subsystem: "sweep",
				Name:      "soft_deleted_records",
				Help:      "Number of records awaiting hard deletion.",
			},
		),
		ExpiringWithinHour: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "imghost",
				Subsystem: "sweep",
				Name:      "expiring_within_hour",
				Help:      "Number of active records whose expiry falls within the next hour.",
			},
		),
	}
}

// NewSweepMetricsWithRegistry creates sweep metrics registered with a custom registry.
// Useful for testing to avoid conflicts with the default registry.
func NewSweepMetricsWithRegistry(reg prometheus.Registerer) *SweepMetrics {
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imghost",
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Total number of retention sweep runs, broken down by status.",
		},
		[]string{"status"},
	)

	runDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "imghost",
			Subsystem: "sweep",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of a full retention sweep run.",
			Buckets:   DefaultSweepDurationBuckets,
		},
	)

	softDeletedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imghost",
			Subsystem: "sweep",
			Name:      "soft_deleted_total",
			Help:      "Total number of records transitioned to soft-deleted.",
		},
	)

	hardDeletedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imghost",
			Subsystem: "sweep",
			Name:      "hard_deleted_total",
			Help:      "Total number of soft-deleted records removed from the database.",
		},
	)

	deleteFailuresTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imghost",
			Subsystem: "sweep",
			Name:      "delete_failures_total",
			Help:      "Total number of object deletions that failed and were deferred.",
		},
	)

	activeRecords := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "imghost",
			Subsystem: "sweep",
			Name:      "active_records",
			Help:      "Number of live, unexpired image records.",
		},
	)

	softDeletedRecords := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "imghost",
			Subsystem: "sweep",
			Name:      "soft_deleted_records",
			Help:      "Number of records awaiting hard deletion.",
		},
	)

	expiringWithinHour := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "imghost",
			Subsystem: "sweep",
			Name:      "expiring_within_hour",
			Help:      "Number of active records whose expiry falls within the next hour.",
		},
	)

	reg.MustRegister(runsTotal)
	reg.MustRegister(runDuration)
	reg.MustRegister(softDeletedTotal)
	reg.MustRegister(hardDeletedTotal)
	reg.MustRegister(deleteFailuresTotal)
	reg.MustRegister(activeRecords)
	reg.MustRegister(softDeletedRecords)
	reg.MustRegister(expiringWithinHour)

	return &SweepMetrics{
		RunsTotal:           runsTotal,
		RunDuration:         runDuration,
		SoftDeletedTotal:    softDeletedTotal,
		HardDeletedTotal:    hardDeletedTotal,
		DeleteFailuresTotal: deleteFailuresTotal,
		ActiveRecords:       activeRecords,
		SoftDeletedRecords:  softDeletedRecords,
		ExpiringWithinHour:  expiringWithinHour,
	}
}

// RecordRun records a completed sweep run.
func (m *SweepMetrics) RecordRun(durationSeconds float64, success bool) {
	status := StatusFailure
	if success {
		status = StatusSuccess
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordSoftDeleted adds to the soft-deleted counter.
func (m *SweepMetrics) RecordSoftDeleted(count int64) {
	m.SoftDeletedTotal.Add(float64(count))
}

// RecordHardDeleted adds to the hard-deleted counter.
func (m *SweepMetrics) RecordHardDeleted(count int64) {
	m.HardDeletedTotal.Add(float64(count))
}

// RecordDeleteFailures adds to the deferred-deletion counter.
func (m *SweepMetrics) RecordDeleteFailures(count int64) {
	m.DeleteFailuresTotal.Add(float64(count))
}

// RecordStats updates the population gauges.
func (m *SweepMetrics) RecordStats(active, softDeleted, expiringWithinHour int64) {
	m.ActiveRecords.Set(float64(active))
	m.SoftDeletedRecords.Set(float64(softDeleted))
	m.ExpiringWithinHour.Set(float64(expiringWithinHour))
}
