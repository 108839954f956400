package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PurgeMetrics holds metrics related to CDN cache purges.
type PurgeMetrics struct {
	// BatchesTotal tracks purge batches by status (success, failure).
	BatchesTotal *prometheus.CounterVec

	// URLsPurgedTotal tracks URLs successfully purged from the CDN cache.
	URLsPurgedTotal prometheus.Counter

	// RetriesTotal tracks purge attempts beyond the first per batch.
	RetriesTotal prometheus.Counter
}

// NewPurgeMetrics creates and registers purge metrics.
// Uses promauto for automatic registration with the default registry.
func NewPurgeMetrics() *PurgeMetrics {
	return &PurgeMetrics{
		BatchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "imghost",
				Subsystem: "purge",
				Name:      "batches_total",
				Help:      "Total number of CDN purge batches, broken down by status.",
			},
			[]string{"status"},
		),
		URLsPurgedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "imghost",
				Subsystem: "purge",
				Name:      "urls_purged_total",
				Help:      "Total number of URLs successfully purged from the CDN cache.",
			},
		),
		RetriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: "imghost",
				Subsystem: "purge",
				Name:      "retries_total",
				Help:      "Total number of purge attempts beyond the first per batch.",
			},
		),
	}
}

// NewPurgeMetricsWithRegistry creates purge metrics registered with a custom registry.
// Useful for testing to avoid conflicts with the default registry.
func NewPurgeMetricsWithRegistry(reg prometheus.Registerer) *PurgeMetrics {
	batchesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imghost",
			Subsystem: "purge",
			Name:      "batches_total",
			Help:      "Total number of CDN purge batches, broken down by status.",
		},
		[]string{"status"},
	)

	urlsPurgedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imghost",
			Subsystem: "purge",
			Name:      "urls_purged_total",
			Help:      "Total number of URLs successfully purged from the CDN cache.",
		},
	)

	retriesTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "imghost",
			Subsystem: "purge",
			Name:      "retries_total",
			Help:      "Total number of purge attempts beyond the first per batch.",
		},
	)

	reg.MustRegister(batchesTotal)
	reg.MustRegister(urlsPurgedTotal)
	reg.MustRegister(retriesTotal)

	return &PurgeMetrics{
		BatchesTotal:    batchesTotal,
		URLsPurgedTotal: urlsPurgedTotal,
		RetriesTotal:    retriesTotal,
	}
}

// RecordBatch records a completed purge batch.
func (m *PurgeMetrics) RecordBatch(urls int, attempts int, success bool) {
	status := StatusFailure
	if success {
		status = StatusSuccess
		m.URLsPurgedTotal.Add(float64(urls))
	}
	m.BatchesTotal.WithLabelValues(status).Inc()
	if attempts > 1 {
		m.RetriesTotal.Add(float64(attempts - 1))
	}
}
