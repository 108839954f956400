package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics holds metrics related to the public HTTP API.
type HTTPMetrics struct {
	// LatencyHistogram tracks request latency broken down by route and status code.
	LatencyHistogram *prometheus.HistogramVec

	// RequestsTotal tracks total requests by route and status code.
	RequestsTotal *prometheus.CounterVec

	// UploadsRejectedTotal tracks uploads rejected before storage, by reason.
	// Labels: reason (too_large, bad_type, quota, rate_limited)
	UploadsRejectedTotal *prometheus.CounterVec
}

// Upload rejection reason label values.
const (
	RejectTooLarge    = "too_large"
	RejectBadType     = "bad_type"
	RejectQuota       = "quota"
	RejectRateLimited = "rate_limited"
)

// DefaultHTTPLatencyBuckets are latency buckets for API requests.
var DefaultHTTPLatencyBuckets = []float64{
	0.005, // 5ms
	0.01,  // 10ms
	0.025, // 25ms
	0.05,  // 50ms
	0.1,   // 100ms
	0.25,  // 250ms
	0.5,   // 500ms
	1.0,   // 1s
	2.5,   // 2.5s
	5.0,   // 5s
	10.0,  // 10s
}

// NewHTTPMetrics creates and registers HTTP metrics.
// Uses promauto for automatic registration with the default registry.
func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		LatencyHistogram: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "imghost",
				Subsystem: "http",
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds, broken down by route and status code.",
				Buckets:   DefaultHTTPLatencyBuckets,
			},
			[]string{"route", "code"},
		),
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "imghost",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests, broken down by route and status code.",
			},
			[]string{"route", "code"},
		),
		UploadsRejectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "imghost",
				Subsystem: "http",
				Name:      "uploads_rejected_total",
				Help:      "Total number of uploads rejected before storage, broken down by reason.",
			},
			[]string{"reason"},
		),
	}
}

// NewHTTPMetricsWithRegistry creates HTTP metrics registered with a custom registry.
// Useful for testing to avoid conflicts with the default registry.
func NewHTTPMetricsWithRegistry(reg prometheus.Registerer) *HTTPMetrics {
	latencyHist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "imghost",
			Subsystem: "http",
			Name:      "request_latency_seconds",
			Help:      "HTTP request latency in seconds, broken down by route and status code.",
			Buckets:   DefaultHTTPLatencyBuckets,
		},
		[]string{"route", "code"},
	)

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imghost",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests, broken down by route and status code.",
		},
		[]string{"route", "code"},
	)

	uploadsRejectedTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "imghost",
			Subsystem: "http",
			Name:      "uploads_rejected_total",
			Help:      "Total number of uploads rejected before storage, broken down by reason.",
		},
		[]string{"reason"},
	)

	reg.MustRegister(latencyHist)
	reg.MustRegister(requestsTotal)
	reg.MustRegister(uploadsRejectedTotal)

	return &HTTPMetrics{
		LatencyHistogram:     latencyHist,
		RequestsTotal:        requestsTotal,
		UploadsRejectedTotal: uploadsRejectedTotal,
	}
}

// RecordRequest records a completed HTTP request.
func (m *HTTPMetrics) RecordRequest(route string, code int, durationSeconds float64) {
	codeLabel := strconv.Itoa(code)
	m.LatencyHistogram.WithLabelValues(route, codeLabel).Observe(durationSeconds)
	m.RequestsTotal.WithLabelValues(route, codeLabel).Inc()
}

// RecordUploadRejected records an upload rejected before storage.
// reason should be one of RejectTooLarge, RejectBadType, RejectQuota, RejectRateLimited.
func (m *HTTPMetrics) RecordUploadRejected(reason string) {
	m.UploadsRejectedTotal.WithLabelValues(reason).Inc()
}
