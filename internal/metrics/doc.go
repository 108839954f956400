// Package metrics provides Prometheus metrics for observability.
//
// This package exposes metrics for the main imghost subsystems:
//   - HTTP request latency and counts broken down by route and status
//   - Object store operation latency, counts, and bytes transferred
//   - Retention sweep outcomes: soft-deletes, hard-deletes, failures, run duration
//   - CDN purge batches, purged URLs, and retry counts
//   - Re-encode jobs by outcome, queue depth, and bytes saved
//
// Metrics are exposed via a dedicated HTTP server on /metrics in Prometheus format.
//
// Usage:
//
//	// Create and register metrics
//	storeMetrics := metrics.NewObjectStoreMetrics()
//	sweepMetrics := metrics.NewSweepMetrics()
//
//	// Wire into components
//	store := objectstore.NewInstrumentedStore(s3Store, storeMetrics)
//	sweeper := sweep.NewSweeper(..., sweep.WithMetrics(sweepMetrics))
//
//	// Start metrics server
//	metricsServer := metrics.NewServer(":9090")
//	metricsServer.Start()
package metrics

// StatusSuccess is the label value for successful operations.
const StatusSuccess = "success"

// StatusFailure is the label value for failed operations.
const StatusFailure = "failure"
