package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestObjectStoreMetrics_NewWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewObjectStoreMetricsWithRegistry(reg)

	if m.LatencyHistogram == nil {
		t.Error("LatencyHistogram should not be nil")
	}
	if m.RequestsTotal == nil {
		t.Error("RequestsTotal should not be nil")
	}

	// Record some metrics to make them gatherable (Prometheus doesn't expose
	// metrics until they have observations for vec types)
	m.RecordPut(0.01, true, 100)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	if len(mfs) != 3 {
		t.Errorf("Expected 3 metric families, got %d", len(mfs))
	}
}

func TestObjectStoreMetrics_RecordPut(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewObjectStoreMetricsWithRegistry(reg)

	m.RecordPut(0.1, true, 1024)
	m.RecordPut(0.2, false, 512)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	requestsMF := findMetricFamily(mfs, "imghost_objectstore_operations_total")
	if requestsMF == nil {
		t.Fatal("imghost_objectstore_operations_total not found")
	}
	successCount := getCounterValue(requestsMF, map[string]string{"operation": OpObjPut, "status": StatusSuccess})
	failureCount := getCounterValue(requestsMF, map[string]string{"operation": OpObjPut, "status": StatusFailure})
	if successCount != 1 {
		t.Errorf("Expected 1 success put, got %f", successCount)
	}
	if failureCount != 1 {
		t.Errorf("Expected 1 failure put, got %f", failureCount)
	}

	// Bytes are only counted for successful puts
	bytesMF := findMetricFamily(mfs, "imghost_objectstore_bytes_written_total")
	if bytesMF == nil {
		t.Fatal("imghost_objectstore_bytes_written_total not found")
	}
	if v := bytesMF.Metric[0].Counter.GetValue(); v != 1024 {
		t.Errorf("Expected 1024 bytes written, got %f", v)
	}
}

func TestObjectStoreMetrics_RecordDeleteAndPresign(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewObjectStoreMetricsWithRegistry(reg)

	m.RecordDelete(0.02, true)
	m.RecordPresign(0.01, true)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	requestsMF := findMetricFamily(mfs, "imghost_objectstore_operations_total")
	if requestsMF == nil {
		t.Fatal("imghost_objectstore_operations_total not found")
	}
	if c := getCounterValue(requestsMF, map[string]string{"operation": OpObjDelete, "status": StatusSuccess}); c != 1 {
		t.Errorf("Expected 1 delete, got %f", c)
	}
	if c := getCounterValue(requestsMF, map[string]string{"operation": OpObjPresign, "status": StatusSuccess}); c != 1 {
		t.Errorf("Expected 1 presign, got %f", c)
	}
}

func TestSweepMetrics_RecordRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSweepMetricsWithRegistry(reg)

	m.RecordRun(1.5, true)
	m.RecordRun(0.5, false)
	m.RecordSoftDeleted(100)
	m.RecordHardDeleted(20)
	m.RecordDeleteFailures(3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	runsMF := findMetricFamily(mfs, "imghost_sweep_runs_total")
	if runsMF == nil {
		t.Fatal("imghost_sweep_runs_total not found")
	}
	if c := getCounterValue(runsMF, map[string]string{"status": StatusSuccess}); c != 1 {
		t.Errorf("Expected 1 success run, got %f", c)
	}
	if c := getCounterValue(runsMF, map[string]string{"status": StatusFailure}); c != 1 {
		t.Errorf("Expected 1 failure run, got %f", c)
	}

	softMF := findMetricFamily(mfs, "imghost_sweep_soft_deleted_total")
	if softMF == nil || softMF.Metric[0].Counter.GetValue() != 100 {
		t.Error("soft-deleted counter not recorded")
	}
	failMF := findMetricFamily(mfs, "imghost_sweep_delete_failures_total")
	if failMF == nil || failMF.Metric[0].Counter.GetValue() != 3 {
		t.Error("delete-failures counter not recorded")
	}
}

func TestSweepMetrics_RecordStats(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSweepMetricsWithRegistry(reg)

	m.RecordStats(500, 40, 12)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	activeMF := findMetricFamily(mfs, "imghost_sweep_active_records")
	if activeMF == nil || activeMF.Metric[0].Gauge.GetValue() != 500 {
		t.Error("active gauge not recorded")
	}
	expiringMF := findMetricFamily(mfs, "imghost_sweep_expiring_within_hour")
	if expiringMF == nil || expiringMF.Metric[0].Gauge.GetValue() != 12 {
		t.Error("expiring gauge not recorded")
	}
}

func TestPurgeMetrics_RecordBatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPurgeMetricsWithRegistry(reg)

	m.RecordBatch(30, 1, true)
	m.RecordBatch(5, 4, true)
	m.RecordBatch(10, 5, false)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	batchesMF := findMetricFamily(mfs, "imghost_purge_batches_total")
	if batchesMF == nil {
		t.Fatal("imghost_purge_batches_total not found")
	}
	if c := getCounterValue(batchesMF, map[string]string{"status": StatusSuccess}); c != 2 {
		t.Errorf("Expected 2 success batches, got %f", c)
	}

	// URLs only counted for successful batches: 30 + 5
	urlsMF := findMetricFamily(mfs, "imghost_purge_urls_purged_total")
	if urlsMF == nil || urlsMF.Metric[0].Counter.GetValue() != 35 {
		t.Error("purged URL counter not recorded")
	}

	// Retries: (4-1) + (5-1)
	retriesMF := findMetricFamily(mfs, "imghost_purge_retries_total")
	if retriesMF == nil || retriesMF.Metric[0].Counter.GetValue() != 7 {
		t.Error("retry counter not recorded")
	}
}

func TestProcessMetrics_RecordJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProcessMetricsWithRegistry(reg)

	m.RecordJob(OutcomeReencoded, 0.3)
	m.RecordJob(OutcomeExempt, 0.01)
	m.RecordDropped()
	m.RecordBytesSaved(4096)
	m.RecordQueueDepth(7)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	jobsMF := findMetricFamily(mfs, "imghost_process_jobs_total")
	if jobsMF == nil {
		t.Fatal("imghost_process_jobs_total not found")
	}
	if c := getCounterValue(jobsMF, map[string]string{"outcome": OutcomeReencoded}); c != 1 {
		t.Errorf("Expected 1 reencoded job, got %f", c)
	}
	if c := getCounterValue(jobsMF, map[string]string{"outcome": OutcomeDropped}); c != 1 {
		t.Errorf("Expected 1 dropped job, got %f", c)
	}

	depthMF := findMetricFamily(mfs, "imghost_process_queue_depth")
	if depthMF == nil || depthMF.Metric[0].Gauge.GetValue() != 7 {
		t.Error("queue depth gauge not recorded")
	}
}

func TestHTTPMetrics_RecordRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetricsWithRegistry(reg)

	m.RecordRequest("/upload", 201, 0.2)
	m.RecordRequest("/upload", 413, 0.01)
	m.RecordUploadRejected(RejectTooLarge)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	requestsMF := findMetricFamily(mfs, "imghost_http_requests_total")
	if requestsMF == nil {
		t.Fatal("imghost_http_requests_total not found")
	}
	if c := getCounterValue(requestsMF, map[string]string{"route": "/upload", "code": "201"}); c != 1 {
		t.Errorf("Expected 1 created, got %f", c)
	}

	rejectedMF := findMetricFamily(mfs, "imghost_http_uploads_rejected_total")
	if rejectedMF == nil {
		t.Fatal("imghost_http_uploads_rejected_total not found")
	}
	if c := getCounterValue(rejectedMF, map[string]string{"reason": RejectTooLarge}); c != 1 {
		t.Errorf("Expected 1 rejection, got %f", c)
	}
}

// Helper to find a metric family by name
func findMetricFamily(mfs []*io_prometheus_client.MetricFamily, name string) *io_prometheus_client.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// Helper to get counter value with specific labels
func getCounterValue(mf *io_prometheus_client.MetricFamily, labels map[string]string) float64 {
	for _, metric := range mf.Metric {
		if matchLabels(metric.Label, labels) {
			if metric.Counter != nil {
				return metric.Counter.GetValue()
			}
		}
	}
	return 0
}

// Helper to check if metric labels match expected labels
func matchLabels(metricLabels []*io_prometheus_client.LabelPair, expected map[string]string) bool {
	if len(metricLabels) != len(expected) {
		return false
	}
	for _, lp := range metricLabels {
		if expected[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}
