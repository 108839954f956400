package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/imghost-io/imghost/internal/config"
	"github.com/imghost-io/imghost/internal/metadata"
)

// gifBytes returns a payload of n bytes that sniffs as image/gif.
func gifBytes(n int) []byte {
	data := append([]byte("GIF89a"), bytes.Repeat([]byte{0}, n-6)...)
	return data
}

// pngSniffBytes returns a payload of n bytes that sniffs as image/png.
func pngSniffBytes(n int) []byte {
	magic := []byte("\x89PNG\r\n\x1a\n")
	return append(magic, bytes.Repeat([]byte{0}, n-len(magic))...)
}

func TestUploadStoresObjectAndRecord(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, multipartUpload(t, [][]byte{pngBytes(t)}, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	results := decodeUploadResults(t, rec.Body.Bytes())
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}

	res := results[0]
	if !strings.HasPrefix(res.URL, "http://img.test/i/") {
		t.Errorf("url = %q, want public /i/ prefix", res.URL)
	}
	if !strings.HasPrefix(res.DeleteURL, "http://img.test/image/") {
		t.Errorf("delete_url = %q, want public /image/ prefix", res.DeleteURL)
	}
	want := env.now.Add(metadata.DefaultTTL)
	if !res.ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want %v", res.ExpiresAt, want)
	}

	filename := strings.TrimPrefix(res.URL, "http://img.test/i/")
	if !env.obj.Exists(filename) {
		t.Error("uploaded object missing from store")
	}
	img, err := env.meta.GetByFilename(context.Background(), filename)
	if err != nil {
		t.Fatalf("record missing: %v", err)
	}
	if img.MIMEType != "image/png" {
		t.Errorf("mime = %s, want image/png", img.MIMEType)
	}
	if img.DeleteTokenHash == "" {
		t.Error("record has no delete token hash")
	}

	if len(env.queue.jobs) != 1 {
		t.Fatalf("expected 1 re-encode job, got %d", len(env.queue.jobs))
	}
	if env.queue.jobs[0].Filename != filename {
		t.Errorf("job filename = %s, want %s", env.queue.jobs[0].Filename, filename)
	}
}

func TestUploadClampsShortTTL(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, multipartUpload(t, [][]byte{pngBytes(t)}, map[string]string{"ttl_minutes": "1"}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	results := decodeUploadResults(t, rec.Body.Bytes())
	want := env.now.Add(metadata.MinTTL)
	if !results[0].ExpiresAt.Equal(want) {
		t.Errorf("expires_at = %v, want clamped %v", results[0].ExpiresAt, want)
	}
}

func TestUploadRejectsBadTTL(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, multipartUpload(t, [][]byte{pngBytes(t)}, map[string]string{"ttl_minutes": "soon"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, multipartUpload(t, [][]byte{[]byte("plain text, not an image")}, nil))

	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rec.Code)
	}
	if env.meta.Len() != 0 || env.obj.Len() != 0 {
		t.Error("rejected upload must not store anything")
	}
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Upload.MaxFileBytes = 10
	})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, multipartUpload(t, [][]byte{pngBytes(t)}, nil))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if env.obj.Len() != 0 {
		t.Error("oversized upload must not store anything")
	}
}

func TestUploadAcceptsGifAboveAggregateLimit(t *testing.T) {
	// The animated ceiling exceeds the aggregate request limit, so a GIF
	// between the two must still get through the body cap.
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Upload.MaxFileBytes = 500
		cfg.Upload.MaxRequestBytes = 1000
		cfg.Upload.MaxAnimatedBytes = 5000
	})

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, multipartUpload(t, [][]byte{gifBytes(2000)}, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	results := decodeUploadResults(t, rec.Body.Bytes())
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	filename := strings.TrimPrefix(results[0].URL, "http://img.test/i/")
	if !env.obj.Exists(filename) {
		t.Error("uploaded gif missing from store")
	}
}

func TestUploadRejectsAggregateOverflow(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Upload.MaxFileBytes = 600
		cfg.Upload.MaxRequestBytes = 1000
		cfg.Upload.MaxAnimatedBytes = 800
	})

	// Each file is under the per-file limit; together they exceed the
	// aggregate cap.
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, multipartUpload(t, [][]byte{pngSniffBytes(600), pngSniffBytes(600)}, nil))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
	if env.obj.Len() != 0 {
		t.Error("rejected upload must not store anything")
	}
}

func TestUploadRejectsTooManyFiles(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Upload.MaxFiles = 1
	})

	data := pngBytes(t)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, multipartUpload(t, [][]byte{data, data}, nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadRejectsEmptyRequest(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, multipartUpload(t, nil, nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadEnforcesIPQuota(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Upload.IPHourlyQuota = 1
	})

	// httptest requests arrive from 192.0.2.1; one prior upload from that
	// address inside the window exhausts a quota of one.
	prior := metadata.NewImage("u", 10, "image/png", "192.0.2.1", "", time.Hour, env.now.Add(-10*time.Minute))
	if err := env.meta.Insert(context.Background(), prior); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, multipartUpload(t, [][]byte{pngBytes(t)}, nil))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
}

func TestUploadGlobalRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) {
		cfg.Server.UploadRatePerMin = 1
	})

	data := pngBytes(t)
	first := httptest.NewRecorder()
	env.router.ServeHTTP(first, multipartUpload(t, [][]byte{data}, nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first upload status = %d, body = %s", first.Code, first.Body.String())
	}

	second := httptest.NewRecorder()
	env.router.ServeHTTP(second, multipartUpload(t, [][]byte{data}, nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload status = %d, want 429", second.Code)
	}
}

func TestUploadMultipleFiles(t *testing.T) {
	env := newTestEnv(t, nil)

	data := pngBytes(t)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, multipartUpload(t, [][]byte{data, data, data}, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	results := decodeUploadResults(t, rec.Body.Bytes())
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if env.meta.Len() != 3 || env.obj.Len() != 3 {
		t.Errorf("stored records = %d, objects = %d, want 3 each", env.meta.Len(), env.obj.Len())
	}
	if len(env.queue.jobs) != 3 {
		t.Errorf("re-encode jobs = %d, want 3", len(env.queue.jobs))
	}
}
