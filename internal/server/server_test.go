package server

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/imghost-io/imghost/internal/config"
	"github.com/imghost-io/imghost/internal/metadata"
	"github.com/imghost-io/imghost/internal/objectstore"
	"github.com/imghost-io/imghost/internal/process"
)

type fakeQueue struct {
	jobs []process.Job
}

func (q *fakeQueue) Enqueue(job process.Job) bool {
	q.jobs = append(q.jobs, job)
	return true
}

type fakePurger struct {
	urls []string
}

func (p *fakePurger) PurgeURL(_ context.Context, url string) error {
	p.urls = append(p.urls, url)
	return nil
}

type testEnv struct {
	server *Server
	router http.Handler
	meta   *metadata.MockStore
	obj    *objectstore.MockStore
	queue  *fakeQueue
	purger *fakePurger
	cfg    *config.Config
	now    time.Time
}

func newTestEnv(t *testing.T, mutate func(cfg *config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Server.PublicBaseURL = "http://img.test"
	if mutate != nil {
		mutate(cfg)
	}

	env := &testEnv{
		meta:   metadata.NewMockStore(),
		obj:    objectstore.NewMockStore(),
		queue:  &fakeQueue{},
		purger: &fakePurger{},
		cfg:    cfg,
		now:    time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	env.server = New(env.meta, env.obj, cfg,
		WithQueue(env.queue),
		WithPurger(env.purger),
		WithClock(func() time.Time { return env.now }),
	)
	env.router = env.server.Router()
	return env
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(40 * x), G: uint8(40 * y), B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// multipartUpload builds a POST /upload request with the given file payloads
// and extra form fields.
func multipartUpload(t *testing.T, files [][]byte, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for i, data := range files {
		part, err := mw.CreateFormFile("files", "upload.bin")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatalf("write part %d: %v", i, err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeUploadResults(t *testing.T, body []byte) []UploadResult {
	t.Helper()

	var env struct {
		Success bool           `json:"success"`
		Data    []UploadResult `json:"data"`
		Error   string         `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !env.Success {
		t.Fatalf("expected success envelope, got error %q", env.Error)
	}
	return env.Data
}
