package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/imghost-io/imghost/internal/metadata"
)

// seedImage inserts a live record with a stored object and returns it.
func seedImage(t *testing.T, env *testEnv, tokenHash string) *metadata.Image {
	t.Helper()

	img := metadata.NewImage("", 4, "image/png", "192.0.2.1", tokenHash, time.Hour, env.now)
	img.ObjectURL = env.server.publicURL(img.Filename)
	if err := env.meta.Insert(context.Background(), img); err != nil {
		t.Fatal(err)
	}
	if err := env.obj.Put(context.Background(), img.Filename, bytes.NewReader([]byte("data")), 4, "image/png"); err != nil {
		t.Fatal(err)
	}
	return img
}

func TestServeImageRedirectsToPresignedURL(t *testing.T) {
	env := newTestEnv(t, nil)
	img := seedImage(t, env, "")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/i/"+img.Filename, nil))

	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	loc := rec.Header().Get("Location")
	if !strings.Contains(loc, img.Filename) {
		t.Errorf("location %q does not reference the object key", loc)
	}
	if got := rec.Header().Get("Cache-Control"); got != immutableCacheControl {
		t.Errorf("Cache-Control = %q, want %q", got, immutableCacheControl)
	}
}

func TestServeImageUnknownFilename(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/i/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestServeImageSoftDeletedIsGone(t *testing.T) {
	env := newTestEnv(t, nil)
	img := seedImage(t, env, "")

	if _, err := env.meta.MarkDeleted(context.Background(), []string{img.ID}, env.now); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/i/"+img.Filename, nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteImageByToken(t *testing.T) {
	env := newTestEnv(t, nil)

	token := "0123456789abcdef0123456789abcdef"
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	img := seedImage(t, env, string(hash))

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/image/"+token, nil))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if _, err := env.meta.GetByFilename(context.Background(), img.Filename); !errors.Is(err, metadata.ErrNotFound) {
		t.Errorf("record still present after delete: %v", err)
	}
	if env.obj.Exists(img.Filename) {
		t.Error("object still present after delete")
	}
	if len(env.purger.urls) != 1 || env.purger.urls[0] != env.server.publicURL(img.Filename) {
		t.Errorf("purged urls = %v, want the public image URL", env.purger.urls)
	}
}

func TestDeleteImageWrongToken(t *testing.T) {
	env := newTestEnv(t, nil)

	hash, err := bcrypt.GenerateFromPassword([]byte("the-real-token"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	img := seedImage(t, env, string(hash))

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/image/wrong-token", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if _, err := env.meta.GetByFilename(context.Background(), img.Filename); err != nil {
		t.Errorf("record must survive a failed delete: %v", err)
	}
	if !env.obj.Exists(img.Filename) {
		t.Error("object must survive a failed delete")
	}
}
