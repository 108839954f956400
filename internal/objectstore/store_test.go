package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestMockStorePutGet(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	data := []byte("png bytes")
	if err := store.Put(ctx, "abc", bytes.NewReader(data), int64(len(data)), "image/png"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	rc, err := store.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer rc.Close()

	got, _ := io.ReadAll(rc)
	if !bytes.Equal(got, data) {
		t.Errorf("Get returned %q, want %q", got, data)
	}

	meta, err := store.Head(ctx, "abc")
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}
	if meta.ContentType != "image/png" || meta.Size != int64(len(data)) {
		t.Errorf("unexpected meta: %+v", meta)
	}
}

func TestMockStoreGetMissing(t *testing.T) {
	store := NewMockStore()

	_, err := store.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMockStoreDeleteIdempotent(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	data := []byte("x")
	_ = store.Put(ctx, "k", bytes.NewReader(data), 1, "image/jpeg")

	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	// Deleting an already-absent key must succeed.
	if err := store.Delete(ctx, "k"); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if store.Exists("k") {
		t.Error("object still present after delete")
	}
}

func TestMockStoreFailDeletes(t *testing.T) {
	store := NewMockStore()
	store.FailDeletes["bad"] = errors.New("boom")

	err := store.Delete(context.Background(), "bad")
	if err == nil {
		t.Fatal("expected injected delete failure")
	}

	var objErr *ObjectError
	if !errors.As(err, &objErr) {
		t.Fatalf("expected ObjectError, got %T", err)
	}
	if objErr.Key != "bad" || objErr.Op != "Delete" {
		t.Errorf("unexpected ObjectError: %+v", objErr)
	}
}

func TestMockStorePresign(t *testing.T) {
	store := NewMockStore()

	url, err := store.Presign(context.Background(), "abc", 60*time.Second)
	if err != nil {
		t.Fatalf("Presign failed: %v", err)
	}
	if !strings.Contains(url, "abc") {
		t.Errorf("presigned URL should reference the key: %s", url)
	}
}

func TestObjectErrorUnwrap(t *testing.T) {
	err := &ObjectError{Op: "Get", Key: "k", Err: ErrNotFound}
	if !errors.Is(err, ErrNotFound) {
		t.Error("ObjectError should unwrap to its inner error")
	}
	if !strings.Contains(err.Error(), `Get "k"`) {
		t.Errorf("unexpected error text: %s", err.Error())
	}
}
