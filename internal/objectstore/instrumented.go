package objectstore

import (
	"context"
	"io"
	"time"
)

// MetricsRecorder is the interface for recording object store operation
// metrics. This keeps the objectstore package decoupled from the metrics
// package.
type MetricsRecorder interface {
	RecordPut(durationSeconds float64, success bool, bytes int64)
	RecordGet(durationSeconds float64, success bool)
	RecordHead(durationSeconds float64, success bool)
	RecordDelete(durationSeconds float64, success bool)
	RecordPresign(durationSeconds float64, success bool)
}

// InstrumentedStore wraps a Store and records metrics for each operation.
type InstrumentedStore struct {
	store   Store
	metrics MetricsRecorder
}

// NewInstrumentedStore creates an instrumented wrapper around a Store.
// If metrics is nil, operations pass through directly.
func NewInstrumentedStore(store Store, metrics MetricsRecorder) *InstrumentedStore {
	return &InstrumentedStore{
		store:   store,
		metrics: metrics,
	}
}

// Put stores an object at the given key.
func (s *InstrumentedStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	start := time.Now()
	err := s.store.Put(ctx, key, reader, size, contentType)
	if s.metrics != nil {
		s.metrics.RecordPut(time.Since(start).Seconds(), err == nil, size)
	}
	return err
}

// Get retrieves an entire object.
func (s *InstrumentedStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := s.store.Get(ctx, key)
	if s.metrics != nil {
		s.metrics.RecordGet(time.Since(start).Seconds(), err == nil)
	}
	return rc, err
}

// Head retrieves object metadata without the body.
func (s *InstrumentedStore) Head(ctx context.Context, key string) (ObjectMeta, error) {
	start := time.Now()
	meta, err := s.store.Head(ctx, key)
	if s.metrics != nil {
		s.metrics.RecordHead(time.Since(start).Seconds(), err == nil)
	}
	return meta, err
}

// Delete removes an object.
func (s *InstrumentedStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.store.Delete(ctx, key)
	if s.metrics != nil {
		s.metrics.RecordDelete(time.Since(start).Seconds(), err == nil)
	}
	return err
}

// Presign returns a time-limited URL for the object.
func (s *InstrumentedStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	start := time.Now()
	url, err := s.store.Presign(ctx, key, ttl)
	if s.metrics != nil {
		s.metrics.RecordPresign(time.Since(start).Seconds(), err == nil)
	}
	return url, err
}

// Close releases resources associated with the store.
func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}

// Ensure InstrumentedStore implements Store.
var _ Store = (*InstrumentedStore)(nil)
