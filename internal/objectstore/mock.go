package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// MockStore is an in-memory implementation of the Store interface for testing.
type MockStore struct {
	mu      sync.RWMutex
	objects map[string]mockObject

	// FailDeletes maps keys to errors returned by Delete. Used by tests to
	// simulate transient store failures for specific objects.
	FailDeletes map[string]error

	deleteCalls map[string]int
}

type mockObject struct {
	data        []byte
	contentType string
	meta        ObjectMeta
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		objects:     make(map[string]mockObject),
		FailDeletes: make(map[string]error),
		deleteCalls: make(map[string]int),
	}
}

func (s *MockStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = mockObject{
		data:        data,
		contentType: contentType,
		meta: ObjectMeta{
			Key:          key,
			Size:         int64(len(data)),
			ContentType:  contentType,
			ETag:         "mock-etag",
			LastModified: time.Now().UnixMilli(),
		},
	}

	return nil
}

func (s *MockStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[key]
	if !exists {
		return nil, ErrNotFound
	}

	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *MockStore) Head(ctx context.Context, key string) (ObjectMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, exists := s.objects[key]
	if !exists {
		return ObjectMeta{}, ErrNotFound
	}

	return obj.meta, nil
}

// Delete removes an object. Deleting an absent key is success, matching S3.
func (s *MockStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteCalls[key]++
	if err, ok := s.FailDeletes[key]; ok {
		return &ObjectError{Op: "Delete", Key: key, Err: err}
	}

	delete(s.objects, key)
	return nil
}

func (s *MockStore) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://mock.example/%s?expires=%d", key, int64(ttl.Seconds())), nil
}

func (s *MockStore) Close() error {
	return nil
}

// Exists reports whether an object is present. Test helper.
func (s *MockStore) Exists(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

// DeleteCalls returns how many times Delete was invoked for key. Test helper.
func (s *MockStore) DeleteCalls(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deleteCalls[key]
}

// TotalDeleteCalls returns how many times Delete was invoked across all
// keys. Test helper.
func (s *MockStore) TotalDeleteCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, n := range s.deleteCalls {
		total += n
	}
	return total
}

// Len returns the number of stored objects. Test helper.
func (s *MockStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

var _ Store = (*MockStore)(nil)
