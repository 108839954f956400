package metadata

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory implementation of the Store interface for testing.
// It enforces the same invariants as the PostgreSQL implementation: unique
// filenames, at-most-once soft-delete, and monotonic is_processed.
type MockStore struct {
	mu      sync.Mutex
	records map[string]*Image // by ID
	byName  map[string]string // filename -> ID
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		records: make(map[string]*Image),
		byName:  make(map[string]string),
	}
}

func (s *MockStore) Insert(ctx context.Context, img *Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byName[img.Filename]; exists {
		return ErrDuplicateFilename
	}

	cp := *img
	s.records[img.ID] = &cp
	s.byName[img.Filename] = img.ID
	return nil
}

func (s *MockStore) GetByFilename(ctx context.Context, filename string) (*Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byName[filename]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s.records[id]
	return &cp, nil
}

func (s *MockStore) GetByID(ctx context.Context, id string) (*Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *img
	return &cp, nil
}

func (s *MockStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Image
	for _, img := range s.records {
		if img.DeletedAt == nil && img.ExpiresAt.Before(now) {
			cp := *img
			out = append(out, &cp)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MockStore) MarkDeleted(ctx context.Context, ids []string, deletedAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, id := range ids {
		img, ok := s.records[id]
		if !ok || img.DeletedAt != nil {
			continue
		}
		ts := deletedAt
		img.DeletedAt = &ts
		img.ObjectURL = DeletedObjectURL
		n++
	}
	return n, nil
}

func (s *MockStore) MarkProcessed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	img.IsProcessed = true
	return nil
}

func (s *MockStore) UpdateProcessed(ctx context.Context, id string, sizeBytes int64, mimeType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	img.SizeBytes = sizeBytes
	img.MIMEType = mimeType
	img.IsProcessed = true
	return nil
}

func (s *MockStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byName, img.Filename)
	delete(s.records, id)
	return nil
}

func (s *MockStore) DeleteSoftDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, img := range s.records {
		if img.DeletedAt != nil && img.DeletedAt.Before(cutoff) {
			delete(s.byName, img.Filename)
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *MockStore) CountByIPSince(ctx context.Context, ip string, since time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, img := range s.records {
		if img.IPAddress == ip && img.UploadedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (s *MockStore) ListDeleteTokens(ctx context.Context) ([]TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []TokenRecord
	for _, img := range s.records {
		if img.DeleteTokenHash != "" && img.DeletedAt == nil {
			out = append(out, TokenRecord{
				ID:              img.ID,
				Filename:        img.Filename,
				DeleteTokenHash: img.DeleteTokenHash,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MockStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats Stats
	hour := now.Add(time.Hour)
	for _, img := range s.records {
		switch {
		case img.DeletedAt != nil:
			stats.SoftDeleted++
		case img.ExpiresAt.After(now):
			stats.Active++
			if img.ExpiresAt.Before(hour) {
				stats.ExpiringWithinHour++
			}
		}
	}
	return stats, nil
}

func (s *MockStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MockStore) Close() {}

// Len returns the number of records. Test helper.
func (s *MockStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var _ Store = (*MockStore)(nil)
