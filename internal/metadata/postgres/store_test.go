package postgres

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imghost-io/imghost/internal/metadata"
)

// fakeRow feeds canned values into scanImage.
type fakeRow struct {
	values []any
	err    error
}

func (r *fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, v := range r.values {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *int64:
			*d = v.(int64)
		case *bool:
			*d = v.(bool)
		case *time.Time:
			*d = v.(time.Time)
		case **time.Time:
			if v != nil {
				ts := v.(time.Time)
				*d = &ts
			}
		}
	}
	return nil
}

func TestScanImagePopulatesRecord(t *testing.T) {
	uploaded := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := uploaded.Add(24 * time.Hour)
	deleted := uploaded.Add(25 * time.Hour)

	row := &fakeRow{values: []any{
		"id-1", "file-1", "http://img.test/i/file-1", int64(2048), "image/png",
		uploaded, expires, true, deleted, "192.0.2.1", "hash",
	}}

	img, err := scanImage(row, "test scan")
	require.NoError(t, err)

	assert.Equal(t, "id-1", img.ID)
	assert.Equal(t, "file-1", img.Filename)
	assert.Equal(t, int64(2048), img.SizeBytes)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.True(t, img.IsProcessed)
	require.NotNil(t, img.DeletedAt)
	assert.True(t, img.DeletedAt.Equal(deleted))
	assert.True(t, img.Deleted())
}

func TestScanImageLiveRecordHasNilDeletedAt(t *testing.T) {
	uploaded := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	row := &fakeRow{values: []any{
		"id-2", "file-2", "http://img.test/i/file-2", int64(10), "image/jpeg",
		uploaded, uploaded.Add(time.Hour), false, nil, "192.0.2.1", "",
	}}

	img, err := scanImage(row, "test scan")
	require.NoError(t, err)
	assert.Nil(t, img.DeletedAt)
	assert.False(t, img.Deleted())
}

func TestScanImageNoRows(t *testing.T) {
	_, err := scanImage(&fakeRow{err: pgx.ErrNoRows}, "test scan")
	assert.ErrorIs(t, err, metadata.ErrNotFound)
}

func TestScanImageWrapsErrorWithOperation(t *testing.T) {
	_, err := scanImage(&fakeRow{err: errors.New("boom")}, "get image by id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get image by id")
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, isUniqueViolation(fmt.Errorf("exec failed: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("unique_violation")))
	assert.False(t, isUniqueViolation(nil))
}
