// Package metadata defines the image record model and the Store interface
// for metadata persistence. The default implementation uses PostgreSQL.
package metadata

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DeletedObjectURL is the sentinel stored in ObjectURL once the underlying
// blob has been removed from the object store.
const DeletedObjectURL = "deleted"

// TTL bounds for newly created records. A caller-supplied TTL outside these
// bounds is clamped, not rejected.
const (
	MinTTL     = 5 * time.Minute
	MaxTTL     = 24 * time.Hour
	DefaultTTL = 24 * time.Hour
)

// Common errors returned by Store implementations.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("metadata: record not found")

	// ErrDuplicateFilename is returned when inserting a record whose filename
	// is already taken. Filenames are globally unique and never reused.
	ErrDuplicateFilename = errors.New("metadata: filename already exists")
)

// Image is a single hosted image's metadata row.
//
// Lifecycle: created by the upload path, optionally mutated once by the
// re-encode worker, soft-deleted at most once by the retention sweeper, and
// hard-deleted only after the soft-delete retention window has passed. The
// explicit token delete path removes a record immediately, bypassing
// soft-delete.
type Image struct {
	// ID is the opaque unique identifier, assigned at creation.
	ID string

	// Filename is the unique storage key. Never reused, even after hard
	// deletion.
	Filename string

	// ObjectURL points at the stored blob; set to DeletedObjectURL once the
	// blob is gone.
	ObjectURL string

	// SizeBytes and MIMEType are updated by the re-encode worker.
	SizeBytes int64
	MIMEType  string

	// UploadedAt is set at creation and never changes.
	UploadedAt time.Time

	// ExpiresAt is derived from the caller-supplied TTL at creation.
	ExpiresAt time.Time

	// IsProcessed transitions false -> true exactly once.
	IsProcessed bool

	// DeletedAt is nil until the record is soft-deleted. A soft-deleted
	// record is logically gone but physically retained for a grace window.
	DeletedAt *time.Time

	// IPAddress is the uploader's address, recorded for rate limiting.
	IPAddress string

	// DeleteTokenHash is the bcrypt hash of the single-use deletion secret,
	// or empty when no token was issued.
	DeleteTokenHash string
}

// Deleted reports whether the record has been soft-deleted.
func (img *Image) Deleted() bool {
	return img.DeletedAt != nil
}

// ClampTTL bounds a requested TTL to [MinTTL, MaxTTL]. A zero or negative
// request yields DefaultTTL.
func ClampTTL(requested time.Duration) time.Duration {
	if requested <= 0 {
		return DefaultTTL
	}
	if requested < MinTTL {
		return MinTTL
	}
	if requested > MaxTTL {
		return MaxTTL
	}
	return requested
}

// NewImage builds a record for a freshly uploaded object. The filename
// doubles as the storage key and is always a fresh UUID, which guarantees
// keys are never reused.
func NewImage(objectURL string, sizeBytes int64, mimeType, ipAddress, deleteTokenHash string, ttl time.Duration, now time.Time) *Image {
	return &Image{
		ID:              uuid.NewString(),
		Filename:        uuid.NewString(),
		ObjectURL:       objectURL,
		SizeBytes:       sizeBytes,
		MIMEType:        mimeType,
		UploadedAt:      now,
		ExpiresAt:       now.Add(ClampTTL(ttl)),
		IPAddress:       ipAddress,
		DeleteTokenHash: deleteTokenHash,
	}
}
