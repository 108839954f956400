package metadata

import (
	"context"
	"time"
)

// Stats summarizes the record population for observability.
type Stats struct {
	// Active is the number of records that are neither expired nor
	// soft-deleted.
	Active int64

	// SoftDeleted is the number of records awaiting hard deletion.
	SoftDeleted int64

	// ExpiringWithinHour is the number of active records whose expiry falls
	// in the next hour.
	ExpiringWithinHour int64
}

// TokenRecord pairs a record with its deletion-token hash for the explicit
// delete path.
type TokenRecord struct {
	ID              string
	Filename        string
	DeleteTokenHash string
}

// Store is the interface for image metadata persistence.
//
// All methods accept a context for cancellation and deadline propagation.
// Implementations must be safe for concurrent use.
type Store interface {
	// Insert persists a new record. Returns ErrDuplicateFilename if the
	// filename is already taken.
	Insert(ctx context.Context, img *Image) error

	// GetByFilename returns the record for the given storage key, or
	// ErrNotFound.
	GetByFilename(ctx context.Context, filename string) (*Image, error)

	// GetByID returns the record with the given ID, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Image, error)

	// ListExpired returns up to limit records whose expiry has passed and
	// which have not been soft-deleted yet. Ordering is deterministic
	// (expiry, then ID) so repeated fetches walk the backlog stably.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Image, error)

	// MarkDeleted soft-deletes the given records in one atomic commit:
	// deleted_at is set to deletedAt and object_url to DeletedObjectURL,
	// but only for records still live. Returns the number of records that
	// transitioned, which makes re-runs idempotent.
	MarkDeleted(ctx context.Context, ids []string, deletedAt time.Time) (int64, error)

	// MarkProcessed flips is_processed to true. The transition is monotonic;
	// marking an already-processed record is a no-op. Returns ErrNotFound if
	// the record is gone.
	MarkProcessed(ctx context.Context, id string) error

	// UpdateProcessed records the re-encoded size and MIME type and marks the
	// record processed, in one commit. Returns ErrNotFound if the record is
	// gone.
	UpdateProcessed(ctx context.Context, id string, sizeBytes int64, mimeType string) error

	// Delete removes a record immediately (explicit token-based delete path).
	Delete(ctx context.Context, id string) error

	// DeleteSoftDeletedBefore hard-deletes all records soft-deleted before
	// cutoff. Returns the number of rows removed.
	DeleteSoftDeletedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// CountByIPSince counts records uploaded from ip after since. Used for
	// the sliding-window upload quota.
	CountByIPSince(ctx context.Context, ip string, since time.Time) (int64, error)

	// ListDeleteTokens returns the hash of every record that still carries a
	// deletion token.
	ListDeleteTokens(ctx context.Context) ([]TokenRecord, error)

	// Stats computes population counts relative to now.
	Stats(ctx context.Context, now time.Time) (Stats, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close()
}
