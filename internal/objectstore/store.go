// Package objectstore defines the Store interface for S3-compatible storage.
//
// This package provides the abstraction for blob operations used by the
// upload path, the re-encode worker, and the retention sweeper. The interface
// is designed to be compatible with S3 and any S3-compatible provider.
//
// # Usage
//
// The primary interface is [Store]:
//
//	store, err := s3.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	// Store an image under its key
//	err = store.Put(ctx, filename, reader, size, "image/jpeg")
//
//	// Build a time-limited download URL for a redirect
//	url, err := store.Presign(ctx, filename, 60*time.Second)
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Common errors returned by Store implementations.
var (
	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrAccessDenied is returned when the credentials lack permission for the operation.
	ErrAccessDenied = errors.New("access denied")
)

// ObjectError wraps an error with the object key for context.
type ObjectError struct {
	Op  string // Operation that failed (e.g., "Put", "Get", "Delete")
	Key string // Object key
	Err error  // Underlying error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("objectstore: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// ObjectMeta contains metadata about an object.
type ObjectMeta struct {
	// Key is the object's key in the bucket.
	Key string

	// Size is the object's size in bytes.
	Size int64

	// ContentType is the MIME type of the object.
	ContentType string

	// ETag is the entity tag, typically an MD5 hash of the object content.
	ETag string

	// LastModified is the Unix timestamp (milliseconds) when the object was last modified.
	LastModified int64
}

// Store is the interface for object storage operations.
//
// All methods accept a context for cancellation and deadline propagation.
// Implementations should return wrapped errors using [ObjectError] where
// appropriate.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Store interface {
	// Put stores an object at the given key, overwriting any existing object.
	//
	// The reader is consumed until EOF or error. The size parameter must match
	// the total bytes that will be read; some storage providers require this
	// upfront. contentType should be a valid MIME type (e.g., "image/png").
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Get retrieves an entire object.
	//
	// The caller must close the returned ReadCloser when done.
	// Returns ErrNotFound if the object doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Head retrieves object metadata without the body.
	//
	// Returns ErrNotFound if the object doesn't exist.
	Head(ctx context.Context, key string) (ObjectMeta, error)

	// Delete removes an object.
	//
	// Delete is idempotent: deleting a non-existent object succeeds silently.
	// This matches S3 behavior and enables safe retries.
	Delete(ctx context.Context, key string) error

	// Presign returns a time-limited URL granting read access to the object.
	//
	// The URL is valid for the given ttl. Presigning is a local signing
	// operation and does not verify that the object exists.
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Close releases resources associated with the store.
	//
	// After Close returns, all other methods will return errors.
	Close() error
}
