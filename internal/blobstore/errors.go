package blobstore

import (
	"errors"
	"fmt"
)

// =============================================================================
// Sentinel Errors
// =============================================================================

var (
	// ErrNotFound is returned when a requested object doesn't exist.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey is returned when a bucket or object ID is empty or
	// contains forbidden characters (e.g., path traversal).
	ErrInvalidKey = errors.New("invalid object key")

	// ErrAccessDenied is returned when the storage provider denies access.
	ErrAccessDenied = errors.New("access denied")
)

// =============================================================================
// Structured Error Type
// =============================================================================

// StorageError wraps object store errors with operation context. It supports
// errors.Unwrap for sentinel checking with errors.Is().
type StorageError struct {
	Op     string // Operation that failed ("Put", "Delete")
	Bucket string
	Key    string
	Err    error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("blobstore %s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("blobstore %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAccessDenied returns true if the error indicates access was denied.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}
