// Package blobstore provides object storage for serve evidence.
//
// Evidence lives in two buckets: full-resolution images in the evidence
// bucket and generated thumbnails in the thumbnail bucket. Every object has
// an opaque ID and a deterministic public URL built from the bucket, the
// object ID, and the configured service identity.
package blobstore

import (
	"context"
	"io"
	"strings"

	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ObjectStore defines the interface for evidence object operations.
//
// All methods are context-aware for timeout and cancellation support.
type ObjectStore interface {
	// Put stores data under the given bucket and object ID with the given
	// content type. The ID must be unique within the bucket.
	Put(ctx context.Context, bucket, id string, data io.Reader, contentType string) error

	// Delete removes the object. Idempotent: deleting a missing object is
	// not an error.
	Delete(ctx context.Context, bucket, id string) error

	// PublicURL returns the permanent public URL for an object. The URL is
	// derived deterministically and does not require a network call.
	PublicURL(bucket, id string) string
}

// =============================================================================
// Configuration
// =============================================================================

// S3Config holds configuration for the S3-compatible backing store.
type S3Config struct {
	// AccountID identifies the storage account; the endpoint URL is derived
	// from it.
	AccountID string

	// AccessKeyID and SecretAccessKey are the static API credentials.
	AccessKeyID     string
	SecretAccessKey string

	// PublicURL is the public base for object URLs (custom domain). If
	// empty, URLs are built on the account endpoint.
	PublicURL string

	// Region is required by the AWS SDK; "auto" works for R2-style stores.
	Region string
}

// =============================================================================
// Object ID Helpers
// =============================================================================

// NewObjectID generates an opaque object identifier: a UUIDv4 with hyphens
// stripped, matching the ID alphabet the document store uses.
func NewObjectID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// EvidenceFilename names a full-resolution evidence object for a serve
// attempt, used as the attachment filename in notifications.
func EvidenceFilename(serveID string) string {
	return "serve_" + serveID + "_full.jpg"
}

// ThumbnailFilename names a generated thumbnail for a serve attempt.
func ThumbnailFilename(serveID string) string {
	return "serve_" + serveID + "_thumb.jpg"
}
