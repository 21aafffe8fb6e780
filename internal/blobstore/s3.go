package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// =============================================================================
// S3Store Implementation
// =============================================================================

// S3Store implements ObjectStore against any S3-compatible endpoint using
// the AWS SDK v2 with static credentials and a custom endpoint resolver.
type S3Store struct {
	client    *s3.Client
	endpoint  string
	publicURL string
	logger    *slog.Logger
}

// NewS3Store creates a new S3Store.
//
// The endpoint URL is constructed from the account ID.
func NewS3Store(cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	// Format: https://{account_id}.r2.cloudflarestorage.com
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)

	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"", // session token not needed
	)

	customResolver := aws.EndpointResolverWithOptionsFunc(
		func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{
				URL:           endpoint,
				SigningRegion: region,
			}, nil
		},
	)

	awsCfg := aws.Config{
		Region:                      region,
		Credentials:                 creds,
		EndpointResolverWithOptions: customResolver,
	}

	client := s3.NewFromConfig(awsCfg)

	logger.Info("initialized object store",
		"endpoint", endpoint,
		"public_url", cfg.PublicURL,
	)

	return &S3Store{
		client:    client,
		endpoint:  endpoint,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		logger:    logger,
	}, nil
}

// =============================================================================
// Interface Implementation
// =============================================================================

// Put stores data under the given bucket and object ID.
func (s *S3Store) Put(ctx context.Context, bucket, id string, data io.Reader, contentType string) error {
	if err := validateKey(bucket, id); err != nil {
		return &StorageError{Op: "Put", Bucket: bucket, Key: id, Err: err}
	}

	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(id),
		Body:        data,
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	}

	result, err := s.client.PutObject(ctx, input)
	if err != nil {
		return &StorageError{Op: "Put", Bucket: bucket, Key: id, Err: wrapS3Error(err)}
	}

	s.logger.Debug("stored evidence object",
		"bucket", bucket,
		"key", id,
		"etag", aws.ToString(result.ETag),
		"content_type", contentType,
	)

	return nil
}

// Delete removes the object. Idempotent: S3 doesn't error on missing keys.
func (s *S3Store) Delete(ctx context.Context, bucket, id string) error {
	if err := validateKey(bucket, id); err != nil {
		return &StorageError{Op: "Delete", Bucket: bucket, Key: id, Err: err}
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return &StorageError{Op: "Delete", Bucket: bucket, Key: id, Err: wrapS3Error(err)}
	}

	s.logger.Debug("deleted evidence object", "bucket", bucket, "key", id)

	return nil
}

// PublicURL returns the permanent public URL for an object. When a custom
// public base is configured it is used; otherwise the URL is built on the
// account endpoint, which fixes the service identity in the host.
func (s *S3Store) PublicURL(bucket, id string) string {
	base := s.publicURL
	if base == "" {
		base = s.endpoint
	}
	return fmt.Sprintf("%s/%s/%s", base, bucket, id)
}

// =============================================================================
// Internal Helpers
// =============================================================================

// validateKey rejects empty components and path traversal.
func validateKey(bucket, id string) error {
	if bucket == "" || id == "" {
		return ErrInvalidKey
	}
	if strings.Contains(bucket, "..") || strings.Contains(id, "..") {
		return ErrInvalidKey
	}
	return nil
}

// wrapS3Error converts S3 SDK errors to blobstore errors.
func wrapS3Error(err error) error {
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return ErrNotFound
	}

	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return ErrNotFound
		case "AccessDenied", "Forbidden":
			return ErrAccessDenied
		}

		if httpErr, ok := err.(interface{ HTTPStatusCode() int }); ok {
			switch httpErr.HTTPStatusCode() {
			case http.StatusNotFound:
				return ErrNotFound
			case http.StatusForbidden:
				return ErrAccessDenied
			}
		}
	}

	return fmt.Errorf("object store operation failed: %w", err)
}

// Compile-time interface check
var _ ObjectStore = (*S3Store)(nil)
