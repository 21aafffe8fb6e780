// Package media normalizes inbound image payloads and produces size-capped
// thumbnails for serve evidence.
//
// Field submissions arrive as base64 text, with or without a data-URL
// prefix. This package strips the prefix, decodes the bytes, and generates
// an aspect-preserving thumbnail small enough for list views and email
// clients.
package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"
)

// MaxImageDimension is the advisory upper bound for thumbnail candidates.
// Larger images still upload fine; we just skip the thumbnail work.
const MaxImageDimension = 4096

// =============================================================================
// Base64 Normalization
// =============================================================================

const dataURLMarker = "base64,"

// ExtractBase64 strips a data-URL scheme marker ("data:image/jpeg;base64,")
// from the payload if one is present. Without a marker the whole string is
// treated as raw base64. Stripping is idempotent: running it on already
// stripped input returns the input unchanged.
func ExtractBase64(payload string) string {
	if i := strings.Index(payload, dataURLMarker); i >= 0 {
		return payload[i+len(dataURLMarker):]
	}
	return payload
}

// DecodeBase64Image normalizes and decodes an inbound image payload.
// Returns the raw image bytes.
func DecodeBase64Image(payload string) ([]byte, error) {
	raw := strings.TrimSpace(ExtractBase64(payload))
	if raw == "" {
		return nil, fmt.Errorf("empty image payload")
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		// Some producers emit URL-safe or unpadded base64.
		if data, rawErr := base64.RawStdEncoding.DecodeString(raw); rawErr == nil {
			return data, nil
		}
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	return data, nil
}

// =============================================================================
// Thumbnail Generation
// =============================================================================

// ThumbnailOptions configures thumbnail generation.
type ThumbnailOptions struct {
	MaxWidth  int            // Default 400
	MaxHeight int            // Default 300
	Quality   int            // JPEG quality 1-100, default 80
	Format    imaging.Format // Default imaging.JPEG
}

// withDefaults fills zero values with the standard evidence thumbnail
// parameters.
func (o ThumbnailOptions) withDefaults() ThumbnailOptions {
	if o.MaxWidth <= 0 {
		o.MaxWidth = 400
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = 300
	}
	if o.Quality <= 0 {
		o.Quality = 80
	}
	return o
}

// ThumbnailProcessor handles thumbnail generation from decoded image bytes.
type ThumbnailProcessor interface {
	// GenerateThumbnail creates a thumbnail from the provided image data.
	// Returns the re-encoded thumbnail bytes plus the original width and
	// height. The thumbnail fits within the configured maxima while
	// preserving aspect ratio.
	GenerateThumbnail(data io.Reader, opts ThumbnailOptions) ([]byte, int, int, error)
}

// imagingProcessor implements ThumbnailProcessor using the imaging library.
type imagingProcessor struct{}

// NewImagingProcessor creates a thumbnail processor backed by the imaging
// library.
func NewImagingProcessor() ThumbnailProcessor {
	return &imagingProcessor{}
}

func (p *imagingProcessor) GenerateThumbnail(data io.Reader, opts ThumbnailOptions) ([]byte, int, int, error) {
	opts = opts.withDefaults()

	img, _, err := image.Decode(data)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	originalWidth := bounds.Dx()
	originalHeight := bounds.Dy()

	// Fit scales down using whichever dimension is the binding constraint
	// and never upscales smaller images.
	thumbnail := imaging.Fit(img, opts.MaxWidth, opts.MaxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, opts.Format, imaging.JPEGQuality(opts.Quality)); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	return buf.Bytes(), originalWidth, originalHeight, nil
}

// =============================================================================
// Validation
// =============================================================================

// ValidForThumbnail reports whether the image is worth thumbnailing: both
// dimensions strictly positive and neither above MaxImageDimension. The
// check is advisory; it reads only the image header.
func ValidForThumbnail(data []byte) bool {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return false
	}
	return cfg.Width > 0 && cfg.Height > 0 &&
		cfg.Width <= MaxImageDimension && cfg.Height <= MaxImageDimension
}
