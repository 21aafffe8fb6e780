package service

import (
	"bytes"
	"context"
	"net/http"
	"sync"

	"github.com/justlegal/servetrack/internal/blobstore"
	"github.com/justlegal/servetrack/internal/domain"
	"github.com/justlegal/servetrack/internal/media"
	"github.com/justlegal/servetrack/internal/metrics"
)

// evidenceRefs holds whatever object references the upload coordinator
// managed to produce. Empty fields mean that upload degraded.
type evidenceRefs struct {
	ImageURL        string
	ImageFileID     string
	ThumbnailURL    string
	ThumbnailFileID string
}

// prepareEvidence decodes the submission image, generates the thumbnail,
// and runs the two bucket uploads concurrently. Each upload fails
// independently; the record write proceeds with whatever references exist.
// A base64 decode failure drops evidence entirely, since there are no
// bytes to upload.
func (s *serveService) prepareEvidence(ctx context.Context, serveID, imageData string) evidenceRefs {
	const op = "service.evidence.prepare"

	var refs evidenceRefs
	if imageData == "" {
		return refs
	}

	raw, err := media.DecodeBase64Image(imageData)
	if err != nil {
		s.logger.Warn("evidence decode failed, submitting without evidence",
			"serve_id", serveID,
			"error", domain.Decode(err, op, "decode submission image"),
		)
		return refs
	}

	// Thumbnail generation happens up front. Its failure only skips the
	// thumbnail upload; the full image still goes out.
	var thumb []byte
	if media.ValidForThumbnail(raw) {
		thumb, _, _, err = s.thumbnails.GenerateThumbnail(bytes.NewReader(raw), s.thumbOpts)
		if err != nil {
			s.logger.Warn("thumbnail generation failed",
				"serve_id", serveID,
				"error", domain.Decode(err, op, "generate thumbnail"),
			)
			thumb = nil
		}
	} else {
		s.logger.Debug("image outside thumbnail bounds, skipping", "serve_id", serveID)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		objectID := blobstore.EvidenceFilename(serveID)
		contentType := http.DetectContentType(raw)
		if err := s.objects.Put(ctx, s.evidenceBucket, objectID, bytes.NewReader(raw), contentType); err != nil {
			metrics.UploadFailed(metrics.TargetEvidence)
			s.logger.Error("full image upload failed",
				"serve_id", serveID,
				"bucket", s.evidenceBucket,
				"error", domain.Upload(err, op, "upload full image"),
			)
			return
		}
		metrics.UploadSucceeded(metrics.TargetEvidence)
		refs.ImageFileID = objectID
		refs.ImageURL = s.objects.PublicURL(s.evidenceBucket, objectID)
	}()

	if thumb != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			objectID := blobstore.ThumbnailFilename(serveID)
			if err := s.objects.Put(ctx, s.thumbnailBucket, objectID, bytes.NewReader(thumb), "image/jpeg"); err != nil {
				metrics.UploadFailed(metrics.TargetThumbnail)
				s.logger.Error("thumbnail upload failed",
					"serve_id", serveID,
					"bucket", s.thumbnailBucket,
					"error", domain.Upload(err, op, "upload thumbnail"),
				)
				return
			}
			metrics.UploadSucceeded(metrics.TargetThumbnail)
			refs.ThumbnailFileID = objectID
			refs.ThumbnailURL = s.objects.PublicURL(s.thumbnailBucket, objectID)
		}()
	}

	wg.Wait()
	return refs
}
