package service

import (
	"context"
	"log/slog"

	"github.com/justlegal/servetrack/internal/cache"
	"github.com/justlegal/servetrack/internal/docstore"
	"github.com/justlegal/servetrack/internal/domain"
	"github.com/justlegal/servetrack/internal/mailer"
	"github.com/justlegal/servetrack/internal/metrics"
)

// Syncer refreshes the local read cache from the remote document store.
type Syncer struct {
	docs       docstore.Store
	collection string
	cache      *cache.Store
	limit      int
	logger     *slog.Logger
}

// NewSyncer creates a Syncer pulling the most recent limit records.
func NewSyncer(docs docstore.Store, collection string, c *cache.Store, limit int, logger *slog.Logger) *Syncer {
	if limit <= 0 {
		limit = 100
	}
	return &Syncer{
		docs:       docs,
		collection: collection,
		cache:      c,
		limit:      limit,
		logger:     logger,
	}
}

// Sync pulls the newest records and replaces the read cache wholesale.
// A remote read failure leaves the previous cache untouched and emits no
// cache-updated event.
func (s *Syncer) Sync(ctx context.Context) error {
	const op = "service.sync"

	res, err := s.docs.List(ctx, s.collection, docstore.Query{
		OrderDesc: domain.FieldTimestamp,
		Limit:     s.limit,
	})
	if err != nil {
		metrics.SyncCompleted(metrics.OutcomeError)
		return domain.Unavailable(err, op, "document store list failed")
	}

	// An empty remote result is more likely a degraded backend than a
	// genuinely empty collection; keep whatever the cache already holds.
	if len(res.Documents) == 0 {
		metrics.SyncCompleted(metrics.OutcomeOK)
		s.logger.Info("remote store returned no records, keeping existing cache")
		return nil
	}

	records := make([]cache.CachedRecord, 0, len(res.Documents))
	for _, doc := range res.Documents {
		records = append(records, cache.FromServeAttempt(domain.ServeFromWire(doc.ID, doc.Fields)))
	}

	stripped, err := s.cache.ReplaceServes(records)
	if err != nil {
		metrics.SyncCompleted(metrics.OutcomeError)
		return domain.Internal(err, op, "replace read cache")
	}

	metrics.SyncCompleted(metrics.OutcomeOK)
	s.logger.Info("read cache refreshed",
		"records", len(records),
		"remote_total", res.Total,
		"legacy_images_stripped", stripped,
	)
	return nil
}

// =============================================================================
// Attachment Resolution Reader
// =============================================================================

// serveReader is a minimal read-only lookup used by the notification
// dispatcher to resolve cross-referenced attachments. It avoids a
// construction cycle between the dispatcher and the full serve service.
type serveReader struct {
	docs       docstore.Store
	collection string
}

// NewServeReader returns a RecordFetcher over the serve collection.
func NewServeReader(docs docstore.Store, collection string) mailer.RecordFetcher {
	return &serveReader{docs: docs, collection: collection}
}

func (r *serveReader) GetServe(ctx context.Context, id string) (*domain.ServeAttempt, error) {
	const op = "service.reader.get"

	doc, err := r.docs.Get(ctx, r.collection, id)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, domain.NotFound(op, "serve attempt", id)
		}
		return nil, domain.Unavailable(err, op, "document store get failed")
	}
	return domain.ServeFromWire(doc.ID, doc.Fields), nil
}
