// Package service contains the business logic layer.
//
// This file implements the serve attempt pipeline: validate the field
// submission, prepare and upload evidence, persist the record with a local
// fallback, and fire the follow-up notification and cache resync.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/justlegal/servetrack/internal/blobstore"
	"github.com/justlegal/servetrack/internal/cache"
	"github.com/justlegal/servetrack/internal/docstore"
	"github.com/justlegal/servetrack/internal/domain"
	"github.com/justlegal/servetrack/internal/mailer"
	"github.com/justlegal/servetrack/internal/media"
	"github.com/justlegal/servetrack/internal/metrics"
	"github.com/justlegal/servetrack/internal/worker"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SubmitParams carries one field submission. ClientID is the only required
// field; everything else defaults.
type SubmitParams struct {
	// ID lets the caller pin the record identifier. Generated when empty,
	// before any side effect, so a fallback-queued record keeps the same
	// identity it would have had remotely.
	ID string

	ClientID    string
	ClientName  string
	ClientEmail string

	CaseNumber string
	CaseName   string
	Status     string
	Notes      string

	Address        string
	ServiceAddress string

	// Coordinates accepts the canonical "lat,lon" string form.
	Coordinates string

	// CoordinatePair accepts the structured form. The string form wins
	// when both are supplied.
	CoordinatePair *domain.Coordinates

	// ImageData is the base64 evidence payload, with or without a
	// data-URL prefix.
	ImageData string

	Timestamp     time.Time
	AttemptNumber int
}

// SubmitResult reports a completed submission. Persisted distinguishes a
// remote write from a fallback-queued one; both are success to the caller.
type SubmitResult struct {
	Serve     *domain.ServeAttempt
	Persisted bool

	// Notified resolves when the fire-after notification dispatch
	// finishes. Callers need not await it.
	Notified <-chan error

	// Resynced resolves when the fire-after cache refresh finishes.
	// Nil when the submission went to the fallback queue.
	Resynced <-chan error
}

// UpdateResult reports an update. Changed is false for an empty diff, in
// which case no remote call was made and Serve is the original record.
type UpdateResult struct {
	Serve    *domain.ServeAttempt
	Changed  bool
	Notified <-chan error
	Resynced <-chan error
}

// ServeService defines the interface for serve-attempt operations.
type ServeService interface {
	// Submit runs the full pipeline for one field submission.
	// Returns domain.EINVALID for validation errors; every other failure
	// is contained and the submission still succeeds with degraded data.
	Submit(ctx context.Context, params SubmitParams) (*SubmitResult, error)

	// GetServe retrieves a serve attempt by ID.
	// Returns domain.ENOTFOUND if the record does not exist.
	GetServe(ctx context.Context, id string) (*domain.ServeAttempt, error)

	// List retrieves serve attempts ordered by timestamp descending,
	// optionally filtered to one client.
	List(ctx context.Context, params ListParams) ([]*domain.ServeAttempt, int, error)

	// Update patches the four mutable fields. An empty diff makes no
	// remote call and returns the original record.
	// Returns domain.ENOTFOUND if the record does not exist.
	Update(ctx context.Context, id string, upd domain.ServeUpdate) (*UpdateResult, error)

	// Delete removes a serve attempt and its evidence objects.
	// Returns domain.EINVALID for a missing ID before any remote call.
	Delete(ctx context.Context, id string) error

	// ReplayFallback pushes fallback-queued records to the remote store.
	// Returns how many records were drained from the queue.
	ReplayFallback(ctx context.Context) (int, error)
}

// Notifier dispatches one notification and reports a structured result.
// Satisfied by mailer.Dispatcher.
type Notifier interface {
	Dispatch(ctx context.Context, req mailer.Request) mailer.Result
}

// TaskRunner submits fire-after work. Satisfied by worker.Runner.
type TaskRunner interface {
	Submit(task worker.Task) <-chan error
}

// =============================================================================
// Implementation
// =============================================================================

// Params bundles the collaborators a ServeService needs.
type Params struct {
	Docs            docstore.Store
	ServeCollection string

	Objects         blobstore.ObjectStore
	EvidenceBucket  string
	ThumbnailBucket string

	Thumbnails   media.ThumbnailProcessor
	ThumbnailOpt media.ThumbnailOptions

	Cache    *cache.Store
	Notifier Notifier
	Clients  ClientService // optional; nil disables directory enrichment
	Runner   TaskRunner
	Syncer   *Syncer
	Logger   *slog.Logger
}

// serveService implements the ServeService interface.
type serveService struct {
	docs       docstore.Store
	collection string

	objects         blobstore.ObjectStore
	evidenceBucket  string
	thumbnailBucket string

	thumbnails media.ThumbnailProcessor
	thumbOpts  media.ThumbnailOptions

	cache    *cache.Store
	notifier Notifier
	clients  ClientService
	runner   TaskRunner
	syncer   *Syncer
	logger   *slog.Logger
}

// NewServeService creates a new ServeService.
func NewServeService(p Params) ServeService {
	return &serveService{
		docs:            p.Docs,
		collection:      p.ServeCollection,
		objects:         p.Objects,
		evidenceBucket:  p.EvidenceBucket,
		thumbnailBucket: p.ThumbnailBucket,
		thumbnails:      p.Thumbnails,
		thumbOpts:       p.ThumbnailOpt,
		cache:           p.Cache,
		notifier:        p.Notifier,
		clients:         p.Clients,
		runner:          p.Runner,
		syncer:          p.Syncer,
		logger:          p.Logger,
	}
}

// =============================================================================
// Submit
// =============================================================================

func (s *serveService) Submit(ctx context.Context, params SubmitParams) (*SubmitResult, error) {
	const op = "service.serve.submit"
	start := time.Now()

	if strings.TrimSpace(params.ClientID) == "" {
		metrics.SubmissionCompleted(metrics.OutcomeError, time.Since(start).Seconds())
		return nil, domain.Invalid(op, "client_id is required")
	}

	attempt := buildSubmission(&params)
	s.enrichFromDirectory(ctx, attempt)

	ev := s.prepareEvidence(ctx, attempt.ID, params.ImageData)
	attempt.ImageURL = ev.ImageURL
	attempt.ImageFileID = ev.ImageFileID
	attempt.ThumbnailURL = ev.ThumbnailURL
	attempt.ThumbnailFileID = ev.ThumbnailFileID

	persisted := true
	if _, err := s.docs.Create(ctx, s.collection, attempt.ID, attempt.WireFields()); err != nil {
		persisted = false
		s.queueFallback(attempt, err)
		metrics.SubmissionCompleted(metrics.OutcomeFallback, time.Since(start).Seconds())
	} else {
		metrics.SubmissionCompleted(metrics.OutcomeOK, time.Since(start).Seconds())
	}

	s.logger.Info("serve attempt submitted",
		"serve_id", attempt.ID,
		"client_id", attempt.ClientID,
		"status", attempt.Status,
		"persisted", persisted,
		"has_evidence", attempt.HasEvidence(),
	)

	result := &SubmitResult{Serve: attempt, Persisted: persisted}
	result.Notified = s.fireNotify(mailer.Request{
		To:          s.recipientsFor(ctx, attempt),
		Subject:     mailer.CreateSubject(attempt),
		HTML:        mailer.BuildServeEmailBody(attempt),
		ImageURL:    attempt.ImageURL,
		InlineImage: params.ImageData,
	})
	if persisted {
		result.Resynced = s.fireResync()
	}
	return result, nil
}

// buildSubmission assembles the canonical record with every default
// applied. The identifier is fixed here, before any side effect.
func buildSubmission(p *SubmitParams) *domain.ServeAttempt {
	id := p.ID
	if id == "" {
		id = blobstore.NewObjectID()
	}

	coords := domain.NormalizeCoordinates(p.Coordinates, p.CoordinatePair)

	address := strings.TrimSpace(p.Address)
	if address == "" {
		if coords != domain.ZeroCoordinates {
			address = "Coordinates: " + coords
		} else {
			address = domain.NoAddressProvided
		}
	}

	clientName := strings.TrimSpace(p.ClientName)
	if clientName == "" {
		clientName = domain.UnknownClientName
	}
	caseNumber := strings.TrimSpace(p.CaseNumber)
	if caseNumber == "" {
		caseNumber = domain.UnspecifiedCaseNum
	}
	caseName := strings.TrimSpace(p.CaseName)
	if caseName == "" {
		caseName = domain.UnknownCaseName
	}

	// The service address falls back to the caller's main address. The
	// coordinate-derived placeholder stays out of it.
	serviceAddr := strings.TrimSpace(p.ServiceAddress)
	if serviceAddr == "" {
		serviceAddr = strings.TrimSpace(p.Address)
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	attemptNumber := p.AttemptNumber
	if attemptNumber <= 0 {
		attemptNumber = domain.DefaultAttemptNumber
	}

	return &domain.ServeAttempt{
		ID:            id,
		ClientID:      p.ClientID,
		ClientName:    clientName,
		ClientEmail:   strings.TrimSpace(p.ClientEmail),
		CaseNumber:    caseNumber,
		CaseName:      caseName,
		Status:        domain.NormalizeStatus(p.Status),
		Notes:         p.Notes,
		Address:       address,
		ServiceAddr:   serviceAddr,
		Coordinates:   coords,
		Timestamp:     ts,
		AttemptNumber: attemptNumber,
	}
}

// enrichFromDirectory fills in client name and contact email from the
// client directory when the submission left them blank. Lookup failure is
// not a reason to reject a field submission.
func (s *serveService) enrichFromDirectory(ctx context.Context, attempt *domain.ServeAttempt) {
	if s.clients == nil {
		return
	}
	if attempt.ClientName != domain.UnknownClientName && attempt.ClientEmail != "" {
		return
	}

	client, err := s.clients.GetByID(ctx, attempt.ClientID)
	if err != nil {
		s.logger.Warn("client directory lookup failed",
			"client_id", attempt.ClientID,
			"error", err,
		)
		return
	}
	if attempt.ClientName == domain.UnknownClientName && client.Name != "" {
		attempt.ClientName = client.Name
	}
	if attempt.ClientEmail == "" {
		attempt.ClientEmail = client.Email
	}
}

// queueFallback durably parks a record the remote store rejected. Evidence
// bytes never enter the queue and the full-image reference is dropped;
// thumbnail references are kept. Must never raise past the caller.
func (s *serveService) queueFallback(attempt *domain.ServeAttempt, cause error) {
	s.logger.Error("remote create failed, queueing locally",
		"serve_id", attempt.ID,
		"error", domain.Unavailable(cause, "service.serve.submit", "document store create failed"),
	)

	rec := cache.FromServeAttempt(attempt)
	rec.ImageURL = nil
	rec.ImageFileID = ""

	if err := s.cache.AppendFallback(rec); err != nil {
		s.logger.Error("fallback append failed, submission is in-memory only",
			"serve_id", attempt.ID,
			"error", err,
		)
		return
	}
	if depth, err := s.cache.FallbackDepth(); err == nil {
		metrics.SetFallbackDepth(depth)
	}
}

// recipientsFor picks the explicit notification recipients. The business
// oversight address is appended later by the dispatcher.
func (s *serveService) recipientsFor(ctx context.Context, attempt *domain.ServeAttempt) []string {
	if attempt.ClientEmail != "" {
		return []string{attempt.ClientEmail}
	}
	if s.clients != nil {
		if client, err := s.clients.GetByID(ctx, attempt.ClientID); err == nil {
			return client.Recipients()
		}
	}
	return nil
}

// =============================================================================
// Read Path
// =============================================================================

func (s *serveService) GetServe(ctx context.Context, id string) (*domain.ServeAttempt, error) {
	const op = "service.serve.get"

	if id == "" {
		return nil, domain.Invalid(op, "serve id is required")
	}

	doc, err := s.docs.Get(ctx, s.collection, id)
	if err != nil {
		if docstore.IsNotFound(err) {
			return nil, domain.NotFound(op, "serve attempt", id)
		}
		return nil, domain.Unavailable(err, op, "document store get failed")
	}
	return domain.ServeFromWire(doc.ID, doc.Fields), nil
}

// ListParams narrows a List call. A zero Limit means no page cap.
type ListParams struct {
	ClientID string
	Limit    int
	Offset   int
}

func (s *serveService) List(ctx context.Context, params ListParams) ([]*domain.ServeAttempt, int, error) {
	const op = "service.serve.list"

	q := docstore.Query{
		OrderDesc: domain.FieldTimestamp,
		Limit:     params.Limit,
		Offset:    params.Offset,
	}
	if params.ClientID != "" {
		q.Equals = map[string]string{domain.FieldClientID: params.ClientID}
	}

	res, err := s.docs.List(ctx, s.collection, q)
	if err != nil {
		return nil, 0, domain.Unavailable(err, op, "document store list failed")
	}

	attempts := make([]*domain.ServeAttempt, 0, len(res.Documents))
	for _, doc := range res.Documents {
		attempts = append(attempts, domain.ServeFromWire(doc.ID, doc.Fields))
	}
	return attempts, res.Total, nil
}

// =============================================================================
// Update
// =============================================================================

func (s *serveService) Update(ctx context.Context, id string, upd domain.ServeUpdate) (*UpdateResult, error) {
	const op = "service.serve.update"

	orig, err := s.GetServe(ctx, id)
	if err != nil {
		return nil, err
	}

	diff := upd.Diff(orig)
	if len(diff) == 0 {
		return &UpdateResult{Serve: orig}, nil
	}

	doc, err := s.docs.Update(ctx, s.collection, id, diff)
	if err != nil {
		return nil, domain.Unavailable(err, op, "document store update failed")
	}
	updated := domain.ServeFromWire(doc.ID, doc.Fields)
	updated.ClientEmail = orig.ClientEmail

	s.logger.Info("serve attempt updated",
		"serve_id", id,
		"changed_fields", len(diff),
	)

	result := &UpdateResult{Serve: updated, Changed: true}
	result.Notified = s.fireNotify(mailer.Request{
		To:       s.recipientsFor(ctx, updated),
		Subject:  mailer.UpdateSubject(updated),
		HTML:     mailer.BuildServeEmailBody(updated),
		ImageURL: updated.ImageURL,
		ServeID:  updated.ID,
	})
	result.Resynced = s.fireResync()
	return result, nil
}

// =============================================================================
// Delete
// =============================================================================

func (s *serveService) Delete(ctx context.Context, id string) error {
	const op = "service.serve.delete"

	if strings.TrimSpace(id) == "" {
		return domain.Invalid(op, "serve id is required")
	}

	attempt, err := s.GetServe(ctx, id)
	if err != nil {
		return err
	}

	if err := s.docs.Delete(ctx, s.collection, id); err != nil {
		if docstore.IsNotFound(err) {
			return domain.NotFound(op, "serve attempt", id)
		}
		return domain.Unavailable(err, op, "document store delete failed")
	}

	// Evidence objects are owned by the record. Orphan cleanup is
	// best-effort once the record itself is gone.
	s.deleteObject(ctx, s.evidenceBucket, attempt.ImageFileID)
	s.deleteObject(ctx, s.thumbnailBucket, attempt.ThumbnailFileID)

	s.logger.Info("serve attempt deleted", "serve_id", id)
	return nil
}

func (s *serveService) deleteObject(ctx context.Context, bucket, id string) {
	if id == "" {
		return
	}
	if err := s.objects.Delete(ctx, bucket, id); err != nil {
		s.logger.Warn("evidence object cleanup failed",
			"bucket", bucket,
			"object_id", id,
			"error", err,
		)
	}
}

// =============================================================================
// Fallback Replay
// =============================================================================

// ReplayFallback drains the local fallback queue into the remote store.
// Records are keyed by the identifier fixed at submission time, so a replay
// that races an earlier partial success is idempotent: a record already
// present remotely is dropped from the queue without a second create.
func (s *serveService) ReplayFallback(ctx context.Context) (int, error) {
	const op = "service.serve.replay"

	pending, err := s.cache.Fallback()
	if err != nil {
		return 0, domain.Internal(err, op, "read fallback queue")
	}

	replayed := 0
	for i := range pending {
		attempt := pending[i].ToServeAttempt()

		_, err := s.docs.Get(ctx, s.collection, attempt.ID)
		switch {
		case err == nil:
			// Already remote; just drop it from the queue.
		case docstore.IsNotFound(err):
			if _, err := s.docs.Create(ctx, s.collection, attempt.ID, attempt.WireFields()); err != nil {
				s.logger.Warn("fallback replay still failing",
					"serve_id", attempt.ID,
					"error", err,
				)
				continue
			}
		default:
			s.logger.Warn("fallback replay lookup failed",
				"serve_id", attempt.ID,
				"error", err,
			)
			continue
		}

		if err := s.cache.RemoveFallback(attempt.ID); err != nil {
			s.logger.Error("fallback dequeue failed",
				"serve_id", attempt.ID,
				"error", err,
			)
			continue
		}
		replayed++
	}

	if depth, err := s.cache.FallbackDepth(); err == nil {
		metrics.SetFallbackDepth(depth)
	}
	if replayed > 0 {
		s.logger.Info("fallback queue replayed", "replayed", replayed, "pending", len(pending)-replayed)
	}
	return replayed, nil
}

// =============================================================================
// Fire-After Tasks
// =============================================================================

func (s *serveService) fireNotify(req mailer.Request) <-chan error {
	return s.runner.Submit(worker.Task{
		Name: "notify",
		Fn: func(ctx context.Context) error {
			return s.notifier.Dispatch(ctx, req).Err
		},
	})
}

func (s *serveService) fireResync() <-chan error {
	return s.runner.Submit(worker.Task{
		Name: "resync",
		Fn: func(ctx context.Context) error {
			if err := s.syncer.Sync(ctx); err != nil {
				return fmt.Errorf("post-write resync: %w", err)
			}
			return nil
		},
	})
}

// Compile-time interface check
var _ ServeService = (*serveService)(nil)
