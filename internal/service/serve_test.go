package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justlegal/servetrack/internal/cache"
	"github.com/justlegal/servetrack/internal/docstore"
	"github.com/justlegal/servetrack/internal/domain"
	"github.com/justlegal/servetrack/internal/mailer"
	"github.com/justlegal/servetrack/internal/media"
	"github.com/justlegal/servetrack/internal/worker"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeDocs struct {
	mu      sync.Mutex
	docs    map[string]map[string]map[string]any // collection -> id -> fields
	err     map[string]error                     // per-operation failure injection
	creates int
	updates int
	lists   int
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{
		docs: make(map[string]map[string]map[string]any),
		err:  make(map[string]error),
	}
}

func (f *fakeDocs) fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err[op] = err
}

func (f *fakeDocs) Create(_ context.Context, collection, id string, fields map[string]any) (*docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if err := f.err["create"]; err != nil {
		return nil, err
	}
	if f.docs[collection] == nil {
		f.docs[collection] = make(map[string]map[string]any)
	}
	stored := make(map[string]any, len(fields))
	for k, v := range fields {
		stored[k] = v
	}
	f.docs[collection][id] = stored
	return &docstore.Document{ID: id, Fields: stored}, nil
}

func (f *fakeDocs) Update(_ context.Context, collection, id string, fields map[string]any) (*docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if err := f.err["update"]; err != nil {
		return nil, err
	}
	stored, ok := f.docs[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	for k, v := range fields {
		stored[k] = v
	}
	return &docstore.Document{ID: id, Fields: stored}, nil
}

func (f *fakeDocs) Get(_ context.Context, collection, id string) (*docstore.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err["get"]; err != nil {
		return nil, err
	}
	stored, ok := f.docs[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return &docstore.Document{ID: id, Fields: stored}, nil
}

func (f *fakeDocs) List(_ context.Context, collection string, q docstore.Query) (*docstore.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if err := f.err["list"]; err != nil {
		return nil, err
	}

	var out []docstore.Document
	for id, fields := range f.docs[collection] {
		matched := true
		for field, want := range q.Equals {
			if got, _ := fields[field].(string); got != want {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, docstore.Document{ID: id, Fields: fields})
		}
	}
	if q.OrderDesc != "" {
		sort.Slice(out, func(i, j int) bool {
			a, _ := out[i].Fields[q.OrderDesc].(string)
			b, _ := out[j].Fields[q.OrderDesc].(string)
			return a > b
		})
	}
	total := len(out)
	if q.Offset > 0 && q.Offset < len(out) {
		out = out[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return &docstore.ListResult{Documents: out, Total: total}, nil
}

func (f *fakeDocs) Delete(_ context.Context, collection, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.err["delete"]; err != nil {
		return err
	}
	if _, ok := f.docs[collection][id]; !ok {
		return docstore.ErrNotFound
	}
	delete(f.docs[collection], id)
	return nil
}

type fakeObjects struct {
	mu      sync.Mutex
	stored  map[string][]byte // "bucket/id"
	failing map[string]error  // bucket -> error
	deleted []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{
		stored:  make(map[string][]byte),
		failing: make(map[string]error),
	}
}

func (f *fakeObjects) Put(_ context.Context, bucket, id string, data io.Reader, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failing[bucket]; err != nil {
		return err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.stored[bucket+"/"+id] = b
	return nil
}

func (f *fakeObjects) Delete(_ context.Context, bucket, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, bucket+"/"+id)
	return nil
}

func (f *fakeObjects) PublicURL(bucket, id string) string {
	return "https://cdn.test/" + bucket + "/" + id
}

type fakeNotifier struct {
	mu       sync.Mutex
	requests []mailer.Request
	result   mailer.Result
}

func (f *fakeNotifier) Dispatch(_ context.Context, req mailer.Request) mailer.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.result.Transport == "" && f.result.Err == nil {
		return mailer.Result{Success: true, Transport: "function"}
	}
	return f.result
}

func (f *fakeNotifier) last(t *testing.T) mailer.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.requests, "no notification dispatched")
	return f.requests[len(f.requests)-1]
}

// inlineRunner executes tasks synchronously so tests observe completed
// side effects without timing dependence.
type inlineRunner struct{}

func (inlineRunner) Submit(task worker.Task) <-chan error {
	done := make(chan error, 1)
	done <- task.Fn(context.Background())
	close(done)
	return done
}

type fakeThumbs struct {
	err error
}

func (f *fakeThumbs) GenerateThumbnail(io.Reader, media.ThumbnailOptions) ([]byte, int, int, error) {
	if f.err != nil {
		return nil, 0, 0, f.err
	}
	return []byte("thumb-bytes"), 400, 200, nil
}

// =============================================================================
// Fixture
// =============================================================================

const (
	serveCollection  = "serve_attempts"
	clientCollection = "clients"
	evidenceBucket   = "serve-evidence"
	thumbBucket      = "serve-thumbnails"
)

type fixture struct {
	svc      ServeService
	docs     *fakeDocs
	objects  *fakeObjects
	notifier *fakeNotifier
	thumbs   *fakeThumbs
	cache    *cache.Store
	syncer   *Syncer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), cache.DefaultMaxBytes, logger)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	docs := newFakeDocs()
	objects := newFakeObjects()
	notifier := &fakeNotifier{}
	thumbs := &fakeThumbs{}
	syncer := NewSyncer(docs, serveCollection, c, 100, logger)

	svc := NewServeService(Params{
		Docs:            docs,
		ServeCollection: serveCollection,
		Objects:         objects,
		EvidenceBucket:  evidenceBucket,
		ThumbnailBucket: thumbBucket,
		Thumbnails:      thumbs,
		Cache:           c,
		Notifier:        notifier,
		Clients:         NewClientService(docs, clientCollection, logger),
		Runner:          inlineRunner{},
		Syncer:          syncer,
		Logger:          logger,
	})

	return &fixture{
		svc:      svc,
		docs:     docs,
		objects:  objects,
		notifier: notifier,
		thumbs:   thumbs,
		cache:    c,
		syncer:   syncer,
	}
}

// testImageBase64 returns a small real JPEG as raw base64.
func testImageBase64(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 12), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// =============================================================================
// Submit
// =============================================================================

func TestSubmit_RequiresClientID(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(context.Background(), SubmitParams{})
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.Zero(t, f.docs.creates, "validation failure must precede any side effect")
}

func TestSubmit_FullPipeline(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Submit(context.Background(), SubmitParams{
		ClientID:    "client1",
		ClientName:  "Acme Process LLC",
		ClientEmail: "ops@acme.test",
		CaseNumber:  "2025-CV-100",
		CaseName:    "Smith v. Jones",
		Status:      "completed",
		Notes:       "Served at front door",
		Address:     "123 Main St",
		Coordinates: "36.15,-95.99",
		ImageData:   "data:image/jpeg;base64," + testImageBase64(t),
	})
	require.NoError(t, err)
	require.True(t, res.Persisted)

	serve := res.Serve
	assert.NotEmpty(t, serve.ID)
	assert.Equal(t, "https://cdn.test/"+evidenceBucket+"/serve_"+serve.ID+"_full.jpg", serve.ImageURL)
	assert.Equal(t, "https://cdn.test/"+thumbBucket+"/serve_"+serve.ID+"_thumb.jpg", serve.ThumbnailURL)

	stored := f.docs.docs[serveCollection][serve.ID]
	require.NotNil(t, stored, "record not persisted remotely")
	assert.Equal(t, "client1", stored[domain.FieldClientID])
	assert.Equal(t, "completed", stored[domain.FieldStatus])
	assert.Equal(t, "36.15,-95.99", stored[domain.FieldCoordinates])
	assert.Contains(t, stored, domain.FieldThumbnailURL)
	assert.NotContains(t, stored, domain.FieldLegacyImageData, "inline bytes must never persist")

	// Fire-after effects ran inline.
	require.NoError(t, <-res.Notified)
	require.NoError(t, <-res.Resynced)

	req := f.notifier.last(t)
	assert.Equal(t, []string{"ops@acme.test"}, req.To)
	assert.Equal(t, serve.ImageURL, req.ImageURL)
	assert.Contains(t, req.Subject, "Successful")

	cached, err := f.cache.Serves()
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, serve.ID, cached[0].ID)
}

func TestSubmit_DefaultsApplied(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Submit(context.Background(), SubmitParams{ClientID: "client1"})
	require.NoError(t, err)

	serve := res.Serve
	assert.Equal(t, domain.UnknownClientName, serve.ClientName)
	assert.Equal(t, domain.UnknownCaseName, serve.CaseName)
	assert.Equal(t, domain.UnspecifiedCaseNum, serve.CaseNumber)
	assert.Equal(t, domain.ServeStatusUnknown, serve.Status)
	assert.Equal(t, domain.ZeroCoordinates, serve.Coordinates)
	assert.Equal(t, domain.NoAddressProvided, serve.Address)
	assert.Equal(t, domain.DefaultAttemptNumber, serve.AttemptNumber)
	assert.False(t, serve.Timestamp.IsZero())
	assert.Empty(t, serve.ServiceAddr, "no placeholder leaks into the service address")
}

func TestSubmit_ServiceAddressFallsBackToAddress(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Submit(context.Background(), SubmitParams{
		ClientID: "client1",
		Address:  "123 Main St",
	})
	require.NoError(t, err)
	assert.Equal(t, "123 Main St", res.Serve.ServiceAddr)

	res, err = f.svc.Submit(context.Background(), SubmitParams{
		ClientID:       "client1",
		Address:        "123 Main St",
		ServiceAddress: "456 Side Door",
	})
	require.NoError(t, err)
	assert.Equal(t, "456 Side Door", res.Serve.ServiceAddr)
}

func TestSubmit_CoordinateAddressFallback(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Submit(context.Background(), SubmitParams{
		ClientID:       "client1",
		CoordinatePair: &domain.Coordinates{Latitude: 36.15, Longitude: -95.99},
	})
	require.NoError(t, err)
	assert.Equal(t, "Coordinates: 36.15,-95.99", res.Serve.Address)
}

func TestSubmit_DirectoryEnrichment(t *testing.T) {
	f := newFixture(t)
	_, err := f.docs.Create(context.Background(), clientCollection, "client1", map[string]any{
		"name":  "Acme Process LLC",
		"email": "ops@acme.test",
	})
	require.NoError(t, err)

	res, err := f.svc.Submit(context.Background(), SubmitParams{ClientID: "client1"})
	require.NoError(t, err)
	assert.Equal(t, "Acme Process LLC", res.Serve.ClientName)
	assert.Equal(t, "ops@acme.test", res.Serve.ClientEmail)
}

func TestSubmit_ThumbnailUploadFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.objects.failing[thumbBucket] = errors.New("bucket unavailable")

	res, err := f.svc.Submit(context.Background(), SubmitParams{
		ClientID:  "client1",
		ImageData: testImageBase64(t),
	})
	require.NoError(t, err)

	serve := res.Serve
	assert.NotEmpty(t, serve.ImageURL, "full image upload must survive thumbnail failure")
	assert.Empty(t, serve.ThumbnailURL)

	stored := f.docs.docs[serveCollection][serve.ID]
	assert.NotEmpty(t, stored[domain.FieldImageURL])
	assert.NotContains(t, stored, domain.FieldThumbnailURL)
	assert.NotContains(t, stored, domain.FieldThumbnailFileID)
}

func TestSubmit_FullImageUploadFailureIsIsolated(t *testing.T) {
	f := newFixture(t)
	f.objects.failing[evidenceBucket] = errors.New("bucket unavailable")

	res, err := f.svc.Submit(context.Background(), SubmitParams{
		ClientID:  "client1",
		ImageData: testImageBase64(t),
	})
	require.NoError(t, err)
	assert.Empty(t, res.Serve.ImageURL)
	assert.NotEmpty(t, res.Serve.ThumbnailURL)
}

func TestSubmit_MalformedImageDegradesEvidenceOnly(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Submit(context.Background(), SubmitParams{
		ClientID:  "client1",
		ImageData: "!!!not-base64!!!",
	})
	require.NoError(t, err, "decode failure must not fail the submission")
	require.True(t, res.Persisted)
	assert.False(t, res.Serve.HasEvidence())
}

func TestSubmit_RemoteFailureQueuesFallback(t *testing.T) {
	f := newFixture(t)
	f.docs.fail("create", errors.New("store unreachable"))

	res, err := f.svc.Submit(context.Background(), SubmitParams{
		ClientID:  "client1",
		ImageData: testImageBase64(t),
	})
	require.NoError(t, err, "persistence failure must not raise to the caller")
	assert.False(t, res.Persisted)
	assert.Nil(t, res.Resynced, "no resync after a fallback write")

	pending, err := f.cache.Fallback()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.Serve.ID, pending[0].ID)
	assert.Nil(t, pending[0].ImageURL, "fallback record carries no full-image reference")
	assert.Nil(t, pending[0].LegacyImageData, "fallback record carries no image bytes")
	assert.NotEmpty(t, pending[0].ThumbnailURL, "thumbnail reference survives fallback")

	// Notification still fires for a fallback-queued submission.
	require.NoError(t, <-res.Notified)
}

// =============================================================================
// Update
// =============================================================================

func submitOne(t *testing.T, f *fixture, params SubmitParams) *domain.ServeAttempt {
	t.Helper()
	if params.ClientID == "" {
		params.ClientID = "client1"
	}
	res, err := f.svc.Submit(context.Background(), params)
	require.NoError(t, err)
	require.True(t, res.Persisted)
	return res.Serve
}

// =============================================================================
// Read Path
// =============================================================================

func TestList_FilterByClient(t *testing.T) {
	f := newFixture(t)
	submitOne(t, f, SubmitParams{ClientID: "client1", Notes: "one"})
	submitOne(t, f, SubmitParams{ClientID: "client1", Notes: "two"})
	other := submitOne(t, f, SubmitParams{ClientID: "client2", Notes: "three"})

	all, total, err := f.svc.List(context.Background(), ListParams{Limit: 100})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, 3, total)

	filtered, total, err := f.svc.List(context.Background(), ListParams{ClientID: "client2", Limit: 100})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, 1, total)
	assert.Equal(t, other.ID, filtered[0].ID)
}

func TestUpdate_EmptyDiffMakesNoRemoteCall(t *testing.T) {
	f := newFixture(t)
	serve := submitOne(t, f, SubmitParams{Notes: "original", Status: "failed"})

	notes := "original"
	status := domain.ServeStatusFailed
	res, err := f.svc.Update(context.Background(), serve.ID, domain.ServeUpdate{
		Notes:  &notes,
		Status: &status,
	})
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Zero(t, f.docs.updates, "empty diff must issue zero remote writes")
	assert.Nil(t, res.Notified)
	assert.Equal(t, serve.ID, res.Serve.ID)
	assert.Equal(t, "original", res.Serve.Notes)
}

func TestUpdate_ChangedFieldsOnly(t *testing.T) {
	f := newFixture(t)
	serve := submitOne(t, f, SubmitParams{Notes: "original", Status: "failed", CaseName: "Smith v. Jones"})

	notes := "subject relocated"
	status := domain.ServeStatusCompleted
	res, err := f.svc.Update(context.Background(), serve.ID, domain.ServeUpdate{
		Notes:  &notes,
		Status: &status,
	})
	require.NoError(t, err)
	require.True(t, res.Changed)
	assert.Equal(t, 1, f.docs.updates)
	assert.Equal(t, "subject relocated", res.Serve.Notes)
	assert.Equal(t, domain.ServeStatusCompleted, res.Serve.Status)
	assert.Equal(t, "Smith v. Jones", res.Serve.CaseName, "untouched fields survive")

	require.NoError(t, <-res.Notified)
	require.NoError(t, <-res.Resynced)
	assert.Contains(t, f.notifier.last(t).Subject, "Updated")
}

func TestUpdate_MissingRecord(t *testing.T) {
	f := newFixture(t)

	notes := "x"
	_, err := f.svc.Update(context.Background(), "nope", domain.ServeUpdate{Notes: &notes})
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

// =============================================================================
// Delete
// =============================================================================

func TestDelete_RejectsEmptyID(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Delete(context.Background(), "  ")
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestDelete_CascadesToEvidence(t *testing.T) {
	f := newFixture(t)
	serve := submitOne(t, f, SubmitParams{ImageData: testImageBase64(t)})

	require.NoError(t, f.svc.Delete(context.Background(), serve.ID))
	assert.NotContains(t, f.docs.docs[serveCollection], serve.ID)
	assert.Contains(t, f.objects.deleted, evidenceBucket+"/serve_"+serve.ID+"_full.jpg")
	assert.Contains(t, f.objects.deleted, thumbBucket+"/serve_"+serve.ID+"_thumb.jpg")
}

// =============================================================================
// Fallback Replay
// =============================================================================

func TestReplayFallback(t *testing.T) {
	f := newFixture(t)

	// Queue two submissions while the store is down.
	f.docs.fail("create", errors.New("store unreachable"))
	first, err := f.svc.Submit(context.Background(), SubmitParams{ClientID: "client1", Notes: "one"})
	require.NoError(t, err)
	second, err := f.svc.Submit(context.Background(), SubmitParams{ClientID: "client1", Notes: "two"})
	require.NoError(t, err)

	// Store recovers; one of the records somehow already landed remotely.
	f.docs.fail("create", nil)
	_, err = f.docs.Create(context.Background(), serveCollection, first.Serve.ID, first.Serve.WireFields())
	require.NoError(t, err)

	replayed, err := f.svc.ReplayFallback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, replayed)

	pending, err := f.cache.Fallback()
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Contains(t, f.docs.docs[serveCollection], second.Serve.ID)
}

// =============================================================================
// Sync Reconciler
// =============================================================================

func TestSync_ReplacesCacheWholesale(t *testing.T) {
	f := newFixture(t)
	submitOne(t, f, SubmitParams{Notes: "one"})
	submitOne(t, f, SubmitParams{Notes: "two"})

	require.NoError(t, f.syncer.Sync(context.Background()))
	cached, err := f.cache.Serves()
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestSync_EmptyRemoteResultLeavesCacheUntouched(t *testing.T) {
	f := newFixture(t)
	submitOne(t, f, SubmitParams{Notes: "one"})
	require.NoError(t, f.syncer.Sync(context.Background()))

	f.docs.docs[serveCollection] = map[string]map[string]any{}
	require.NoError(t, f.syncer.Sync(context.Background()))

	cached, err := f.cache.Serves()
	require.NoError(t, err)
	assert.Len(t, cached, 1, "an empty remote result must not wipe the cache")
}

func TestSync_RemoteFailureLeavesCacheUntouched(t *testing.T) {
	f := newFixture(t)
	submitOne(t, f, SubmitParams{Notes: "one"})
	require.NoError(t, f.syncer.Sync(context.Background()))

	f.docs.fail("list", errors.New("store unreachable"))
	err := f.syncer.Sync(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))

	cached, err := f.cache.Serves()
	require.NoError(t, err)
	assert.Len(t, cached, 1, "failed sync must not clear the previous cache")
}
