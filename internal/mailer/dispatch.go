package mailer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/justlegal/servetrack/internal/domain"
	"github.com/justlegal/servetrack/internal/media"
	"github.com/justlegal/servetrack/internal/metrics"
)

// maxAttachmentBytes caps downloaded evidence; anything bigger would bounce
// at the mail provider anyway.
const maxAttachmentBytes = 25 * 1024 * 1024

// Attachment source labels, in priority order.
const (
	SourceURL    = "url"
	SourceRecord = "record"
	SourceInline = "inline"
	SourceNone   = "none"
)

// =============================================================================
// Dispatcher
// =============================================================================

// RecordFetcher looks up a serve attempt for cross-referenced attachment
// resolution. Implemented by the serve service's read side.
type RecordFetcher interface {
	GetServe(ctx context.Context, id string) (*domain.ServeAttempt, error)
}

// Request describes one notification to dispatch. At most one attachment
// source is used, picked in strict priority order: ImageURL, then ServeID,
// then InlineImage.
type Request struct {
	To      []string
	Subject string
	HTML    string

	ImageURL    string // Explicit evidence URL; must begin with an HTTP scheme
	ServeID     string // Cross-referenced record to resolve evidence from
	InlineImage string // Legacy base64 payload, with or without data-URL prefix
}

// Result reports the outcome of a dispatch. A failed send is a result, not
// an error that propagates into the triggering record write.
type Result struct {
	Success          bool
	Transport        string // Transport that delivered, empty on failure
	AttachmentSource string // Which resolver supplied the attachment
	Err              error  // ENOTIFY when both transports failed
}

// Dispatcher assembles and sends notification emails.
type Dispatcher struct {
	transports    []Transport // tried in order; first success wins
	records       RecordFetcher
	client        *http.Client
	businessEmail string
	logger        *slog.Logger
}

// NewDispatcher creates a Dispatcher. Transports are tried in the order
// given; records may be nil if cross-referenced resolution is not needed.
func NewDispatcher(
	transports []Transport,
	records RecordFetcher,
	httpClient *http.Client,
	businessEmail string,
	logger *slog.Logger,
) *Dispatcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Dispatcher{
		transports:    transports,
		records:       records,
		client:        httpClient,
		businessEmail: businessEmail,
		logger:        logger,
	}
}

// Dispatch resolves the attachment, builds the recipient list, and sends
// the message, falling through the transport chain on failure.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	const op = "mailer.dispatch"

	if req.Subject == "" || req.HTML == "" {
		return Result{Err: domain.Invalid(op, "subject and content are required")}
	}

	// The business address backstops an empty explicit list, so a
	// submission with no resolvable client email still notifies.
	to := BuildRecipients(req.To, d.businessEmail)
	if len(to) == 0 {
		return Result{Err: domain.Invalid(op, "no recipients resolved")}
	}

	attachment, source := d.resolveAttachment(ctx, req)

	msg := &Message{
		To:         to,
		Subject:    req.Subject,
		HTML:       req.HTML,
		Attachment: attachment,
	}

	var lastErr error
	for _, transport := range d.transports {
		if err := transport.Send(ctx, msg); err != nil {
			d.logger.Warn("mail transport failed",
				"transport", transport.Name(),
				"subject", req.Subject,
				"error", err,
			)
			metrics.NotificationFailed(transport.Name())
			lastErr = err
			continue
		}

		d.logger.Info("notification sent",
			"transport", transport.Name(),
			"recipients", len(msg.To),
			"attachment_source", source,
		)
		metrics.NotificationSent(transport.Name())
		return Result{Success: true, Transport: transport.Name(), AttachmentSource: source}
	}

	err := domain.Notify(lastErr, op, "all mail transports failed")
	d.logger.Error("notification undeliverable",
		"subject", req.Subject,
		"recipients", len(msg.To),
		"error", err,
	)
	return Result{AttachmentSource: source, Err: err}
}

// =============================================================================
// Attachment Resolution
// =============================================================================

// resolveAttachment walks the source chain in priority order and returns
// the first attachment that resolves. Every step is independently fallible:
// a failed step is logged and the chain moves on. No source at all is not
// an error; the email just goes out bare.
func (d *Dispatcher) resolveAttachment(ctx context.Context, req Request) (*Attachment, string) {
	type resolver struct {
		source string
		applic bool
		fn     func(ctx context.Context) (*Attachment, error)
	}

	chain := []resolver{
		{
			source: SourceURL,
			applic: strings.HasPrefix(req.ImageURL, "http"),
			fn: func(ctx context.Context) (*Attachment, error) {
				return d.download(ctx, req.ImageURL)
			},
		},
		{
			source: SourceRecord,
			applic: req.ServeID != "" && d.records != nil,
			fn: func(ctx context.Context) (*Attachment, error) {
				return d.resolveFromRecord(ctx, req.ServeID)
			},
		},
		{
			source: SourceInline,
			applic: req.InlineImage != "",
			fn: func(ctx context.Context) (*Attachment, error) {
				return decodeInline(req.InlineImage)
			},
		},
	}

	for _, r := range chain {
		if !r.applic {
			continue
		}
		attachment, err := r.fn(ctx)
		if err != nil {
			d.logger.Warn("attachment source failed, trying next",
				"source", r.source,
				"error", err,
			)
			continue
		}
		if attachment != nil {
			return attachment, r.source
		}
	}
	return nil, SourceNone
}

// resolveFromRecord fetches the cross-referenced serve attempt and prefers
// its stored evidence URL, falling back to its legacy inline field.
func (d *Dispatcher) resolveFromRecord(ctx context.Context, serveID string) (*Attachment, error) {
	serve, err := d.records.GetServe(ctx, serveID)
	if err != nil {
		return nil, fmt.Errorf("fetch serve %s: %w", serveID, err)
	}

	if strings.HasPrefix(serve.ImageURL, "http") {
		return d.download(ctx, serve.ImageURL)
	}
	if serve.LegacyImageData != "" {
		return decodeInline(serve.LegacyImageData)
	}
	return nil, nil
}

// download eagerly fetches the evidence image at the given URL.
func (d *Dispatcher) download(ctx context.Context, rawURL string) (*Attachment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download evidence: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("download evidence: %s returned %s", rawURL, resp.Status)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes))
	if err != nil {
		return nil, fmt.Errorf("read evidence body: %w", err)
	}
	return &Attachment{Filename: AttachmentFilename, Content: content}, nil
}

// decodeInline turns a legacy base64 payload into attachment bytes,
// stripping any data-URL prefix first.
func decodeInline(payload string) (*Attachment, error) {
	content, err := media.DecodeBase64Image(payload)
	if err != nil {
		return nil, fmt.Errorf("decode inline evidence: %w", err)
	}
	return &Attachment{Filename: AttachmentFilename, Content: content}, nil
}
