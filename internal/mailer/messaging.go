package mailer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// =============================================================================
// Direct Messaging API Transport
// =============================================================================

// MessagingConfig holds settings for the direct messaging API fallback.
type MessagingConfig struct {
	// Endpoint is the platform API base URL.
	Endpoint string

	// ProjectID is the fixed project identifier.
	ProjectID string

	// APIKey authenticates the request.
	APIKey string

	// ProviderID is the configured SMTP provider.
	ProviderID string

	// TopicID is the subscriber topic the message posts under.
	TopicID string
}

// MessagingTransport posts directly to the messaging API. It is the
// secondary transport, used when the mail function does not acknowledge
// completion.
type MessagingTransport struct {
	cfg    MessagingConfig
	client *http.Client
	logger *slog.Logger
}

// NewMessagingTransport creates the direct-API transport. A nil httpClient
// selects http.DefaultClient.
func NewMessagingTransport(cfg MessagingConfig, httpClient *http.Client, logger *slog.Logger) *MessagingTransport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	cfg.Endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
	return &MessagingTransport{cfg: cfg, client: httpClient, logger: logger}
}

func (t *MessagingTransport) Name() string { return "messaging_api" }

func (t *MessagingTransport) Send(ctx context.Context, msg *Message) error {
	content := map[string]any{
		"subject": msg.Subject,
		"html":    msg.HTML,
	}
	if msg.Attachment != nil {
		content["attachments"] = []map[string]any{{
			"content":     base64.StdEncoding.EncodeToString(msg.Attachment.Content),
			"filename":    msg.Attachment.Filename,
			"disposition": "attachment",
		}}
	}

	payload := map[string]any{
		"userId":       "unique",
		"providerType": "smtp",
		"providerId":   t.cfg.ProviderID,
		"targetId":     strings.Join(msg.To, ", "),
		"content":      content,
		"metadata":     map[string]any{},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode messaging payload: %w", err)
	}

	postURL := fmt.Sprintf("%s/messaging/topics/%s/subscribers", t.cfg.Endpoint, t.cfg.TopicID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Project", t.cfg.ProjectID)
	if t.cfg.APIKey != "" {
		req.Header.Set("X-Key", t.cfg.APIKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to messaging API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		if apiErr.Message != "" {
			return fmt.Errorf("messaging API returned %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("messaging API returned %s", resp.Status)
	}
	io.Copy(io.Discard, resp.Body)

	t.logger.Debug("message posted via messaging API",
		"topic", t.cfg.TopicID,
		"recipients", len(msg.To),
	)
	return nil
}

// Compile-time interface check
var _ Transport = (*MessagingTransport)(nil)
