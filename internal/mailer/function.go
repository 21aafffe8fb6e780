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
// Function Transport
// =============================================================================

// FunctionConfig holds settings for the remote send-email function.
type FunctionConfig struct {
	// Endpoint is the platform API base URL.
	Endpoint string

	// ProjectID is the fixed project identifier.
	ProjectID string

	// APIKey authenticates the execution request.
	APIKey string

	// FunctionID names the deployed send-email function.
	FunctionID string

	// From is the sender address the function uses.
	From string
}

// FunctionTransport invokes the remote serverless send-email function. It is
// the primary transport: cheap to call and already holds the SMTP
// credentials server-side.
type FunctionTransport struct {
	cfg    FunctionConfig
	client *http.Client
	logger *slog.Logger
}

// NewFunctionTransport creates the function-execution transport. A nil
// httpClient selects http.DefaultClient.
func NewFunctionTransport(cfg FunctionConfig, httpClient *http.Client, logger *slog.Logger) *FunctionTransport {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	cfg.Endpoint = strings.TrimSuffix(cfg.Endpoint, "/")
	return &FunctionTransport{cfg: cfg, client: httpClient, logger: logger}
}

func (t *FunctionTransport) Name() string { return "function" }

// Send invokes the function with the message as its JSON payload. The
// invocation is only considered delivered when the execution acknowledges
// completion; anything else is an error so the dispatcher can fall back.
func (t *FunctionTransport) Send(ctx context.Context, msg *Message) error {
	payload := map[string]any{
		"to":      msg.To,
		"subject": msg.Subject,
		"html":    msg.HTML,
		"from":    t.cfg.From,
	}
	if msg.Attachment != nil {
		payload["imageData"] = base64.StdEncoding.EncodeToString(msg.Attachment.Content)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode function payload: %w", err)
	}

	execURL := fmt.Sprintf("%s/functions/%s/executions", t.cfg.Endpoint, t.cfg.FunctionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, execURL, bytes.NewReader(body))
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
		return fmt.Errorf("invoke mail function: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("mail function returned %s", resp.Status)
	}

	var exec struct {
		ID     string `json:"$id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&exec); err != nil {
		return fmt.Errorf("decode execution response: %w", err)
	}
	if exec.Status != "completed" {
		return fmt.Errorf("mail function execution %q did not complete (status %q)", exec.ID, exec.Status)
	}

	t.logger.Debug("mail function execution completed",
		"execution_id", exec.ID,
		"recipients", len(msg.To),
	)
	return nil
}

// Compile-time interface check
var _ Transport = (*FunctionTransport)(nil)
