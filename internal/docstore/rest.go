package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// =============================================================================
// REST Implementation
// =============================================================================

// RESTConfig holds connection settings for the hosted document API.
type RESTConfig struct {
	// Endpoint is the API base URL, e.g. "https://cloud.example.io/v1".
	Endpoint string

	// ProjectID is the fixed project identifier sent with every request.
	ProjectID string

	// APIKey is the server key. Optional for read-only public collections.
	APIKey string

	// DatabaseID scopes all collections.
	DatabaseID string
}

// RESTStore implements Store over the document API's HTTP surface.
type RESTStore struct {
	cfg    RESTConfig
	client *http.Client
	logger *slog.Logger
}

// NewRESTStore creates a document store client. If httpClient is nil,
// http.DefaultClient is used; any timeout policy belongs to the caller's
// client.
func NewRESTStore(cfg RESTConfig, httpClient *http.Client, logger *slog.Logger) *RESTStore {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RESTStore{
		cfg: RESTConfig{
			Endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
			ProjectID:  cfg.ProjectID,
			APIKey:     cfg.APIKey,
			DatabaseID: cfg.DatabaseID,
		},
		client: httpClient,
		logger: logger,
	}
}

// =============================================================================
// Interface Implementation
// =============================================================================

func (s *RESTStore) Create(ctx context.Context, collection, id string, fields map[string]any) (*Document, error) {
	body := map[string]any{
		"documentId": id,
		"data":       fields,
	}
	doc, err := s.do(ctx, http.MethodPost, s.documentsPath(collection), body)
	if err != nil {
		return nil, fmt.Errorf("create document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *RESTStore) Update(ctx context.Context, collection, id string, fields map[string]any) (*Document, error) {
	body := map[string]any{
		"data": fields,
	}
	doc, err := s.do(ctx, http.MethodPatch, s.documentPath(collection, id), body)
	if err != nil {
		return nil, fmt.Errorf("update document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *RESTStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	doc, err := s.do(ctx, http.MethodGet, s.documentPath(collection, id), nil)
	if err != nil {
		return nil, fmt.Errorf("get document %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *RESTStore) List(ctx context.Context, collection string, q Query) (*ListResult, error) {
	params := url.Values{}
	for field, value := range q.Equals {
		params.Add("queries[]", fmt.Sprintf("equal(%q, %q)", field, value))
	}
	if q.OrderDesc != "" {
		params.Add("queries[]", fmt.Sprintf("orderDesc(%q)", q.OrderDesc))
	}
	if q.Limit > 0 {
		params.Add("queries[]", fmt.Sprintf("limit(%d)", q.Limit))
	}
	if q.Offset > 0 {
		params.Add("queries[]", fmt.Sprintf("offset(%d)", q.Offset))
	}

	req, err := s.newRequest(ctx, http.MethodGet, s.documentsPath(collection)+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list documents %s: %w", collection, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("list documents %s: %w", collection, err)
	}

	var payload struct {
		Total     int              `json:"total"`
		Documents []map[string]any `json:"documents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("list documents %s: decode response: %w", collection, err)
	}

	result := &ListResult{Total: payload.Total}
	for _, raw := range payload.Documents {
		result.Documents = append(result.Documents, splitDocument(raw))
	}
	return result, nil
}

func (s *RESTStore) Delete(ctx context.Context, collection, id string) error {
	req, err := s.newRequest(ctx, http.MethodDelete, s.documentPath(collection, id), nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("delete document %s/%s: %w", collection, id, err)
	}
	return nil
}

// =============================================================================
// Internal Helpers
// =============================================================================

func (s *RESTStore) documentsPath(collection string) string {
	return fmt.Sprintf("%s/databases/%s/collections/%s/documents",
		s.cfg.Endpoint, s.cfg.DatabaseID, collection)
}

func (s *RESTStore) documentPath(collection, id string) string {
	return s.documentsPath(collection) + "/" + url.PathEscape(id)
}

func (s *RESTStore) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Project", s.cfg.ProjectID)
	if s.cfg.APIKey != "" {
		req.Header.Set("X-Key", s.cfg.APIKey)
	}
	return req, nil
}

// do issues a request with an optional JSON body and decodes a single
// document response.
func (s *RESTStore) do(ctx context.Context, method, rawURL string, body map[string]any) (*Document, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := s.newRequest(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	doc := splitDocument(raw)
	return &doc, nil
}

// splitDocument separates the "$id" system field from the data fields.
func splitDocument(raw map[string]any) Document {
	doc := Document{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		if k == "$id" {
			if id, ok := v.(string); ok {
				doc.ID = id
			}
			continue
		}
		if strings.HasPrefix(k, "$") {
			// Other system fields ($createdAt, $permissions) are dropped.
			continue
		}
		doc.Fields[k] = v
	}
	return doc
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	var apiErr struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
	if apiErr.Message != "" {
		return fmt.Errorf("document API returned %d: %s", resp.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("document API returned %s", resp.Status)
}

// Compile-time interface check
var _ Store = (*RESTStore)(nil)
