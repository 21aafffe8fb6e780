// Package handler exposes the JSON API over the serve pipeline.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/justlegal/servetrack/internal/domain"
	"github.com/justlegal/servetrack/internal/service"
)

// maxRequestBytes caps submission bodies. Evidence arrives base64-encoded,
// so the cap sits well above the raw image size limit.
const maxRequestBytes = 32 * 1024 * 1024

// =============================================================================
// Request / Response Shapes
// =============================================================================

// submitRequest is the POST /api/serves body. Coordinates accepts either
// the canonical "lat,lon" string or a structured {latitude, longitude}
// pair; both normalize to the string form before storage.
type submitRequest struct {
	ID          string `json:"id"`
	ClientID    string `json:"clientId"`
	ClientName  string `json:"clientName"`
	ClientEmail string `json:"clientEmail"`

	CaseNumber string `json:"caseNumber"`
	CaseName   string `json:"caseName"`
	Status     string `json:"status"`
	Notes      string `json:"notes"`

	Address        string          `json:"address"`
	ServiceAddress string          `json:"serviceAddress"`
	Coordinates    json.RawMessage `json:"coordinates"`

	ImageData     string     `json:"imageData"`
	Timestamp     *time.Time `json:"timestamp"`
	AttemptNumber int        `json:"attemptNumber"`
}

type updateRequest struct {
	Notes      *string `json:"notes"`
	Status     *string `json:"status"`
	CaseNumber *string `json:"caseNumber"`
	CaseName   *string `json:"caseName"`
}

type serveResponse struct {
	ID              string `json:"id"`
	ClientID        string `json:"clientId"`
	ClientName      string `json:"clientName"`
	CaseNumber      string `json:"caseNumber"`
	CaseName        string `json:"caseName"`
	Status          string `json:"status"`
	Notes           string `json:"notes"`
	Address         string `json:"address"`
	ServiceAddress  string `json:"serviceAddress,omitempty"`
	Coordinates     string `json:"coordinates"`
	ImageURL        string `json:"imageUrl,omitempty"`
	ThumbnailURL    string `json:"thumbnailUrl,omitempty"`
	Timestamp       string `json:"timestamp"`
	AttemptNumber   int    `json:"attemptNumber"`
}

func toServeResponse(a *domain.ServeAttempt) serveResponse {
	return serveResponse{
		ID:             a.ID,
		ClientID:       a.ClientID,
		ClientName:     a.ClientName,
		CaseNumber:     a.CaseNumber,
		CaseName:       a.CaseName,
		Status:         a.Status.String(),
		Notes:          a.Notes,
		Address:        a.Address,
		ServiceAddress: a.ServiceAddr,
		Coordinates:    a.Coordinates,
		ImageURL:       a.ImageURL,
		ThumbnailURL:   a.ThumbnailURL,
		Timestamp:      a.Timestamp.UTC().Format(time.RFC3339),
		AttemptNumber:  a.AttemptNumber,
	}
}

// =============================================================================
// Handler
// =============================================================================

// ServeHandler handles serve attempt API requests.
type ServeHandler struct {
	serves service.ServeService
	syncer *service.Syncer
	logger *slog.Logger
}

// NewServeHandler creates a new ServeHandler.
func NewServeHandler(serves service.ServeService, syncer *service.Syncer, logger *slog.Logger) *ServeHandler {
	return &ServeHandler{
		serves: serves,
		syncer: syncer,
		logger: logger,
	}
}

// RegisterRoutes registers the serve API routes on the mux.
func (h *ServeHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/serves", h.Submit)
	mux.HandleFunc("GET /api/serves", h.List)
	mux.HandleFunc("GET /api/serves/{id}", h.Get)
	mux.HandleFunc("PATCH /api/serves/{id}", h.Update)
	mux.HandleFunc("DELETE /api/serves/{id}", h.Delete)
	mux.HandleFunc("POST /api/sync", h.Sync)
}

// Submit handles POST /api/serves.
func (h *ServeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeBody(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	params := service.SubmitParams{
		ID:             req.ID,
		ClientID:       req.ClientID,
		ClientName:     req.ClientName,
		ClientEmail:    req.ClientEmail,
		CaseNumber:     req.CaseNumber,
		CaseName:       req.CaseName,
		Status:         req.Status,
		Notes:          req.Notes,
		Address:        req.Address,
		ServiceAddress: req.ServiceAddress,
		ImageData:      req.ImageData,
		AttemptNumber:  req.AttemptNumber,
	}
	if req.Timestamp != nil {
		params.Timestamp = *req.Timestamp
	}
	params.Coordinates, params.CoordinatePair = parseCoordinateForms(req.Coordinates)

	res, err := h.serves.Submit(r.Context(), params)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"serve":     toServeResponse(res.Serve),
		"persisted": res.Persisted,
	})
}

// Get handles GET /api/serves/{id}.
func (h *ServeHandler) Get(w http.ResponseWriter, r *http.Request) {
	serve, err := h.serves.GetServe(r.Context(), r.PathValue("id"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toServeResponse(serve))
}

// List handles GET /api/serves. An optional clientId query parameter
// narrows the result to one client's attempts.
func (h *ServeHandler) List(w http.ResponseWriter, r *http.Request) {
	serves, total, err := h.serves.List(r.Context(), service.ListParams{
		ClientID: r.URL.Query().Get("clientId"),
		Limit:    queryInt(r, "limit", 100),
		Offset:   queryInt(r, "offset", 0),
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := make([]serveResponse, 0, len(serves))
	for _, s := range serves {
		out = append(out, toServeResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"serves": out,
		"total":  total,
	})
}

// Update handles PATCH /api/serves/{id}.
func (h *ServeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeBody(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	upd := domain.ServeUpdate{
		Notes:      req.Notes,
		CaseNumber: req.CaseNumber,
		CaseName:   req.CaseName,
	}
	if req.Status != nil {
		status := domain.NormalizeStatus(*req.Status)
		upd.Status = &status
	}

	res, err := h.serves.Update(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"serve":   toServeResponse(res.Serve),
		"changed": res.Changed,
	})
}

// Delete handles DELETE /api/serves/{id}.
func (h *ServeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.serves.Delete(r.Context(), r.PathValue("id")); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sync handles POST /api/sync: replay the fallback queue, then refresh the
// read cache from the remote store.
func (h *ServeHandler) Sync(w http.ResponseWriter, r *http.Request) {
	replayed, err := h.serves.ReplayFallback(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.syncer.Sync(r.Context()); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"replayed": replayed,
		"synced":   true,
	})
}

// =============================================================================
// Helpers
// =============================================================================

func decodeBody(r *http.Request, dst any) error {
	const op = "handler.decode"

	body := http.MaxBytesReader(nil, r.Body, maxRequestBytes)
	defer body.Close()

	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Invalid(op, "request body is required")
		}
		return domain.Invalid(op, "malformed JSON body")
	}
	return nil
}

// parseCoordinateForms accepts the raw coordinates value in either wire
// form. Anything unparseable is left empty and normalizes downstream.
func parseCoordinateForms(raw json.RawMessage) (string, *domain.Coordinates) {
	if len(raw) == 0 {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var pair domain.Coordinates
	if err := json.Unmarshal(raw, &pair); err == nil {
		return "", &pair
	}
	return "", nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
