package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/justlegal/servetrack/internal/domain"
)

// ErrorResponse writes a JSON error response, mapping domain error codes to
// HTTP status codes.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	code := domain.ErrorCode(err)
	message := domain.ErrorMessage(err)
	status := ErrorCodeToHTTPStatus(code)

	logError(logger, r, err, code, status)
	writeJSONError(w, status, code, message)
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID, domain.EDECODE:
		return http.StatusBadRequest // 400
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.EUPLOAD, domain.ENOTIFY:
		return http.StatusBadGateway // 502
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable // 503
	case domain.EINTERNAL:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// NotFoundResponse writes a standard 404.
func NotFoundResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	logger.Info("route not found", "method", r.Method, "path", r.URL.Path)
	writeJSONError(w, http.StatusNotFound, domain.ENOTFOUND, "resource not found")
}

func logError(logger *slog.Logger, r *http.Request, err error, code string, status int) {
	var derr *domain.Error
	op := ""
	if errors.As(err, &derr) {
		op = derr.Op
	}

	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"code", code,
		"op", op,
		"status", status,
		"error", err,
	}
	if status >= 500 {
		logger.Error("request failed", attrs...)
	} else {
		logger.Info("request rejected", attrs...)
	}
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
