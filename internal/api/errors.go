package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/gray-logic-sfc/internal/catalog"
	"github.com/nerrad567/gray-logic-sfc/internal/design"
	"github.com/nerrad567/gray-logic-sfc/internal/recording"
	"github.com/nerrad567/gray-logic-sfc/internal/sfc"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeConflict    = "conflict"
	ErrCodeInternal    = "internal_error"
	ErrCodeValidation  = "validation_error"
	ErrCodeUnavailable = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeConflict writes a 409 error response.
func writeConflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, ErrCodeConflict, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps a domain sentinel error onto an HTTP response.
// Unrecognised errors are logged and reported as 500 with fallback as the
// message, so internal details never leak to clients.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, design.ErrDesignNotFound):
		writeNotFound(w, "design not found")
	case errors.Is(err, recording.ErrRunNotFound):
		writeNotFound(w, "run not found")
	case errors.Is(err, sfc.ErrNoActiveRun):
		writeNotFound(w, "no active run")
	case errors.Is(err, design.ErrInvalidChart),
		errors.Is(err, catalog.ErrInvalidPattern),
		errors.Is(err, catalog.ErrUnknownVariable),
		errors.Is(err, catalog.ErrInvalidVariable),
		errors.Is(err, catalog.ErrInvalidServerConfig):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, catalog.ErrNoServerConfig):
		writeConflict(w, "no automation server configured")
	case errors.Is(err, sfc.ErrManagerClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "server is shutting down")
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}
