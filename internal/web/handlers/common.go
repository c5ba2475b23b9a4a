package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kozaktomas/photo-triage/internal/processing"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusForError maps orchestrator errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, processing.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, processing.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, processing.ErrTaskConflict),
		errors.Is(err, processing.ErrBusy),
		errors.Is(err, processing.ErrTaskNotActive):
		return http.StatusConflict
	case errors.Is(err, processing.ErrEmbedding):
		return http.StatusBadGateway
	case errors.Is(err, processing.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondOrchestratorError writes err with the status statusForError picks.
func respondOrchestratorError(w http.ResponseWriter, err error) {
	respondError(w, statusForError(err), err.Error())
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
