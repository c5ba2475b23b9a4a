package handlers

import (
	"net/http"

	"github.com/kozaktomas/photo-triage/internal/processing"
)

// ClearHandler wipes the catalog, the index and uploaded files
type ClearHandler struct {
	orch *processing.Orchestrator
}

// NewClearHandler creates a new clear handler
func NewClearHandler(orch *processing.Orchestrator) *ClearHandler {
	return &ClearHandler{orch: orch}
}

// Clear resets all state. Rejected with 409 while a task is queued or running.
func (h *ClearHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Clear(r.Context()); err != nil {
		respondOrchestratorError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
