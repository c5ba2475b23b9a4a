package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/photo-triage/internal/processing"
)

// ProcessHandler handles folder processing tasks
type ProcessHandler struct {
	orch *processing.Orchestrator
	log  logrus.FieldLogger
}

// NewProcessHandler creates a new process handler
func NewProcessHandler(orch *processing.Orchestrator, log logrus.FieldLogger) *ProcessHandler {
	return &ProcessHandler{
		orch: orch,
		log:  log,
	}
}

// ProcessRequest represents a request to process a folder
type ProcessRequest struct {
	FolderPath string `json:"folder_path"`
	Force      bool   `json:"force"`
}

// ProcessResponse is returned when a task is accepted
type ProcessResponse struct {
	TaskID string                `json:"task_id"`
	Status processing.TaskStatus `json:"status"`
}

// Start queues a processing task for a folder
func (h *ProcessHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.FolderPath == "" {
		respondError(w, http.StatusBadRequest, "folder_path is required")
		return
	}

	id, err := h.orch.Submit(r.Context(), req.FolderPath, processing.SubmitOptions{Force: req.Force})
	if err != nil {
		h.log.WithError(err).WithField("folder", sanitizeForLog(req.FolderPath)).Warn("process request rejected")
		respondOrchestratorError(w, err)
		return
	}

	status := processing.StatusQueued
	if snap, err := h.orch.Status(id); err == nil {
		status = snap.Status
	}
	respondJSON(w, http.StatusAccepted, ProcessResponse{TaskID: id, Status: status})
}

// List returns every known task in submission order
func (h *ProcessHandler) List(w http.ResponseWriter, r *http.Request) {
	tasks := h.orch.Tasks()
	respondJSON(w, http.StatusOK, map[string]any{
		"count": len(tasks),
		"tasks": tasks,
	})
}

// Get returns a snapshot of one task
func (h *ProcessHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.orch.Status(chi.URLParam(r, "taskId"))
	if err != nil {
		respondOrchestratorError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// Events streams task progress as server-sent events
func (h *ProcessHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamTaskEvents(w, r, h.orch)
}

// Cancel stops a queued or running task
func (h *ProcessHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "missing task ID")
		return
	}
	if err := h.orch.Cancel(taskID); err != nil {
		respondOrchestratorError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}
