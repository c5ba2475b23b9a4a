package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-triage/internal/processing"
)

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) {
	jsonData, _ := json.Marshal(data)
	_, _ = io.WriteString(w, "event: "+eventType+"\n")
	_, _ = io.WriteString(w, "data: ")
	_, _ = io.Copy(w, bytes.NewReader(jsonData))
	_, _ = io.WriteString(w, "\n\n")
	flusher.Flush()
}

// isTerminalEvent reports whether an event ends the stream.
func isTerminalEvent(eventType string) bool {
	return processing.TaskStatus(eventType).Terminal()
}

// streamTaskEvents streams a task's events until it reaches a terminal
// status, the client disconnects, or the listener is closed.
func streamTaskEvents(w http.ResponseWriter, r *http.Request, orch *processing.Orchestrator) {
	taskID := chi.URLParam(r, "taskId")
	if taskID == "" {
		respondError(w, http.StatusBadRequest, "missing task ID")
		return
	}

	// Subscribe before the snapshot so no transition is missed in between
	task, eventCh, unsubscribe, err := orch.Subscribe(taskID)
	if err != nil {
		respondOrchestratorError(w, err)
		return
	}
	defer unsubscribe()

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	snap := task.Snapshot()
	sendSSEEvent(w, flusher, "status", snap)
	if snap.Status.Terminal() {
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			sendSSEEvent(w, flusher, event.Type, event)
			if isTerminalEvent(event.Type) {
				return
			}
		case <-task.Done():
			// The terminal event is sent before Done closes; flush what is buffered
			for {
				select {
				case event := <-eventCh:
					sendSSEEvent(w, flusher, event.Type, event)
					if isTerminalEvent(event.Type) {
						return
					}
				default:
					return
				}
			}
		}
	}
}
