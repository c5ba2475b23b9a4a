package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/photo-triage/internal/processing"
)

func TestRespondJSON(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		data     any
		wantBody string
	}{
		{"nil data writes no body", http.StatusOK, nil, ""},
		{"empty map", http.StatusOK, map[string]string{}, "{}\n"},
		{"created", http.StatusCreated, map[string]int{"count": 2}, "{\"count\":2}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			respondJSON(recorder, tt.status, tt.data)

			assertStatusCode(t, recorder, tt.status)
			assertContentType(t, recorder, "application/json")
			if recorder.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, recorder.Body.String())
			}
		})
	}
}

func TestRespondError(t *testing.T) {
	recorder := httptest.NewRecorder()
	respondError(recorder, http.StatusBadRequest, "something went wrong")

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertContentType(t, recorder, "application/json")
	assertJSONError(t, recorder, "something went wrong")
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{processing.ErrInvalidQuery, http.StatusBadRequest},
		{processing.ErrNotFound, http.StatusNotFound},
		{processing.ErrTaskNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: task abc", processing.ErrTaskConflict), http.StatusConflict},
		{processing.ErrBusy, http.StatusConflict},
		{processing.ErrTaskNotActive, http.StatusConflict},
		{fmt.Errorf("%w: timeout", processing.ErrEmbedding), http.StatusBadGateway},
		{processing.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusForError(tt.err); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("a\nb\r\nc"); got != "abc" {
		t.Errorf("expected 'abc', got %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	for _, method := range []string{"GET", "HEAD", "POST"} {
		t.Run(method, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			HealthCheck(recorder, httptest.NewRequest(method, "/api/v1/health", nil))

			assertStatusCode(t, recorder, http.StatusOK)
			var result map[string]string
			if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if result["status"] != "ok" {
				t.Errorf("expected status 'ok', got '%s'", result["status"])
			}
		})
	}
}
