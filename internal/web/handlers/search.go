package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/photo-triage/internal/processing"
)

// SearchHandler handles text-to-image search
type SearchHandler struct {
	orch *processing.Orchestrator
	log  logrus.FieldLogger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(orch *processing.Orchestrator, log logrus.FieldLogger) *SearchHandler {
	return &SearchHandler{orch: orch, log: log}
}

// SearchRequest represents a search request
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// SearchResponse represents the search results
type SearchResponse struct {
	Query   string                    `json:"query"`
	Count   int                       `json:"count"`
	Results []processing.SearchResult `json:"results"`
}

// Search embeds the query and returns the closest indexed photos
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	results, err := h.orch.Search(r.Context(), req.Query, req.TopK)
	if err != nil {
		h.log.WithError(err).WithField("query", sanitizeForLog(req.Query)).Warn("search failed")
		respondOrchestratorError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, SearchResponse{
		Query:   req.Query,
		Count:   len(results),
		Results: results,
	})
}
