package handlers

import (
	"errors"
	"io/fs"
	"net/http"
	"os"

	"github.com/kozaktomas/photo-triage/internal/catalog"
	"github.com/kozaktomas/photo-triage/internal/processing"
)

// PhotosHandler serves the photo catalog
type PhotosHandler struct {
	orch *processing.Orchestrator
}

// NewPhotosHandler creates a new photos handler
func NewPhotosHandler(orch *processing.Orchestrator) *PhotosHandler {
	return &PhotosHandler{orch: orch}
}

// PhotosResponse is the catalog listing
type PhotosResponse struct {
	Count  int             `json:"count"`
	Photos []catalog.Entry `json:"photos"`
}

// List returns catalog entries. Query parameters: filter=all|qualified|defective
// and defect=<type>, repeated or comma-separated.
func (h *PhotosHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := catalog.ParseFilter(q.Get("filter"), q["defect"], h.orch.DefectTypes())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	photos := h.orch.Catalog(filter)
	respondJSON(w, http.StatusOK, PhotosResponse{Count: len(photos), Photos: photos})
}

// Stats returns catalog totals
func (h *PhotosHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.orch.CatalogStats())
}

// File streams a cataloged photo. Only paths present in the catalog are served.
func (h *PhotosHandler) File(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	entry, err := h.orch.Photo(id)
	if err != nil {
		respondOrchestratorError(w, err)
		return
	}

	f, err := os.Open(entry.PhotoID)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			respondError(w, http.StatusNotFound, "photo file not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to open photo")
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		respondError(w, http.StatusNotFound, "photo file not found")
		return
	}
	http.ServeContent(w, r, entry.Filename, stat.ModTime(), f)
}
