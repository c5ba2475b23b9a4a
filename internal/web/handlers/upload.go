package handlers

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/photo-triage/internal/constants"
	"github.com/kozaktomas/photo-triage/internal/imaging"
)

// UploadHandler stores uploaded photos in a fresh folder that can then be processed.
type UploadHandler struct {
	uploadDir string
	log       logrus.FieldLogger
}

// NewUploadHandler creates a new upload handler.
func NewUploadHandler(uploadDir string, log logrus.FieldLogger) *UploadHandler {
	return &UploadHandler{
		uploadDir: uploadDir,
		log:       log,
	}
}

// UploadResponse describes a finished upload.
type UploadResponse struct {
	UploadID   string   `json:"upload_id"`
	FolderPath string   `json:"folder_path"`
	Saved      []string `json:"saved"`
	Skipped    []string `json:"skipped"`
}

// saveUploadedFiles saves the supported multipart files into dir. Files with
// other extensions are returned as skipped.
func saveUploadedFiles(files []*multipart.FileHeader, dir string) (saved, skipped []string, err error) {
	for _, fileHeader := range files {
		safeName := filepath.Base(fileHeader.Filename)
		if safeName == "." || safeName == string(filepath.Separator) || !imaging.IsSupported(safeName) {
			skipped = append(skipped, fileHeader.Filename)
			continue
		}

		if err := func() error {
			file, err := fileHeader.Open()
			if err != nil {
				return fmt.Errorf("failed to open file: %s", safeName)
			}
			defer file.Close()

			path := filepath.Join(dir, safeName)
			out, err := os.Create(path) //nolint:gosec // filename sanitized via filepath.Base
			if err != nil {
				return fmt.Errorf("failed to create file: %s", safeName)
			}
			if _, err := io.Copy(out, file); err != nil {
				out.Close()
				return fmt.Errorf("failed to save file: %s", safeName)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("failed to save file: %s", safeName)
			}

			saved = append(saved, path)
			return nil
		}(); err != nil {
			return nil, nil, err
		}
	}
	return saved, skipped, nil
}

// Upload handles multipart uploads of the "files" field.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no files provided")
		return
	}

	uploadID := uuid.New().String()
	dir := filepath.Join(h.uploadDir, uploadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		h.log.WithError(err).Error("failed to create upload directory")
		respondError(w, http.StatusInternalServerError, "failed to create upload directory")
		return
	}

	saved, skipped, err := saveUploadedFiles(files, dir)
	if err != nil {
		os.RemoveAll(dir)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(saved) == 0 {
		os.RemoveAll(dir)
		respondError(w, http.StatusBadRequest, "no supported image files")
		return
	}

	h.log.WithFields(logrus.Fields{"folder": dir, "saved": len(saved), "skipped": len(skipped)}).Info("photos uploaded")
	if skipped == nil {
		skipped = []string{}
	}
	respondJSON(w, http.StatusOK, UploadResponse{
		UploadID:   uploadID,
		FolderPath: dir,
		Saved:      saved,
		Skipped:    skipped,
	})
}
