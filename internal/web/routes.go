package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/photo-triage/internal/web/handlers"
	"github.com/kozaktomas/photo-triage/internal/web/static"
)

// requestTimeout bounds regular API calls; the SSE stream is exempt.
const requestTimeout = 5 * time.Minute

func (s *Server) setupRoutes() {
	uploadDir := s.config.Processing.UploadDir

	configHandler := handlers.NewConfigHandler(s.config, s.orch.Options(), s.orch.Detectors())
	processHandler := handlers.NewProcessHandler(s.orch, s.log)
	searchHandler := handlers.NewSearchHandler(s.orch, s.log)
	photosHandler := handlers.NewPhotosHandler(s.orch)
	uploadHandler := handlers.NewUploadHandler(uploadDir, s.log)
	clearHandler := handlers.NewClearHandler(s.orch)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Long-lived event stream
		r.Get("/process/{taskId}/events", processHandler.Events)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(requestTimeout))

			r.Get("/health", handlers.HealthCheck)
			r.Get("/config", configHandler.Get)

			// Processing tasks
			r.Post("/process", processHandler.Start)
			r.Get("/process", processHandler.List)
			r.Get("/process/{taskId}", processHandler.Get)
			r.Delete("/process/{taskId}", processHandler.Cancel)

			// Search
			r.Post("/search", searchHandler.Search)

			// Catalog
			r.Get("/photos", photosHandler.List)
			r.Get("/photos/stats", photosHandler.Stats)
			r.Get("/photos/file", photosHandler.File)

			r.Post("/upload", uploadHandler.Upload)
			r.Post("/clear", clearHandler.Clear)
		})
	})

	s.router.Get("/", s.serveIndex)
}

// serveIndex serves the embedded status page
func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(static.IndexHTML())
}
