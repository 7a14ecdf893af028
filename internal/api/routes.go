package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured. An empty
// API key leaves everything unauthenticated; health is always public.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			if h.apiKey != "" {
				r.Use(AuthMiddleware(h.apiKey))
			}

			r.Get("/stats", h.Stats)

			r.Post("/sync", h.ForceSync)
			r.Get("/sync/status", h.SyncStatus)
			r.Get("/sync/queue", h.SyncQueue)

			r.Post("/backups", h.CreateBackup)
			r.Get("/backups", h.ListBackups)
			r.Get("/backups/schedule", h.GetSchedule)
			r.Put("/backups/schedule", h.UpdateSchedule)
			r.Delete("/backups/{id}", h.DeleteBackup)
			r.Post("/backups/{id}/restore", h.RestoreBackup)

			r.Post("/restore", h.RestoreUpload)
			r.Get("/restore/log", h.RestoreHistory)
		})
	})

	return r
}
