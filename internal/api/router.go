package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter mounts every route under /api/v1. Only /health is open
// without a token.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID, s.accessLog, s.recoverer, middleware.RequestSize(maxRequestBodySize))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handle(s.handleHealth))

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/databases", s.handle(s.handleListDatabases))
			r.Get("/databases/detail", s.handle(s.handleGetDatabase))
			r.Post("/checkpoint", s.handle(s.handleCheckpoint))
			r.Get("/checkpoint/stats", s.handle(s.handleCheckpointStats))
			r.Get("/ws", s.handleWebSocket)
		})
	})

	r.NotFound(s.handle(func(http.ResponseWriter, *http.Request) error {
		return errNoRoute
	}))
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"databases": len(s.databases.Paths()),
	})
	return nil
}
