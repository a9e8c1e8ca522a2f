package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/aeshef/knowledge-bot/internal/index"
	"github.com/aeshef/knowledge-bot/internal/ingest"
	"github.com/aeshef/knowledge-bot/internal/vocab"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *ingest.Service, db *index.DB, cfg *vocab.Store, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, db, cfg)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Ingest flow.
	r.Post("/ingest", h.Ingest)
	r.Get("/ingest/{id}", h.GetPending)
	r.Post("/ingest/{id}/derived", h.AddDerived)
	r.Post("/ingest/{id}/type", h.SetType)
	r.Post("/ingest/{id}/confirm", h.Confirm)
	r.Post("/ingest/{id}/cancel", h.Cancel)

	// Catalog.
	r.Get("/notes", h.ListNotes)
	r.Get("/search", h.Search)
	r.Get("/types", h.ListTypes)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
