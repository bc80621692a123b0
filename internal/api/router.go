package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Jobs.
	r.Get("/jobs", h.ListJobs)
	r.Post("/jobs/{name}/run", h.RunJob)

	// Strike ledger. Orphan ids are paths, hence the wildcard.
	r.Get("/strikes/{kind}", h.ListStrikes)
	r.Delete("/strikes/{kind}/*", h.ResetStrikes)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
