package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/seedkeeper/internal/apperr"
	"github.com/starford/seedkeeper/internal/ledger"
	"github.com/starford/seedkeeper/internal/scheduler"
)

// Scheduler is the part of the job scheduler the API drives.
type Scheduler interface {
	Jobs() []scheduler.Status
	Trigger(name string) error
}

// Ledgers resolves the current ledger of a policy kind.
type Ledgers interface {
	Ledger(kind ledger.Kind) (ledger.Recorder, bool)
}

// Handler holds API route handlers.
type Handler struct {
	sched   Scheduler
	ledgers Ledgers
	logger  *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(sched Scheduler, ledgers Ledgers, logger *slog.Logger) *Handler {
	return &Handler{sched: sched, ledgers: ledgers, logger: logger}
}

// entityID extracts the entity id from the URL (everything after the kind).
// Supports encoded slashes (e.g. %2Fdata%2Ftorrents%2Fx).
func entityID(r *http.Request) string {
	raw := chi.URLParam(r, "*")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListJobs handles GET /api/jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, JobListResponse{Jobs: toJobDTOs(h.sched.Jobs())})
}

// RunJob handles POST /api/jobs/{name}/run.
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	err := h.sched.Trigger(name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "job": name})
	case errors.Is(err, apperr.ErrUnknownJob):
		writeJSON(w, http.StatusNotFound, errorBody("unknown job"))
	case errors.Is(err, apperr.ErrJobQueued):
		writeJSON(w, http.StatusConflict, errorBody("job already queued"))
	default:
		h.logger.Error("trigger job failed", slog.String("job", name), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListStrikes handles GET /api/strikes/{kind}.
func (h *Handler) ListStrikes(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledger(w, r)
	if !ok {
		return
	}
	entries, err := l.Entries(r.Context())
	if err != nil {
		h.logger.Error("list strikes failed", slog.String("kind", string(l.Kind())), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	th := l.Thresholds()
	writeJSON(w, http.StatusOK, StrikeListResponse{
		Kind:            string(l.Kind()),
		RequiredStrikes: th.RequiredStrikes,
		MinStrikeDays:   th.MinStrikeDays,
		Entries:         entries,
	})
}

// ResetStrikes handles DELETE /api/strikes/{kind}/*.
func (h *Handler) ResetStrikes(w http.ResponseWriter, r *http.Request) {
	l, ok := h.ledger(w, r)
	if !ok {
		return
	}
	id := entityID(r)
	if strings.TrimSpace(id) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("entity id is required"))
		return
	}
	if err := l.Reset(r.Context(), id); err != nil {
		h.logger.Error("reset strikes failed", slog.String("kind", string(l.Kind())), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ledger(w http.ResponseWriter, r *http.Request) (ledger.Recorder, bool) {
	kind, err := ledger.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("unknown kind"))
		return nil, false
	}
	l, ok := h.ledgers.Ledger(kind)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("job not configured"))
		return nil, false
	}
	return l, true
}
