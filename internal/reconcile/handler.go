package reconcile

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

// Enqueuer schedules background rule runs.
type Enqueuer interface {
	EnqueueReconcile(ctx context.Context, rule, currency string) (string, error)
}

// Handler exposes reconciliation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer Enqueuer
}

// NewHandler builds Handler. enqueuer may be nil when no worker is configured.
func NewHandler(logger *slog.Logger, service *Service, enqueuer Enqueuer) *Handler {
	return &Handler{logger: logger, service: service, enqueuer: enqueuer}
}

// MountRoutes registers routes under /reconciliation.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reconciliation", func(r chi.Router) {
		r.Get("/matches", h.listMatches)
		r.Post("/matches", h.createMatch)
		r.Delete("/matches/{id}", h.deleteMatch)
		r.Post("/{rule}/run", h.run)
		r.Post("/{rule}/enqueue", h.enqueue)
	})
}

func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	rule, err := ParseRule(chi.URLParam(r, "rule"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	q := r.URL.Query()
	opts := RunOptions{Currency: q.Get("currency")}
	if raw := q.Get("dry_run"); raw != "" {
		if opts.DryRun, err = strconv.ParseBool(raw); err != nil {
			httpx.Fail(w, http.StatusBadRequest, "dry_run must be a boolean")
			return
		}
	}
	report, err := h.service.Run(r.Context(), rule, opts)
	if err != nil {
		h.fail(w, "run reconciliation", err)
		return
	}
	httpx.OK(w, http.StatusOK, report)
}

func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request) {
	rule, err := ParseRule(chi.URLParam(r, "rule"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if h.enqueuer == nil {
		httpx.Fail(w, http.StatusServiceUnavailable, "job queue not configured")
		return
	}
	id, err := h.enqueuer.EnqueueReconcile(r.Context(), string(rule), r.URL.Query().Get("currency"))
	if err != nil {
		h.fail(w, "enqueue reconciliation", err)
		return
	}
	httpx.OK(w, http.StatusAccepted, map[string]string{"task_id": id, "rule": string(rule)})
}

func (h *Handler) listMatches(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	matches, page, err := h.service.ListMatches(r.Context(), MatchFilter{
		Rule: Rule(q.Get("rule")),
		Page: shared.ParsePageRequest(q),
	})
	if err != nil {
		h.fail(w, "list matches", err)
		return
	}
	httpx.Page(w, matches, page)
}

func (h *Handler) createMatch(w http.ResponseWriter, r *http.Request) {
	var input ManualMatchInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, err := h.service.ManualMatch(r.Context(), input)
	if err != nil {
		h.fail(w, "manual match", err)
		return
	}
	httpx.OK(w, http.StatusCreated, m)
}

func (h *Handler) deleteMatch(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid match id")
		return
	}
	if err := h.service.Unmatch(r.Context(), id); err != nil {
		h.fail(w, "unmatch", err)
		return
	}
	httpx.OK(w, http.StatusOK, map[string]int64{"deleted": id})
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
