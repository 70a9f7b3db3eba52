package stripesync

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
)

// Enqueuer schedules a background sync.
type Enqueuer interface {
	EnqueueStripeSync(ctx context.Context, lookback time.Duration) (string, error)
}

// Handler exposes the sync trigger.
type Handler struct {
	logger   *slog.Logger
	enqueuer Enqueuer
	lookback time.Duration
}

// NewHandler builds Handler. lookback is used when the request does not set one.
func NewHandler(logger *slog.Logger, enqueuer Enqueuer, lookback time.Duration) *Handler {
	return &Handler{logger: logger, enqueuer: enqueuer, lookback: lookback}
}

// MountRoutes registers routes under /integrations/stripe.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/integrations/stripe/sync", h.sync)
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Fail(w, http.StatusServiceUnavailable, "stripe sync is not configured")
		return
	}
	lookback := h.lookback
	if raw := r.URL.Query().Get("lookback"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			httpx.RespondError(w, fmt.Errorf("%w: lookback must be a positive duration", httpx.ErrValidation))
			return
		}
		lookback = d
	}
	id, err := h.enqueuer.EnqueueStripeSync(r.Context(), lookback)
	if err != nil {
		h.logger.Error("enqueue stripe sync", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusAccepted, map[string]any{"task_id": id, "lookback": lookback.String()})
}
