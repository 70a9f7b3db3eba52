package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dsd-finance/finance-hub/internal/ap"
	"github.com/dsd-finance/finance-hub/internal/ar"
	"github.com/dsd-finance/finance-hub/internal/csvrows"
	"github.com/dsd-finance/finance-hub/internal/ingest"
	"github.com/dsd-finance/finance-hub/internal/observability"
	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
	"github.com/dsd-finance/finance-hub/internal/pnl"
	"github.com/dsd-finance/finance-hub/internal/reconcile"
	"github.com/dsd-finance/finance-hub/internal/stripesync"
	"github.com/dsd-finance/finance-hub/jobs"
)

// HealthCheck probes one backing service.
type HealthCheck func(ctx context.Context) error

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
	Checks  map[string]HealthCheck

	ImportHandler    *ingest.Handler
	RowsHandler      *csvrows.Handler
	APHandler        *ap.Handler
	ARHandler        *ar.Handler
	ReconcileHandler *reconcile.Handler
	PnLHandler       *pnl.Handler
	StripeHandler    *stripesync.Handler
	JobHandler       *jobs.Handler
}

// NewRouter constructs the chi.Router with finance hub defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.Fail(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", healthz(params.Logger, params.Checks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		if params.ImportHandler != nil {
			params.ImportHandler.MountRoutes(r)
		}
		if params.RowsHandler != nil {
			params.RowsHandler.MountRoutes(r)
		}
		if params.APHandler != nil {
			params.APHandler.MountRoutes(r)
		}
		if params.ARHandler != nil {
			params.ARHandler.MountRoutes(r)
		}
		if params.ReconcileHandler != nil {
			params.ReconcileHandler.MountRoutes(r)
		}
		if params.PnLHandler != nil {
			params.PnLHandler.MountRoutes(r)
		}
		if params.StripeHandler != nil {
			params.StripeHandler.MountRoutes(r)
		}
	})

	return r
}

func healthz(logger *slog.Logger, checks map[string]HealthCheck) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"status": "ok"}
		code := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("health check failed", slog.String("check", name), slog.Any("error", err))
				status[name] = "down"
				status["status"] = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			status[name] = "ok"
		}
		httpx.JSON(w, code, status)
	}
}
