package pnl

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
)

// Handler serves the P&L report.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes under /pnl.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/pnl", h.show)
	r.Get("/pnl/export.csv", h.exportCSV)
}

func parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	f := Filter{Currency: q.Get("currency")}
	if raw := q.Get("year"); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil {
			return Filter{}, fmt.Errorf("%w: year must be a number", httpx.ErrValidation)
		}
		f.Year = year
	}
	return f, nil
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Build(r.Context(), filter)
	if err != nil {
		h.fail(w, "build pnl", err)
		return
	}
	httpx.OK(w, http.StatusOK, report)
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	report, err := h.service.Build(r.Context(), filter)
	if err != nil {
		h.fail(w, "build pnl", err)
		return
	}
	var buf bytes.Buffer
	if err := ExportCSV(&buf, report); err != nil {
		h.fail(w, "write pnl csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=pnl-%d-%s.csv", report.Year, report.Currency))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Error("write pnl csv", slog.Any("error", err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
