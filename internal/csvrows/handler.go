package csvrows

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

// Handler serves csv row listings.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers routes relative to the API root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csv-rows", h.list)
	r.Get("/csv-rows/{id}", h.show)
	r.Get("/imports", h.listImports)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list csv rows", err)
		return
	}
	httpx.Page(w, rows, page)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid row id")
		return
	}
	row, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get csv row", err)
		return
	}
	httpx.OK(w, http.StatusOK, row)
}

func (h *Handler) listImports(w http.ResponseWriter, r *http.Request) {
	imports, err := h.service.ListImports(r.Context(), r.URL.Query().Get("source"))
	if err != nil {
		h.fail(w, "list imports", err)
		return
	}
	httpx.OK(w, http.StatusOK, imports)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func parseFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	f := ListFilter{
		Source: q.Get("source"),
		Search: q.Get("q"),
		Page:   shared.ParsePageRequest(q),
	}
	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return ListFilter{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", httpx.ErrValidation, key)
		}
		*dst = &t
	}
	if raw := q.Get("reconciled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return ListFilter{}, fmt.Errorf("%w: reconciled must be a boolean", httpx.ErrValidation)
		}
		f.Reconciled = &v
	}
	return f, nil
}
