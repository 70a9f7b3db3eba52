package ap

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

// Handler manages AP endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers AP routes under /ap.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/ap", func(r chi.Router) {
		r.Get("/invoices", h.listInvoices)
		r.Post("/invoices", h.createInvoice)
		r.Get("/invoices/{id}", h.showInvoice)
	})
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Status:   Status(strings.ToUpper(q.Get("status"))),
		Provider: q.Get("provider"),
		Page:     shared.ParsePageRequest(q),
	}
	if raw := q.Get("reconciled"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "reconciled must be a boolean")
			return
		}
		filter.Reconciled = &v
	}
	invoices, page, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, "list ap invoices", err)
		return
	}
	httpx.Page(w, invoices, page)
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	var input CreateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.fail(w, "create ap invoice", err)
		return
	}
	httpx.OK(w, http.StatusCreated, inv)
}

func (h *Handler) showInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "invalid invoice id")
		return
	}
	inv, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get ap invoice", err)
		return
	}
	httpx.OK(w, http.StatusOK, inv)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
