package ingest

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
)

// Handler accepts export uploads.
type Handler struct {
	logger   *slog.Logger
	importer *Importer
	maxBytes int64
}

// NewHandler builds a Handler limiting uploads to maxBytes.
func NewHandler(logger *slog.Logger, importer *Importer, maxBytes int64) *Handler {
	return &Handler{logger: logger, importer: importer, maxBytes: maxBytes}
}

// MountRoutes registers routes relative to the API root.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/imports/{source}", h.upload)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	body, filename, err := uploadBody(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Fail(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		httpx.Fail(w, http.StatusBadRequest, err.Error())
		return
	}
	defer body.Close()

	imp, err := h.importer.Import(r.Context(), chi.URLParam(r, "source"), filename, body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpx.Fail(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		if httpx.StatusFor(err) == http.StatusInternalServerError {
			h.logger.Error("import upload", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.OK(w, http.StatusCreated, imp)
}

// uploadBody returns the "file" part of a multipart form or the raw request body.
func uploadBody(r *http.Request) (io.ReadCloser, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if strings.HasPrefix(mediaType, "multipart/") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, "", err
		}
		return file, header.Filename, nil
	}
	name := r.URL.Query().Get("filename")
	if name == "" {
		name = "upload.csv"
	}
	return r.Body, name, nil
}
