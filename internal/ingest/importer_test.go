package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/dsd-finance/finance-hub/internal/csvrows"
	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
)

type memoryStore struct {
	imports      []csvrows.Import
	fingerprints map[string]csvrows.Row
}

func newMemoryStore() *memoryStore {
	return &memoryStore{fingerprints: map[string]csvrows.Row{}}
}

func (m *memoryStore) SaveImport(ctx context.Context, imp csvrows.Import, rows []csvrows.Row) (int, error) {
	inserted := 0
	for _, row := range rows {
		if existing, ok := m.fingerprints[row.Fingerprint]; ok {
			if !existing.Reconciled {
				merged := map[string]any{}
				for k, v := range existing.CustomData {
					merged[k] = v
				}
				for k, v := range row.CustomData {
					merged[k] = v
				}
				existing.CustomData = merged
				m.fingerprints[row.Fingerprint] = existing
			}
			continue
		}
		m.fingerprints[row.Fingerprint] = row
		inserted++
	}
	m.imports = append(m.imports, imp)
	return inserted, nil
}

type countingMetrics struct{ rows map[string]int }

func (c *countingMetrics) RowsImported(source string, n int) {
	if c.rows == nil {
		c.rows = map[string]int{}
	}
	c.rows[source] += n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const duplicateLines = `id,Created (UTC),Amount,Amount Refunded,Currency,Status,Description,Customer Email,Fee,Transfer,order_id (metadata)
,2025-01-05 12:00,10.00,0,eur,Paid,Top-up,,0,,
,2025-01-05 12:00,10.00,0,eur,Paid,Top-up,,0,,
ch_9,2025-01-06 12:00,30.00,0,eur,Paid,Order 9,,0,,ORD-9
`

func TestImportIsIdempotent(t *testing.T) {
	store := newMemoryStore()
	metrics := &countingMetrics{}
	importer := NewImporter(store, metrics, discardLogger())

	first, err := importer.Import(context.Background(), "stripe", "payments.csv", strings.NewReader(duplicateLines))
	require.NoError(t, err)
	require.Equal(t, 3, first.RowsTotal)
	require.Equal(t, 3, first.RowsInserted, "identical lines within one file are distinct rows")
	require.Equal(t, 0, first.RowsSkipped)

	second, err := importer.Import(context.Background(), "stripe", "payments.csv", strings.NewReader(duplicateLines))
	require.NoError(t, err)
	require.Equal(t, 0, second.RowsInserted)
	require.Equal(t, 3, second.RowsSkipped)
	require.NotEqual(t, first.ID, second.ID)

	require.Len(t, store.fingerprints, 3)
	require.Equal(t, 3, metrics.rows["stripe"])
}

func TestImportRejectsUnknownSourceAndEmptyExport(t *testing.T) {
	importer := NewImporter(newMemoryStore(), nil, discardLogger())

	_, err := importer.Import(context.Background(), "revolut", "x.csv", strings.NewReader("a,b\n"))
	require.ErrorIs(t, err, httpx.ErrUnsupported)

	header := "Record ID,Deal Name,Deal Stage,Close Date,Amount,Currency,Order ID,Customer Email\n"
	_, err = importer.Import(context.Background(), "hubspot", "deals.csv", strings.NewReader(header))
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestFingerprintDependsOnOccurrence(t *testing.T) {
	a := Fingerprint("k", 0)
	require.Len(t, a, 64)
	require.Equal(t, a, Fingerprint("k", 0))
	require.NotEqual(t, a, Fingerprint("k", 1))
}

func newUploadRouter(store Store, maxBytes int64) http.Handler {
	r := chi.NewRouter()
	NewHandler(discardLogger(), NewImporter(store, nil, discardLogger()), maxBytes).MountRoutes(r)
	return r
}

func TestUploadMultipart(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "export.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(braintreeExport))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/imports/braintree-eur", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	newUploadRouter(newMemoryStore(), 1<<20).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp struct {
		Success bool           `json:"success"`
		Data    csvrows.Import `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Equal(t, "export.csv", resp.Data.Filename)
	require.Equal(t, 2, resp.Data.RowsInserted)
}

func TestUploadRawBodyValidationError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/imports/braintree-usd", strings.NewReader(braintreeExport))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	newUploadRouter(newMemoryStore(), 1<<20).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":false`)
}

func TestUploadTooLarge(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/imports/stripe", strings.NewReader(duplicateLines))
	req.Header.Set("Content-Type", "text/csv")
	rec := httptest.NewRecorder()
	newUploadRouter(newMemoryStore(), 16).ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
