package ar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
)

type memoryARRepo struct {
	invoices map[int64]Invoice
	nextID   int64
}

func newMemoryARRepo() *memoryARRepo {
	return &memoryARRepo{invoices: make(map[int64]Invoice)}
}

func (r *memoryARRepo) Create(ctx context.Context, inv Invoice) (Invoice, error) {
	for _, existing := range r.invoices {
		if existing.Number == inv.Number {
			return Invoice{}, fmt.Errorf("%w: duplicate", httpx.ErrConflict)
		}
	}
	r.nextID++
	inv.ID = r.nextID
	r.invoices[inv.ID] = inv
	return inv, nil
}

func (r *memoryARRepo) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, httpx.ErrNotFound
	}
	return inv, nil
}

func (r *memoryARRepo) List(ctx context.Context, f ListFilter) ([]Invoice, int, error) {
	var out []Invoice
	for _, inv := range r.sorted() {
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		if f.Customer != "" && !strings.Contains(strings.ToLower(inv.CustomerName), strings.ToLower(f.Customer)) {
			continue
		}
		out = append(out, inv)
	}
	return out, len(out), nil
}

func (r *memoryARRepo) Outstanding(ctx context.Context, currency string) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.sorted() {
		if inv.Reconciled || inv.Status != StatusOpen {
			continue
		}
		if currency != "" && inv.Currency != currency {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (r *memoryARRepo) sorted() []Invoice {
	out := make([]Invoice, 0, len(r.invoices))
	for _, inv := range r.invoices {
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func input(number, due, amount, currency string) CreateInput {
	return CreateInput{
		Number:             number,
		CustomerName:       "Club Atlético",
		CustomerEmail:      " Tesoreria@Club.es ",
		OrderID:            "ORD-" + number,
		InvoiceDate:        "2025-01-01",
		DueDate:            due,
		Amount:             decimal.RequireFromString(amount),
		Currency:           currency,
		RevenueAccountCode: "7050",
	}
}

func TestCreateNormalisesInput(t *testing.T) {
	svc := NewService(newMemoryARRepo(), nil, nil)
	inv, err := svc.Create(context.Background(), input("A-1", "", "99.999", "eur"))
	require.NoError(t, err)
	require.Equal(t, StatusOpen, inv.Status)
	require.Equal(t, "tesoreria@club.es", inv.CustomerEmail)
	require.Equal(t, "EUR", inv.Currency)
	require.True(t, inv.Amount.Equal(decimal.RequireFromString("100.00")))
	require.Equal(t, inv.InvoiceDate, inv.DueDate)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryARRepo(), nil, nil)

	bad := input("A-2", "", "10", "EUR")
	bad.CustomerEmail = "not-an-email"
	_, err := svc.Create(context.Background(), bad)
	require.ErrorIs(t, err, httpx.ErrValidation)
	require.Contains(t, err.Error(), "customer_email")

	_, err = svc.Create(context.Background(), input("A-3", "", "-5", "EUR"))
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Create(context.Background(), input("A-4", "2024-12-01", "5", "EUR"))
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCreateDuplicateNumber(t *testing.T) {
	svc := NewService(newMemoryARRepo(), nil, nil)
	_, err := svc.Create(context.Background(), input("A-5", "", "10", "EUR"))
	require.NoError(t, err)
	_, err = svc.Create(context.Background(), input("A-5", "", "10", "EUR"))
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestAgingBuckets(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryARRepo()
	svc := NewService(repo, nil, nil)

	for _, in := range []CreateInput{
		input("C1", "2025-03-20", "100", "EUR"),
		input("C2", "2025-02-20", "200", "EUR"),
		input("C3", "2025-01-20", "300", "EUR"),
		input("C4", "2025-01-05", "400", "EUR"),
		input("C5", "2025-02-28", "50", "USD"),
		input("C6", "2025-02-01", "999", "EUR"),
	} {
		_, err := svc.Create(ctx, in)
		require.NoError(t, err)
	}
	paid := repo.invoices[6]
	paid.Status = StatusPaid
	paid.Reconciled = true
	repo.invoices[6] = paid

	report, err := svc.Aging(ctx, time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, report.Buckets, 2)

	eur := report.Buckets[0]
	require.Equal(t, "EUR", eur.Currency)
	require.True(t, eur.Current.Equal(decimal.NewFromInt(100)))
	require.True(t, eur.Days1To30.Equal(decimal.NewFromInt(200)))
	require.True(t, eur.Days31To60.Equal(decimal.NewFromInt(300)))
	require.True(t, eur.Days61To90.Equal(decimal.NewFromInt(400)))
	require.True(t, eur.Over90.IsZero())
	require.True(t, eur.Total.Equal(decimal.NewFromInt(1000)))

	usd := report.Buckets[1]
	require.True(t, usd.Days1To30.Equal(decimal.NewFromInt(50)))
}

func newTestRouter(repo RepositoryPort) http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(repo, nil, nil)).MountRoutes(r)
	return r
}

func TestHandlerAging(t *testing.T) {
	repo := newMemoryARRepo()
	_, err := NewService(repo, nil, nil).Create(context.Background(), input("H1", "2025-01-10", "75", "EUR"))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ar/aging?as_of=2025-01-20", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool        `json:"success"`
		Data    AgingReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.Len(t, resp.Data.Buckets, 1)
	require.True(t, resp.Data.Buckets[0].Days1To30.Equal(decimal.NewFromInt(75)))

	rec = httptest.NewRecorder()
	newTestRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ar/aging?as_of=20-01-2025", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerCreateConflict(t *testing.T) {
	router := newTestRouter(newMemoryARRepo())
	body := `{"invoice_number":"H2","customer_name":"Ana","invoice_date":"2025-02-01","amount":"10","currency":"EUR","revenue_account_code":"7050"}`
	for i, want := range []int{http.StatusCreated, http.StatusConflict} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ar/invoices", strings.NewReader(body)))
		require.Equal(t, want, rec.Code, "request %d", i)
	}
}

type countingInvalidator struct{ bumps int }

func (c *countingInvalidator) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

func TestCreateInvalidatesReportCache(t *testing.T) {
	repo := newMemoryARRepo()
	inv := &countingInvalidator{}
	svc := NewService(repo, inv, nil)

	_, err := svc.Create(context.Background(), input("C1", "2025-02-01", "300", "EUR"))
	require.NoError(t, err)
	require.Equal(t, 1, inv.bumps)

	_, err = svc.Create(context.Background(), input("C1", "2025-02-01", "300", "EUR"))
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.Equal(t, 1, inv.bumps)

	bad := input("C2", "2025-02-30", "300", "EUR")
	_, err = svc.Create(context.Background(), bad)
	require.ErrorIs(t, err, httpx.ErrValidation)
	require.Equal(t, 1, inv.bumps)
}
