package pnl

import (
	"bytes"
	"context"
	"encoding/csv"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/dsd-finance/finance-hub/internal/platform/cache"
	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
)

type memorySource struct {
	mu    sync.Mutex
	rows  []AccountMonth
	calls int
}

func (m *memorySource) MonthlyTotals(_ context.Context, _ int, _ string) ([]AccountMonth, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return append([]AccountMonth(nil), m.rows...), nil
}

func (m *memorySource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleRows() []AccountMonth {
	return []AccountMonth{
		{Kind: KindRevenue, Code: "70500000", Month: 1, Amount: amount("1000.00")},
		{Kind: KindRevenue, Code: "70500000", Month: 2, Amount: amount("500.00")},
		{Kind: KindRevenue, Code: "70000000", Month: 2, Amount: amount("250.00")},
		{Kind: KindExpense, Code: "62900000", Month: 1, Amount: amount("300.00")},
		{Kind: KindExpense, Code: "62300000", Month: 3, Amount: amount("120.50")},
	}
}

func TestBuildReportAggregatesSections(t *testing.T) {
	report := BuildReport(2024, "EUR", sampleRows())

	require.Equal(t, MonthNames, report.Months)
	require.Len(t, report.Revenue.Lines, 2)
	require.Equal(t, "70000000", report.Revenue.Lines[0].Code)
	require.Equal(t, "Ventas de mercaderías", report.Revenue.Lines[0].Name)
	require.Equal(t, "1500", report.Revenue.Lines[1].Total.String())
	require.Equal(t, "1750", report.Revenue.Total.String())

	require.Len(t, report.Expense.Lines, 2)
	require.Equal(t, "62300000", report.Expense.Lines[0].Code)
	require.Equal(t, "420.5", report.Expense.Total.String())

	require.Equal(t, "700", report.NetIncome[0].String())
	require.Equal(t, "750", report.NetIncome[1].String())
	require.Equal(t, "-120.5", report.NetIncome[2].String())
	require.Equal(t, "1329.5", report.NetTotal.String())
}

func TestBuildReportIgnoresUnknownKindsAndMonths(t *testing.T) {
	report := BuildReport(2024, "EUR", []AccountMonth{
		{Kind: "other", Code: "1", Month: 1, Amount: amount("5")},
		{Kind: KindRevenue, Code: "70000000", Month: 13, Amount: amount("5")},
	})
	require.Empty(t, report.Revenue.Lines)
	require.Empty(t, report.Expense.Lines)
	require.True(t, report.NetTotal.IsZero())
}

func TestAccountNameUnknown(t *testing.T) {
	require.Equal(t, "", AccountName("99"))
	require.Equal(t, "", AccountName("99900000"))
}

func newCache(t *testing.T) (*cache.Versioned, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewVersioned(client, "finhub:pnl", time.Minute), mr
}

func TestServiceCachesUntilBump(t *testing.T) {
	source := &memorySource{rows: sampleRows()}
	versioned, _ := newCache(t)
	svc := NewService(source, versioned, slog.Default())
	ctx := context.Background()

	first, err := svc.Build(ctx, Filter{Year: 2024, Currency: "eur"})
	require.NoError(t, err)
	require.Equal(t, "EUR", first.Currency)

	second, err := svc.Build(ctx, Filter{Year: 2024, Currency: "EUR"})
	require.NoError(t, err)
	require.Equal(t, 1, source.callCount())
	require.True(t, first.NetTotal.Equal(second.NetTotal))
	require.Len(t, second.Revenue.Lines, 2)

	require.NoError(t, versioned.Bump(ctx))
	_, err = svc.Build(ctx, Filter{Year: 2024, Currency: "EUR"})
	require.NoError(t, err)
	require.Equal(t, 2, source.callCount())
}

func TestServiceWithoutCacheAlwaysLoads(t *testing.T) {
	source := &memorySource{rows: sampleRows()}
	svc := NewService(source, nil, nil)
	for i := 0; i < 2; i++ {
		_, err := svc.Build(context.Background(), Filter{Year: 2024})
		require.NoError(t, err)
	}
	require.Equal(t, 2, source.callCount())
}

func TestServiceRejectsBadFilter(t *testing.T) {
	svc := NewService(&memorySource{}, nil, nil)
	_, err := svc.Build(context.Background(), Filter{Year: 1999})
	require.ErrorIs(t, err, httpx.ErrValidation)
	_, err = svc.Build(context.Background(), Filter{Year: 2024, Currency: "EURO"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestExportCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ExportCSV(&buf, BuildReport(2024, "EUR", sampleRows())))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, []string{"account", "name", "jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec", "total"}, records[0])
	require.Equal(t, "70000000", records[1][0])
	require.Equal(t, "250.00", records[1][3])
	last := records[len(records)-1]
	require.Equal(t, "Net income", last[1])
	require.Equal(t, "1329.50", last[14])
	require.Len(t, records, 1+2+1+2+1+1)
}

func newRouter(svc *Service) http.Handler {
	r := chi.NewRouter()
	NewHandler(slog.Default(), svc).MountRoutes(r)
	return r
}

func TestHandlerShowAndExport(t *testing.T) {
	router := newRouter(NewService(&memorySource{rows: sampleRows()}, nil, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pnl?year=2024&currency=EUR", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"net_total":"1329.5"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pnl/export.csv?year=2024", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "pnl-2024-EUR.csv")
}

func TestHandlerRejectsBadYear(t *testing.T) {
	router := newRouter(NewService(&memorySource{}, nil, nil))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pnl?year=abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
