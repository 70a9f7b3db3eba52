package shared

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
)

func TestNormalizeText(t *testing.T) {
	require.Equal(t, "transf. domiciliacion stripe payments", NormalizeText("  TRANSF. DOMICILIACIÓN   Stripe\tPayments "))
	require.Equal(t, "", NormalizeText("   "))
}

func TestContainsFold(t *testing.T) {
	require.True(t, ContainsFold("RECIBO Telefónica España", "telefonica"))
	require.False(t, ContainsFold("anything", " "))
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "ana@example.com", NormalizeEmail(" Ana@Example.COM "))
}

func TestParseDateLayouts(t *testing.T) {
	d, err := ParseDate("03/02/2025", "2006-01-02", "02/01/2006")
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), d)

	d, err = ParseDate("2025-02-03 17:45:00", "2006-01-02 15:04:05")
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseDate("yesterday", "2006-01-02")
	require.Error(t, err)
}

func TestParseInputDateReportsField(t *testing.T) {
	d, err := ParseInputDate("due_date", "2025-03-31")
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC), d)

	_, err = ParseInputDate("due_date", "2025-02-30")
	require.ErrorIs(t, err, httpx.ErrValidation)
	require.Contains(t, err.Error(), "due_date")

	_, err = ParseInputDate("invoice_date", "")
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2025, 1, 4, 1, 0, 0, 0, time.UTC)
	require.Equal(t, 3, DaysBetween(a, b))
	require.Equal(t, 3, DaysBetween(b, a))
}

func TestParsePageRequestClamps(t *testing.T) {
	p := PageRequest{Page: 0, PerPage: 10000}.Normalize()
	require.Equal(t, 1, p.Page)
	require.Equal(t, MaxPerPage, p.PerPage)
	require.Equal(t, 100, PageRequest{Page: 3, PerPage: 50}.Offset())

	meta := NewPagination(2, 50, 101)
	require.Equal(t, 3, meta.TotalPages)
}
