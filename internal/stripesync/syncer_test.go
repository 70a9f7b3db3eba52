package stripesync

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"

	"github.com/dsd-finance/finance-hub/internal/csvrows"
	"github.com/dsd-finance/finance-hub/internal/ingest"
)

func chargeTxn(id, chargeID string, amount int64, currency stripe.Currency, created time.Time) *stripe.BalanceTransaction {
	return &stripe.BalanceTransaction{
		ID:          id,
		Type:        stripe.BalanceTransactionTypeCharge,
		Amount:      amount,
		Fee:         59,
		Net:         amount - 59,
		Currency:    currency,
		Created:     created.Unix(),
		Description: "Order 1042",
		Status:      stripe.BalanceTransactionStatusAvailable,
		Source: &stripe.BalanceTransactionSource{
			ID: chargeID,
			Charge: &stripe.Charge{
				ID:             chargeID,
				Metadata:       map[string]string{"order_id": "ORD-1042"},
				BillingDetails: &stripe.ChargeBillingDetails{Email: " Buyer@Example.com "},
			},
		},
	}
}

func TestMapTransactionCharge(t *testing.T) {
	created := time.Date(2024, 3, 5, 17, 30, 0, 0, time.UTC)
	rec, ok := MapTransaction(chargeTxn("txn_1", "ch_1", 12550, "eur", created), "po_9")
	require.True(t, ok)
	require.Equal(t, "125.5", rec.Amount.String())
	require.Equal(t, "EUR", rec.Currency)
	require.Equal(t, "ch_1", rec.Reference)
	require.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), rec.Date)
	require.Equal(t, "ORD-1042", rec.CustomData[csvrows.KeyOrderID])
	require.Equal(t, "buyer@example.com", rec.CustomData[csvrows.KeyEmail])
	require.Equal(t, "stripe:po_9", rec.CustomData[csvrows.KeyPayoutKey])
	require.Equal(t, "0.59", rec.CustomData["fee"])
}

func TestMapTransactionRefundAndSkips(t *testing.T) {
	refund := &stripe.BalanceTransaction{ID: "txn_r", Type: stripe.BalanceTransactionTypeRefund, Amount: -500, Currency: "usd"}
	rec, ok := MapTransaction(refund, "")
	require.True(t, ok)
	require.Equal(t, "-5", rec.Amount.String())
	require.Equal(t, "txn_r", rec.Reference)
	_, hasPayout := rec.CustomData[csvrows.KeyPayoutKey]
	require.False(t, hasPayout)

	_, ok = MapTransaction(&stripe.BalanceTransaction{ID: "txn_p", Type: stripe.BalanceTransactionTypePayout}, "")
	require.False(t, ok)
	_, ok = MapTransaction(nil, "")
	require.False(t, ok)
}

func TestMinorUnitsZeroDecimalCurrency(t *testing.T) {
	require.Equal(t, "1500", MinorUnits(1500, "jpy").String())
	require.Equal(t, "15", MinorUnits(1500, "EUR").String())
}

type fakeLister struct {
	payouts  []string
	all      []*stripe.BalanceTransaction
	byPayout map[string][]*stripe.BalanceTransaction
	err      error
}

func (f *fakeLister) Payouts(context.Context, time.Time) ([]string, error) {
	return f.payouts, f.err
}

func (f *fakeLister) BalanceTransactions(_ context.Context, _ time.Time, payoutID string) ([]*stripe.BalanceTransaction, error) {
	if payoutID != "" {
		return f.byPayout[payoutID], nil
	}
	return f.all, nil
}

type fakeImporter struct {
	source  ingest.Source
	records []ingest.Record
}

func (f *fakeImporter) ImportRecords(_ context.Context, source ingest.Source, label string, records []ingest.Record) (csvrows.Import, error) {
	f.source = source
	f.records = records
	return csvrows.Import{Source: string(source), Filename: label, RowsTotal: len(records), RowsInserted: len(records)}, nil
}

func TestSyncImportsMappedTransactions(t *testing.T) {
	created := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	paid := chargeTxn("txn_1", "ch_1", 1000, "eur", created)
	open := chargeTxn("txn_2", "ch_2", 2000, "eur", created)
	lister := &fakeLister{
		payouts:  []string{"po_1"},
		all:      []*stripe.BalanceTransaction{paid, open, {ID: "txn_3", Type: stripe.BalanceTransactionTypePayout}},
		byPayout: map[string][]*stripe.BalanceTransaction{"po_1": {paid}},
	}
	importer := &fakeImporter{}
	syncer := NewSyncer(lister, importer, slog.Default())

	res, err := syncer.Sync(context.Background(), created.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 3, res.Fetched)
	require.Equal(t, 2, res.Mapped)
	require.Equal(t, 2, res.Import.RowsInserted)
	require.Equal(t, ingest.SourceStripe, importer.source)
	require.Equal(t, "stripe:po_1", importer.records[0].CustomData[csvrows.KeyPayoutKey])
	_, hasPayout := importer.records[1].CustomData[csvrows.KeyPayoutKey]
	require.False(t, hasPayout)
}

// fingerprintStore keeps one row per fingerprint and merges custom_data into rows
// that are already stored, as the csv_rows upsert does.
type fingerprintStore struct {
	rows map[string]csvrows.Row
}

func (f *fingerprintStore) SaveImport(_ context.Context, _ csvrows.Import, rows []csvrows.Row) (int, error) {
	inserted := 0
	for _, row := range rows {
		existing, ok := f.rows[row.Fingerprint]
		if !ok {
			f.rows[row.Fingerprint] = row
			inserted++
			continue
		}
		if existing.Reconciled {
			continue
		}
		merged := map[string]any{}
		for k, v := range existing.CustomData {
			merged[k] = v
		}
		for k, v := range row.CustomData {
			merged[k] = v
		}
		existing.CustomData = merged
		f.rows[row.Fingerprint] = existing
	}
	return inserted, nil
}

func TestSyncAttachesPayoutToEarlierImportedCharge(t *testing.T) {
	created := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	charge := chargeTxn("txn_1", "ch_1", 10000, "eur", created)
	store := &fingerprintStore{rows: map[string]csvrows.Row{}}
	importer := ingest.NewImporter(store, nil, slog.Default())

	first, err := NewSyncer(&fakeLister{all: []*stripe.BalanceTransaction{charge}}, importer, nil).
		Sync(context.Background(), created.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, first.Import.RowsInserted)

	// The payout appears two days later; the charge is older than the second window.
	second, err := NewSyncer(&fakeLister{
		payouts:  []string{"po_1"},
		byPayout: map[string][]*stripe.BalanceTransaction{"po_1": {charge}},
	}, importer, nil).Sync(context.Background(), created.Add(48*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, second.Fetched)
	require.Equal(t, 0, second.Import.RowsInserted)
	require.Equal(t, 1, second.Import.RowsSkipped)

	require.Len(t, store.rows, 1)
	for _, row := range store.rows {
		require.Equal(t, "stripe:po_1", row.Custom(csvrows.KeyPayoutKey))
		require.Equal(t, "po_1", row.Custom("transfer"))
		require.Equal(t, "ORD-1042", row.Custom(csvrows.KeyOrderID))
	}
}

func TestSyncPropagatesListerError(t *testing.T) {
	syncer := NewSyncer(&fakeLister{err: errors.New("stripe down")}, &fakeImporter{}, nil)
	_, err := syncer.Sync(context.Background(), time.Now())
	require.Error(t, err)
}

type fakeEnqueuer struct{ lookback time.Duration }

func (f *fakeEnqueuer) EnqueueStripeSync(_ context.Context, lookback time.Duration) (string, error) {
	f.lookback = lookback
	return "task-1", nil
}

func TestHandlerEnqueuesSync(t *testing.T) {
	enq := &fakeEnqueuer{}
	r := chi.NewRouter()
	NewHandler(slog.Default(), enq, 72*time.Hour).MountRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/integrations/stripe/sync?lookback=6h", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, 6*time.Hour, enq.lookback)
	require.Contains(t, rec.Body.String(), `"task_id":"task-1"`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/integrations/stripe/sync?lookback=soon", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerWithoutEnqueuer(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(slog.Default(), nil, time.Hour).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/integrations/stripe/sync", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
