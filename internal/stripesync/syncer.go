// Package stripesync pulls Stripe balance transactions into csv_rows through the
// importer used for CSV exports.
package stripesync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v81"

	"github.com/dsd-finance/finance-hub/internal/csvrows"
	"github.com/dsd-finance/finance-hub/internal/ingest"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

// Importer stores records idempotently.
type Importer interface {
	ImportRecords(ctx context.Context, source ingest.Source, label string, records []ingest.Record) (csvrows.Import, error)
}

// Syncer maps Stripe balance history into ingest records.
type Syncer struct {
	lister   Lister
	importer Importer
	logger   *slog.Logger
	now      func() time.Time
}

// NewSyncer constructs a Syncer.
func NewSyncer(lister Lister, importer Importer, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{lister: lister, importer: importer, logger: logger, now: time.Now}
}

// Result summarises one sync run.
type Result struct {
	Fetched int            `json:"fetched"`
	Mapped  int            `json:"mapped"`
	Import  csvrows.Import `json:"import"`
}

// Sync imports charge, payment and refund transactions created at or after since,
// plus every transaction settled by a payout created in that window. Older
// transactions that were stored before their payout existed are imported again so
// the stored rows pick up the payout key.
func (s *Syncer) Sync(ctx context.Context, since time.Time) (Result, error) {
	payoutOf, settled, err := s.payoutIndex(ctx, since)
	if err != nil {
		return Result{}, err
	}
	txns, err := s.lister.BalanceTransactions(ctx, since, "")
	if err != nil {
		return Result{}, err
	}
	listed := make(map[string]struct{}, len(txns))
	for _, txn := range txns {
		listed[txn.ID] = struct{}{}
	}
	for _, txn := range settled {
		if _, ok := listed[txn.ID]; !ok {
			listed[txn.ID] = struct{}{}
			txns = append(txns, txn)
		}
	}

	res := Result{Fetched: len(txns)}
	records := make([]ingest.Record, 0, len(txns))
	for _, txn := range txns {
		rec, ok := MapTransaction(txn, payoutOf[txn.ID])
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	res.Mapped = len(records)
	if len(records) == 0 {
		s.logger.Info("stripe sync: nothing to import", slog.Int("fetched", res.Fetched))
		return res, nil
	}

	label := fmt.Sprintf("stripe-api-%s", s.now().UTC().Format("20060102T150405Z"))
	imp, err := s.importer.ImportRecords(ctx, ingest.SourceStripe, label, records)
	if err != nil {
		return res, err
	}
	res.Import = imp
	s.logger.Info("stripe sync complete",
		slog.Int("fetched", res.Fetched),
		slog.Int("inserted", imp.RowsInserted),
		slog.Int("skipped", imp.RowsSkipped))
	return res, nil
}

// payoutIndex maps balance transaction IDs to the payout that settled them and
// returns those transactions.
func (s *Syncer) payoutIndex(ctx context.Context, since time.Time) (map[string]string, []*stripe.BalanceTransaction, error) {
	payouts, err := s.lister.Payouts(ctx, since)
	if err != nil {
		return nil, nil, err
	}
	index := map[string]string{}
	var settled []*stripe.BalanceTransaction
	for _, id := range payouts {
		txns, err := s.lister.BalanceTransactions(ctx, since, id)
		if err != nil {
			return nil, nil, err
		}
		for _, txn := range txns {
			if txn == nil {
				continue
			}
			index[txn.ID] = id
			settled = append(settled, txn)
		}
	}
	return index, settled, nil
}

var syncedTypes = map[stripe.BalanceTransactionType]struct{}{
	stripe.BalanceTransactionTypeCharge:  {},
	stripe.BalanceTransactionTypePayment: {},
	stripe.BalanceTransactionTypeRefund:  {},
}

// MapTransaction converts a balance transaction into an ingest record. It reports
// false for transaction types that are not customer money movements.
func MapTransaction(txn *stripe.BalanceTransaction, payoutID string) (ingest.Record, bool) {
	if txn == nil {
		return ingest.Record{}, false
	}
	if _, ok := syncedTypes[txn.Type]; !ok {
		return ingest.Record{}, false
	}

	currency := strings.ToUpper(string(txn.Currency))
	created := time.Unix(txn.Created, 0).UTC()
	reference := txn.ID
	if txn.Source != nil && txn.Source.ID != "" {
		reference = txn.Source.ID
	}

	data := map[string]any{
		csvrows.KeyTransactionID: reference,
		csvrows.KeyStatus:        string(txn.Status),
		"balance_transaction":    txn.ID,
		"type":                   string(txn.Type),
		csvrows.KeyFee:           MinorUnits(txn.Fee, currency).StringFixed(2),
		csvrows.KeyNet:           MinorUnits(txn.Net, currency).StringFixed(2),
	}
	orderID, email := sourceDetails(txn.Source)
	if orderID != "" {
		data[csvrows.KeyOrderID] = orderID
	}
	if email != "" {
		data[csvrows.KeyEmail] = email
	}
	if payoutID != "" {
		data["transfer"] = payoutID
		data[csvrows.KeyPayoutKey] = "stripe:" + payoutID
	}

	return ingest.Record{
		Date:        time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, time.UTC),
		Description: txn.Description,
		Amount:      MinorUnits(txn.Amount, currency),
		Currency:    currency,
		Reference:   reference,
		CustomData:  data,
	}, true
}

func sourceDetails(src *stripe.BalanceTransactionSource) (orderID, email string) {
	if src == nil || src.Charge == nil {
		return "", ""
	}
	ch := src.Charge
	orderID = ch.Metadata["order_id"]
	if ch.BillingDetails != nil {
		email = strings.ToLower(strings.TrimSpace(ch.BillingDetails.Email))
	}
	if email == "" {
		email = strings.ToLower(strings.TrimSpace(ch.ReceiptEmail))
	}
	return orderID, email
}

// zeroDecimal lists currencies Stripe amounts in whole units.
var zeroDecimal = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// MinorUnits converts a Stripe integer amount into a decimal in major units.
func MinorUnits(amount int64, currency string) decimal.Decimal {
	if _, ok := zeroDecimal[strings.ToUpper(currency)]; ok {
		return decimal.NewFromInt(amount)
	}
	return shared.MinorUnits(amount)
}
