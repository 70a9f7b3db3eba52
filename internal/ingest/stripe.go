package ingest

import (
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dsd-finance/finance-hub/internal/csvrows"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

const (
	stColID          = "id"
	stColCreated     = "created (utc)"
	stColAmount      = "amount"
	stColRefunded    = "amount refunded"
	stColCurrency    = "currency"
	stColStatus      = "status"
	stColDescription = "description"
	stColEmail       = "customer email"
	stColFee         = "fee"
	stColTransfer    = "transfer"
	stColOrderID     = "order_id (metadata)"
)

// StripeParser reads Stripe dashboard payment exports (unified_payments.csv).
type StripeParser struct{}

// Parse implements Parser.
func (StripeParser) Parse(r io.Reader, source Source) ([]Record, error) {
	rows, err := readCSV(r, ',')
	if err != nil {
		return nil, err
	}
	start, h, err := findHeader(rows, stColID, stColCreated, stColAmount, stColCurrency)
	if err != nil {
		return nil, err
	}

	var out []Record
	for i := start + 1; i < len(rows); i++ {
		row := rows[i]
		if blankRow(row) {
			continue
		}
		line := i + 1
		status := strings.ToLower(h.get(row, stColStatus))
		if status == "failed" {
			continue
		}
		date, err := shared.ParseDate(h.get(row, stColCreated), "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02T15:04:05Z07:00", "2006-01-02")
		if err != nil {
			return nil, lineError(line, "created: %v", err)
		}
		amount, err := shared.ParseAmount(h.get(row, stColAmount), shared.StyleUS)
		if err != nil {
			return nil, lineError(line, "amount: %v", err)
		}
		refunded := decimal.Zero
		if raw := h.get(row, stColRefunded); raw != "" {
			if refunded, err = shared.ParseAmount(raw, shared.StyleUS); err != nil {
				return nil, lineError(line, "amount refunded: %v", err)
			}
		}

		id := h.get(row, stColID)
		data := custom(
			csvrows.KeyTransactionID, id,
			csvrows.KeyOrderID, h.get(row, stColOrderID),
			csvrows.KeyEmail, shared.NormalizeEmail(h.get(row, stColEmail)),
			csvrows.KeyStatus, status,
			csvrows.KeyFee, h.get(row, stColFee),
			"refunded", h.get(row, stColRefunded),
		)
		if transfer := h.get(row, stColTransfer); transfer != "" {
			data["transfer"] = transfer
			data[csvrows.KeyPayoutKey] = "stripe:" + transfer
		}
		out = append(out, Record{
			Date:        date,
			Description: h.get(row, stColDescription),
			Amount:      amount.Sub(refunded),
			Currency:    strings.ToUpper(h.get(row, stColCurrency)),
			Reference:   id,
			CustomData:  data,
		})
	}
	return out, nil
}
