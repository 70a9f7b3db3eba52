package ingest

import (
	"io"
	"strings"

	"github.com/dsd-finance/finance-hub/internal/csvrows"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

const (
	gcColID          = "id"
	gcColChargeDate  = "charge_date"
	gcColAmount      = "amount"
	gcColCurrency    = "currency"
	gcColStatus      = "status"
	gcColDescription = "description"
	gcColReference   = "reference"
	gcColPayout      = "links.payout"
	gcColEmail       = "customers.email"
	gcColOrderID     = "metadata.order_id"
	gcColFee         = "fee"
)

var goCardlessSkippedStatuses = map[string]bool{
	"failed":                   true,
	"cancelled":                true,
	"customer_approval_denied": true,
}

// GoCardlessParser reads GoCardless payment exports.
type GoCardlessParser struct{}

// Parse implements Parser.
func (GoCardlessParser) Parse(r io.Reader, source Source) ([]Record, error) {
	rows, err := readCSV(r, ',')
	if err != nil {
		return nil, err
	}
	start, h, err := findHeader(rows, gcColID, gcColChargeDate, gcColAmount, gcColCurrency)
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
		status := strings.ToLower(h.get(row, gcColStatus))
		if goCardlessSkippedStatuses[status] {
			continue
		}
		date, err := shared.ParseDate(h.get(row, gcColChargeDate), "2006-01-02", "02/01/2006")
		if err != nil {
			return nil, lineError(line, "charge_date: %v", err)
		}
		amount, err := shared.ParseAmount(h.get(row, gcColAmount), shared.StyleUS)
		if err != nil {
			return nil, lineError(line, "amount: %v", err)
		}
		id := h.get(row, gcColID)
		reference := h.get(row, gcColReference)
		if reference == "" {
			reference = id
		}
		data := custom(
			csvrows.KeyTransactionID, id,
			csvrows.KeyOrderID, h.get(row, gcColOrderID),
			csvrows.KeyEmail, shared.NormalizeEmail(h.get(row, gcColEmail)),
			csvrows.KeyStatus, status,
			csvrows.KeyFee, h.get(row, gcColFee),
		)
		if payout := h.get(row, gcColPayout); payout != "" {
			data["payout_id"] = payout
			data[csvrows.KeyPayoutKey] = "gocardless:" + payout
		}
		out = append(out, Record{
			Date:        date,
			Description: h.get(row, gcColDescription),
			Amount:      amount,
			Currency:    strings.ToUpper(h.get(row, gcColCurrency)),
			Reference:   reference,
			CustomData:  data,
		})
	}
	return out, nil
}
