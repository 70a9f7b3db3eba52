package ingest

import (
	"io"
	"strings"

	"github.com/dsd-finance/finance-hub/internal/csvrows"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

const (
	hsColID        = "record id"
	hsColName      = "deal name"
	hsColStage     = "deal stage"
	hsColCloseDate = "close date"
	hsColAmount    = "amount"
	hsColCurrency  = "currency"
	hsColOrderID   = "order id"
	hsColEmail     = "customer email"
)

// HubSpotParser reads HubSpot deal exports. Deals without a close date are still
// open and are skipped.
type HubSpotParser struct{}

// Parse implements Parser.
func (HubSpotParser) Parse(r io.Reader, source Source) ([]Record, error) {
	rows, err := readCSV(r, ',')
	if err != nil {
		return nil, err
	}
	start, h, err := findHeader(rows, hsColID, hsColCloseDate, hsColAmount)
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
		rawClose := h.get(row, hsColCloseDate)
		if rawClose == "" {
			continue
		}
		date, err := shared.ParseDate(rawClose, "2006-01-02 15:04", "2006-01-02 15:04:05", "2006-01-02", "01/02/2006")
		if err != nil {
			return nil, lineError(line, "close date: %v", err)
		}
		amount, err := shared.ParseAmount(h.get(row, hsColAmount), shared.StyleUS)
		if err != nil {
			return nil, lineError(line, "amount: %v", err)
		}
		currency := strings.ToUpper(h.get(row, hsColCurrency))
		if currency == "" {
			currency = "EUR"
		}
		id := h.get(row, hsColID)
		out = append(out, Record{
			Date:        date,
			Description: h.get(row, hsColName),
			Amount:      amount,
			Currency:    currency,
			Reference:   id,
			CustomData: custom(
				"deal_id", id,
				"stage", strings.ToLower(h.get(row, hsColStage)),
				csvrows.KeyOrderID, h.get(row, hsColOrderID),
				csvrows.KeyEmail, shared.NormalizeEmail(h.get(row, hsColEmail)),
			),
		})
	}
	return out, nil
}
