package ingest

import (
	"io"
	"strings"

	"github.com/dsd-finance/finance-hub/internal/csvrows"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

const (
	ppColDate     = "date"
	ppColTime     = "time"
	ppColName     = "name"
	ppColType     = "type"
	ppColStatus   = "status"
	ppColCurrency = "currency"
	ppColGross    = "gross"
	ppColFee      = "fee"
	ppColNet      = "net"
	ppColEmail    = "from email address"
	ppColID       = "transaction id"
	ppColInvoice  = "invoice number"
)

// PayPalParser reads PayPal activity downloads. Withdrawals to the bank are tagged
// with a payout key and their sign flipped so they line up with the bank credit.
type PayPalParser struct{}

// Parse implements Parser.
func (PayPalParser) Parse(r io.Reader, source Source) ([]Record, error) {
	rows, err := readCSV(r, ',')
	if err != nil {
		return nil, err
	}
	start, h, err := findHeader(rows, ppColDate, ppColType, ppColStatus, ppColCurrency, ppColGross, ppColID)
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
		if !strings.EqualFold(h.get(row, ppColStatus), "completed") {
			continue
		}
		date, err := shared.ParseDate(h.get(row, ppColDate), "01/02/2006", "2006-01-02", "1/2/2006")
		if err != nil {
			return nil, lineError(line, "date: %v", err)
		}
		amount, err := shared.ParseAmount(h.get(row, ppColGross), shared.StyleUS)
		if err != nil {
			return nil, lineError(line, "gross: %v", err)
		}
		id := h.get(row, ppColID)
		txType := h.get(row, ppColType)
		data := custom(
			csvrows.KeyTransactionID, id,
			csvrows.KeyOrderID, h.get(row, ppColInvoice),
			csvrows.KeyEmail, shared.NormalizeEmail(h.get(row, ppColEmail)),
			csvrows.KeyStatus, "completed",
			"type", txType,
			"time", h.get(row, ppColTime),
			csvrows.KeyFee, h.get(row, ppColFee),
			csvrows.KeyNet, h.get(row, ppColNet),
		)
		if strings.Contains(strings.ToLower(txType), "withdrawal") {
			data[csvrows.KeyKind] = "withdrawal"
			data[csvrows.KeyPayoutKey] = "paypal:" + id
			amount = amount.Neg()
		}
		description := strings.TrimSpace(txType + " " + h.get(row, ppColName))
		out = append(out, Record{
			Date:        date,
			Description: description,
			Amount:      amount,
			Currency:    strings.ToUpper(h.get(row, ppColCurrency)),
			Reference:   id,
			CustomData:  data,
		})
	}
	return out, nil
}
