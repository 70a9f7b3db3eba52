package ingest

import (
	"fmt"
	"io"
	"strings"

	"github.com/dsd-finance/finance-hub/internal/csvrows"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

const (
	btColID           = "transaction id"
	btColType         = "transaction type"
	btColStatus       = "transaction status"
	btColCreated      = "created datetime"
	btColDisbursement = "disbursement date"
	btColCurrency     = "currency iso code"
	btColAmount       = "amount submitted for settlement"
	btColOrderID      = "order id"
	btColEmail        = "customer email"
	btColFirstName    = "customer first name"
	btColLastName     = "customer last name"
	btColFee          = "service fee"
)

var braintreeSkippedStatuses = map[string]bool{
	"failed":                true,
	"gateway_rejected":      true,
	"processor_declined":    true,
	"voided":                true,
	"authorization_expired": true,
}

var braintreeDateLayouts = []string{"2006-01-02 15:04:05", "01/02/2006 15:04:05", "2006-01-02", "01/02/2006"}

// BraintreeParser reads Braintree transaction search exports.
type BraintreeParser struct{}

// Parse implements Parser.
func (BraintreeParser) Parse(r io.Reader, source Source) ([]Record, error) {
	rows, err := readCSV(r, ',')
	if err != nil {
		return nil, err
	}
	start, h, err := findHeader(rows, btColID, btColCreated, btColCurrency, btColAmount)
	if err != nil {
		return nil, err
	}
	want := source.Currency()

	var out []Record
	for i := start + 1; i < len(rows); i++ {
		row := rows[i]
		if blankRow(row) {
			continue
		}
		line := i + 1
		status := strings.ToLower(h.get(row, btColStatus))
		if braintreeSkippedStatuses[status] {
			continue
		}
		currency := strings.ToUpper(h.get(row, btColCurrency))
		if want != "" && currency != want {
			return nil, lineError(line, "currency %s does not belong to %s", currency, source)
		}
		date, err := shared.ParseDate(h.get(row, btColCreated), braintreeDateLayouts...)
		if err != nil {
			return nil, lineError(line, "created datetime: %v", err)
		}
		amount, err := shared.ParseAmount(h.get(row, btColAmount), shared.StyleUS)
		if err != nil {
			return nil, lineError(line, "amount: %v", err)
		}
		kind := strings.ToLower(h.get(row, btColType))
		if kind == "credit" {
			amount = amount.Neg()
		}

		id := h.get(row, btColID)
		orderID := h.get(row, btColOrderID)
		name := strings.TrimSpace(h.get(row, btColFirstName) + " " + h.get(row, btColLastName))
		data := custom(
			csvrows.KeyTransactionID, id,
			csvrows.KeyOrderID, orderID,
			csvrows.KeyEmail, shared.NormalizeEmail(h.get(row, btColEmail)),
			csvrows.KeyStatus, status,
			csvrows.KeyKind, kind,
			"customer_name", name,
			csvrows.KeyFee, h.get(row, btColFee),
		)
		if raw := h.get(row, btColDisbursement); raw != "" {
			disbursed, err := shared.ParseDate(raw, braintreeDateLayouts...)
			if err != nil {
				return nil, lineError(line, "disbursement date: %v", err)
			}
			data["disbursement_date"] = disbursed.Format("2006-01-02")
			data[csvrows.KeyPayoutKey] = fmt.Sprintf("braintree:%s:%s", currency, disbursed.Format("2006-01-02"))
		}

		out = append(out, Record{
			Date:        date,
			Description: strings.TrimSpace(fmt.Sprintf("Braintree %s %s %s", kind, orderID, name)),
			Amount:      amount,
			Currency:    currency,
			Reference:   id,
			CustomData:  data,
		})
	}
	return out, nil
}
