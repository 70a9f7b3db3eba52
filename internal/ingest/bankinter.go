package ingest

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

const (
	bkColDate        = "fecha contable"
	bkColValueDate   = "fecha valor"
	bkColDescription = "descripcion"
	bkColAmount      = "importe"
	bkColBalance     = "saldo"
)

// BankinterParser reads Bankinter account statement exports: semicolon separated,
// Windows-1252 encoded, European number format, account details above the header.
type BankinterParser struct{}

// Parse implements Parser.
func (BankinterParser) Parse(r io.Reader, source Source) ([]Record, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		data, err = charmap.Windows1252.NewDecoder().Bytes(data)
		if err != nil {
			return nil, fmt.Errorf("%w: decode windows-1252: %v", httpx.ErrValidation, err)
		}
	}
	rows, err := readCSV(bytes.NewReader(data), ';')
	if err != nil {
		return nil, err
	}
	start, h, err := findHeader(rows, bkColDate, bkColDescription, bkColAmount)
	if err != nil {
		return nil, err
	}
	currency := source.Currency()
	if currency == "" {
		currency = "EUR"
	}

	var out []Record
	for i := start + 1; i < len(rows); i++ {
		row := rows[i]
		if blankRow(row) {
			continue
		}
		date, err := shared.ParseDate(h.get(row, bkColDate), "02/01/2006", "02-01-2006", "2006-01-02")
		if err != nil {
			// Totals and disclaimers trail the movements.
			continue
		}
		amount, err := shared.ParseAmount(h.get(row, bkColAmount), shared.StyleEU)
		if err != nil {
			return nil, lineError(i+1, "importe: %v", err)
		}
		out = append(out, Record{
			Date:        date,
			Description: h.get(row, bkColDescription),
			Amount:      amount,
			Currency:    currency,
			CustomData: custom(
				"value_date", h.get(row, bkColValueDate),
				"balance", h.get(row, bkColBalance),
			),
		})
	}
	return out, nil
}
