package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

// readCSV loads every record, tolerating ragged rows and sloppy quoting.
func readCSV(r io.Reader, comma rune) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read csv: %w", httpx.ErrValidation, err)
	}
	return rows, nil
}

// header maps normalised column names to their index.
type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, col := range row {
		col = strings.TrimPrefix(col, "\ufeff")
		h[shared.NormalizeText(col)] = i
	}
	return h
}

func (h header) has(cols ...string) bool {
	for _, col := range cols {
		if _, ok := h[col]; !ok {
			return false
		}
	}
	return true
}

// get returns the trimmed cell for col, or "" when the column or cell is absent.
func (h header) get(row []string, col string) string {
	idx, ok := h[col]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// findHeader scans for the first row containing every required column. Exports often
// carry account metadata above the real header.
func findHeader(rows [][]string, required ...string) (int, header, error) {
	for i, row := range rows {
		h := newHeader(row)
		if h.has(required...) {
			return i, h, nil
		}
	}
	return 0, nil, fmt.Errorf("%w: header with columns %s not found", httpx.ErrValidation, strings.Join(required, ", "))
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// custom builds a custom_data map, dropping empty values.
func custom(kv ...string) map[string]any {
	out := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			out[kv[i]] = kv[i+1]
		}
	}
	return out
}
