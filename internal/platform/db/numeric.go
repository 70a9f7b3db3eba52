package db

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ParseNumeric converts a numeric column selected as ::text into a decimal.
func ParseNumeric(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("platform/db: numeric %q: %w", raw, err)
	}
	return d, nil
}
