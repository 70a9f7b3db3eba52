package shared

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// NumberStyle identifies how an export groups digits.
type NumberStyle int

const (
	// StyleUS uses "," for thousands and "." for decimals: 1,234.56
	StyleUS NumberStyle = iota
	// StyleEU uses "." for thousands and "," for decimals: 1.234,56
	StyleEU
)

// ErrInvalidAmount is returned for values that cannot be read as money.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount reads a monetary string exported by a bank or payment provider.
// Leading or trailing currency codes and symbols, spaces, parentheses and trailing
// minus signs are accepted. Letters between digits are not.
func ParseAmount(raw string, style NumberStyle) (decimal.Decimal, error) {
	s := strings.TrimFunc(raw, isAmountAffix)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimFunc(s[1:len(s)-1], isAmountAffix)
	}
	for len(s) > 0 && (s[0] == '-' || s[0] == '+') {
		if s[0] == '-' {
			negative = !negative
		}
		s = strings.TrimFunc(s[1:], isAmountAffix)
	}
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimFunc(strings.TrimSuffix(s, "-"), isAmountAffix)
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',':
			b.WriteRune(r)
		case unicode.IsSpace(r), r == '\'':
		default:
			return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
		}
	}
	clean := b.String()
	switch style {
	case StyleEU:
		clean = strings.ReplaceAll(clean, ".", "")
		clean = strings.ReplaceAll(clean, ",", ".")
	default:
		clean = strings.ReplaceAll(clean, ",", "")
	}
	if clean == "" || strings.Count(clean, ".") > 1 {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	amount, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount.Round(2), nil
}

// isAmountAffix matches the currency codes, symbols and padding exports put around
// a number.
func isAmountAffix(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsLetter(r) || unicode.Is(unicode.Sc, r)
}

// WithinTolerance reports whether |a-b| is strictly below tol.
func WithinTolerance(a, b, tol decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(tol)
}

// MinorUnits converts an integer amount in cents to a decimal.
func MinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
