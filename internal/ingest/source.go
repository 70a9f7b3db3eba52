// Package ingest maps bank and payment-provider exports onto csv_rows.
package ingest

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
)

// Source identifies an export origin, optionally suffixed with its currency
// (bankinter-eur, braintree-usd).
type Source string

const (
	SourceBankinterEUR Source = "bankinter-eur"
	SourceBankinterUSD Source = "bankinter-usd"
	SourceBraintreeEUR Source = "braintree-eur"
	SourceBraintreeUSD Source = "braintree-usd"
	SourceBraintreeGBP Source = "braintree-gbp"
	SourceStripe       Source = "stripe"
	SourceGoCardless   Source = "gocardless"
	SourcePayPal       Source = "paypal"
	SourceHubSpot      Source = "hubspot"
)

// Source families.
const (
	FamilyBankinter  = "bankinter"
	FamilyBraintree  = "braintree"
	FamilyStripe     = "stripe"
	FamilyGoCardless = "gocardless"
	FamilyPayPal     = "paypal"
	FamilyHubSpot    = "hubspot"
)

var knownSources = map[Source]struct{}{
	SourceBankinterEUR: {}, SourceBankinterUSD: {},
	SourceBraintreeEUR: {}, SourceBraintreeUSD: {}, SourceBraintreeGBP: {},
	SourceStripe: {}, SourceGoCardless: {}, SourcePayPal: {}, SourceHubSpot: {},
}

// ParseSource validates a source name.
func ParseSource(raw string) (Source, error) {
	s := Source(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownSources[s]; !ok {
		return "", fmt.Errorf("%w: source %q", httpx.ErrUnsupported, raw)
	}
	return s, nil
}

// Sources lists every supported source in a stable order.
func Sources() []Source {
	out := make([]Source, 0, len(knownSources))
	for s := range knownSources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SourcesOfFamily lists the supported sources belonging to family.
func SourcesOfFamily(family string) []Source {
	var out []Source
	for _, s := range Sources() {
		if s.Family() == family {
			out = append(out, s)
		}
	}
	return out
}

// Family returns the source without its currency suffix.
func (s Source) Family() string {
	family, _, _ := strings.Cut(string(s), "-")
	return family
}

// Currency returns the ISO currency encoded in the source name, if any.
func (s Source) Currency() string {
	_, cur, ok := strings.Cut(string(s), "-")
	if !ok {
		return ""
	}
	return strings.ToUpper(cur)
}

// Record is a normalised export line ready to become a csv_rows row.
type Record struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Currency    string
	Reference   string
	CustomData  map[string]any
}

// Parser converts one export format into records.
type Parser interface {
	Parse(r io.Reader, source Source) ([]Record, error)
}

// DefaultParsers returns the parser for every source family.
func DefaultParsers() map[string]Parser {
	return map[string]Parser{
		FamilyBankinter:  BankinterParser{},
		FamilyBraintree:  BraintreeParser{},
		FamilyStripe:     StripeParser{},
		FamilyGoCardless: GoCardlessParser{},
		FamilyPayPal:     PayPalParser{},
		FamilyHubSpot:    HubSpotParser{},
	}
}

func lineError(line int, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", httpx.ErrValidation, line, fmt.Sprintf(format, args...))
}
