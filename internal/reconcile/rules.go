package reconcile

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/dsd-finance/finance-hub/internal/ap"
	"github.com/dsd-finance/finance-hub/internal/ar"
	"github.com/dsd-finance/finance-hub/internal/csvrows"
	"github.com/dsd-finance/finance-hub/internal/ingest"
	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

// Rule selects which data sets are reconciled against each other.
type Rule string

const (
	RuleBankAP      Rule = "bank-ap"
	RuleBankAR      Rule = "bank-ar"
	RuleBankPayout  Rule = "bank-payout"
	RuleDealPayment Rule = "deal-payment"
)

// Target kinds persisted in reconciliation_matches.target_kind.
const (
	TargetAPInvoice = "ap_invoice"
	TargetARInvoice = "ar_invoice"
	TargetPayout    = "payout"
	TargetCSVRow    = "csv_row"
)

// Rules lists every rule in the order the nightly job runs them.
func Rules() []Rule {
	return []Rule{RuleBankAP, RuleBankAR, RuleBankPayout, RuleDealPayment}
}

// ParseRule validates a rule name.
func ParseRule(raw string) (Rule, error) {
	for _, r := range Rules() {
		if string(r) == raw {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: unknown reconciliation rule %q", httpx.ErrNotFound, raw)
}

// Strategies returns the strategy order for the rule.
func (r Rule) Strategies() []Strategy {
	switch r {
	case RuleBankAP:
		return []Strategy{StrategyOrderID, StrategyAmountHint, StrategyAmount}
	case RuleBankAR:
		return []Strategy{StrategyOrderID, StrategyAmount}
	case RuleBankPayout:
		return []Strategy{StrategyAmountHint, StrategyAmount}
	case RuleDealPayment:
		return []Strategy{StrategyOrderID, StrategyEmail}
	}
	return nil
}

// TargetKind is the kind of candidate the rule matches against.
func (r Rule) TargetKind() string {
	switch r {
	case RuleBankAP:
		return TargetAPInvoice
	case RuleBankAR:
		return TargetARInvoice
	case RuleBankPayout:
		return TargetPayout
	}
	return TargetCSVRow
}

// AcceptsSubject reports whether a subject row of the given amount can be matched
// by the rule: bank-ap takes debits, bank-ar and bank-payout take credits.
func (r Rule) AcceptsSubject(amount decimal.Decimal) bool {
	switch r {
	case RuleBankAP:
		return amount.IsNegative()
	case RuleBankAR, RuleBankPayout:
		return amount.IsPositive()
	}
	return true
}

// SubjectSources lists csv_rows sources the rule reads subjects from.
func (r Rule) SubjectSources() []string {
	if r == RuleDealPayment {
		return sourceNames(ingest.SourcesOfFamily(ingest.FamilyHubSpot))
	}
	return sourceNames(ingest.SourcesOfFamily(ingest.FamilyBankinter))
}

// ProviderSources lists payment-provider sources that feed payouts and deals.
func ProviderSources() []string {
	var out []string
	for _, family := range []string{ingest.FamilyBraintree, ingest.FamilyStripe, ingest.FamilyGoCardless, ingest.FamilyPayPal} {
		out = append(out, sourceNames(ingest.SourcesOfFamily(family))...)
	}
	return out
}

func sourceNames(sources []ingest.Source) []string {
	out := make([]string, len(sources))
	for i, s := range sources {
		out[i] = string(s)
	}
	return out
}

func rowKey(id int64) string { return "row:" + strconv.FormatInt(id, 10) }

// BankSubjects converts bank rows into subjects. Debits feed bank-ap with their
// absolute amount; credits feed the other bank rules.
func BankSubjects(rows []csvrows.Row, debits bool) []Item {
	var out []Item
	for _, row := range rows {
		if row.Reconciled || row.Amount.IsNegative() != debits || row.Amount.IsZero() {
			continue
		}
		out = append(out, rowItem(row, row.Amount.Abs()))
	}
	return out
}

func rowItem(row csvrows.Row, amount decimal.Decimal) Item {
	item := Item{
		Key:      rowKey(row.ID),
		Kind:     TargetCSVRow,
		Ref:      strconv.FormatInt(row.ID, 10),
		Date:     row.Date,
		Amount:   amount,
		Currency: row.Currency,
		Email:    shared.NormalizeEmail(row.Custom(csvrows.KeyEmail)),
		Text:     NewItemText(row.Description, row.Reference),
		RowIDs:   []int64{row.ID},
	}
	if id := row.Custom(csvrows.KeyOrderID); id != "" {
		item.OrderIDs = append(item.OrderIDs, id)
	}
	return item
}

// APCandidates converts unreconciled supplier invoices. The provider name is the
// hint keyword looked up in bank descriptions.
func APCandidates(invoices []ap.Invoice) []Item {
	out := make([]Item, 0, len(invoices))
	for _, inv := range invoices {
		id := strconv.FormatInt(inv.ID, 10)
		out = append(out, Item{
			Key:      "ap:" + id,
			Kind:     TargetAPInvoice,
			Ref:      id,
			Date:     inv.PaymentDate(),
			Amount:   inv.Amount,
			Currency: inv.Currency,
			OrderIDs: []string{inv.Number},
			Text:     NewItemText(inv.ProviderName, inv.Number),
			Keywords: []string{shared.NormalizeText(inv.ProviderName)},
		})
	}
	return out
}

// ARCandidates converts open customer invoices.
func ARCandidates(invoices []ar.Invoice) []Item {
	out := make([]Item, 0, len(invoices))
	for _, inv := range invoices {
		id := strconv.FormatInt(inv.ID, 10)
		ids := []string{inv.Number}
		if inv.OrderID != "" {
			ids = append(ids, inv.OrderID)
		}
		out = append(out, Item{
			Key:      "ar:" + id,
			Kind:     TargetARInvoice,
			Ref:      id,
			Date:     inv.DueDate,
			Amount:   inv.Amount,
			Currency: inv.Currency,
			OrderIDs: ids,
			Email:    shared.NormalizeEmail(inv.CustomerEmail),
			Text:     NewItemText(inv.CustomerName, inv.Number),
		})
	}
	return out
}

// PayoutCandidates groups provider rows by payout key. The payout amount is the sum
// of what each row contributes to the bank transfer (see PayoutShare) and its date
// the latest row date.
func PayoutCandidates(rows []csvrows.Row) []Item {
	byKey := map[string]*Item{}
	var keys []string
	for _, row := range rows {
		key := row.Custom(csvrows.KeyPayoutKey)
		if key == "" || row.Reconciled {
			continue
		}
		item, ok := byKey[key]
		if !ok {
			family := ingest.Source(row.Source).Family()
			item = &Item{
				Key:      "payout:" + key,
				Kind:     TargetPayout,
				Ref:      key,
				Date:     row.Date,
				Currency: row.Currency,
				Text:     NewItemText(family, key),
				Keywords: []string{family},
			}
			byKey[key] = item
			keys = append(keys, key)
		}
		item.Amount = item.Amount.Add(PayoutShare(row))
		item.RowIDs = append(item.RowIDs, row.ID)
		if row.Date.After(item.Date) {
			item.Date = row.Date
		}
	}
	sort.Strings(keys)
	out := make([]Item, 0, len(keys))
	for _, key := range keys {
		out = append(out, *byKey[key])
	}
	return out
}

// PayoutShare is the part of a provider row that reaches the bank: the net column
// when the export has one, else the amount less the provider fee. Withdrawal rows
// already carry the transferred amount.
func PayoutShare(row csvrows.Row) decimal.Decimal {
	if row.Custom(csvrows.KeyKind) == "withdrawal" {
		return row.Amount
	}
	if raw := row.Custom(csvrows.KeyNet); raw != "" {
		if net, err := shared.ParseAmount(raw, shared.StyleUS); err == nil {
			return net
		}
	}
	if raw := row.Custom(csvrows.KeyFee); raw != "" {
		if fee, err := shared.ParseAmount(raw, shared.StyleUS); err == nil {
			return row.Amount.Sub(fee.Abs())
		}
	}
	return row.Amount
}

// DealSubjects converts HubSpot deal rows.
func DealSubjects(rows []csvrows.Row) []Item {
	var out []Item
	for _, row := range rows {
		if row.Reconciled {
			continue
		}
		out = append(out, rowItem(row, row.Amount))
	}
	return out
}

// PaymentCandidates converts individual provider payments, excluding withdrawals.
// The reconciled flag is ignored: on provider rows it records the payout match,
// which is independent from the deal link.
func PaymentCandidates(rows []csvrows.Row) []Item {
	var out []Item
	for _, row := range rows {
		if row.Custom(csvrows.KeyKind) == "withdrawal" || !row.Amount.IsPositive() {
			continue
		}
		out = append(out, rowItem(row, row.Amount))
	}
	return out
}
