// Package reconcile matches bank movements against invoices and payment-provider
// records.
package reconcile

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dsd-finance/finance-hub/internal/shared"
)

// Strategy names a matching heuristic.
type Strategy string

const (
	StrategyOrderID    Strategy = "order_id"
	StrategyEmail      Strategy = "email"
	StrategyAmountHint Strategy = "amount_hint"
	StrategyAmount     Strategy = "amount"
	StrategyManual     Strategy = "manual"
)

// IsValid reports whether s is a known strategy.
func (s Strategy) IsValid() bool {
	switch s {
	case StrategyOrderID, StrategyEmail, StrategyAmountHint, StrategyAmount, StrategyManual:
		return true
	}
	return false
}

// minOrderIDLen keeps short references like "12" from matching arbitrary text.
const minOrderIDLen = 4

// Item is one side of a potential match. Text, Email and Keywords are expected to be
// normalised (see NewItemText).
type Item struct {
	Key      string
	Kind     string
	Ref      string
	Date     time.Time
	Amount   decimal.Decimal
	Currency string
	OrderIDs []string
	Email    string
	Text     string
	Keywords []string
	RowIDs   []int64
}

// Match pairs a subject with the candidate chosen for it.
type Match struct {
	Subject    Item            `json:"subject"`
	Candidate  Item            `json:"candidate"`
	Strategy   Strategy        `json:"strategy"`
	AmountDiff decimal.Decimal `json:"amount_diff"`
}

// Result is the outcome of one engine pass.
type Result struct {
	Matches             []Match          `json:"matches"`
	UnmatchedSubjects   []Item           `json:"unmatched_subjects"`
	UnmatchedCandidates []Item           `json:"unmatched_candidates"`
	Summary             map[Strategy]int `json:"summary"`
}

// Engine holds the matching thresholds.
type Engine struct {
	Tolerance  decimal.Decimal
	WindowDays int
}

// NewEngine builds an engine. A zero tolerance would never match since the
// comparison is strict.
func NewEngine(tolerance decimal.Decimal, windowDays int) Engine {
	return Engine{Tolerance: tolerance, WindowDays: windowDays}
}

// Match pairs subjects with candidates one-to-one. Subjects are visited in
// (date, key) order and each takes the first strategy that yields an unused
// eligible candidate.
func (e Engine) Match(subjects, candidates []Item, strategies []Strategy) Result {
	subjects = sortedItems(subjects)
	candidates = sortedItems(candidates)

	res := Result{Summary: map[Strategy]int{}}
	used := make([]bool, len(candidates))
	for _, subject := range subjects {
		matched := false
		for _, strategy := range strategies {
			idx := e.pick(subject, candidates, used, strategy)
			if idx < 0 {
				continue
			}
			used[idx] = true
			res.Matches = append(res.Matches, Match{
				Subject:    subject,
				Candidate:  candidates[idx],
				Strategy:   strategy,
				AmountDiff: subject.Amount.Sub(candidates[idx].Amount),
			})
			res.Summary[strategy]++
			matched = true
			break
		}
		if !matched {
			res.UnmatchedSubjects = append(res.UnmatchedSubjects, subject)
		}
	}
	for i, c := range candidates {
		if !used[i] {
			res.UnmatchedCandidates = append(res.UnmatchedCandidates, c)
		}
	}
	return res
}

// pick returns the index of the candidate chosen for subject under strategy, or -1.
func (e Engine) pick(subject Item, candidates []Item, used []bool, strategy Strategy) int {
	best, bestDays := -1, 0
	for i, c := range candidates {
		if used[i] || !strings.EqualFold(subject.Currency, c.Currency) {
			continue
		}
		if !e.eligible(subject, c, strategy) {
			continue
		}
		switch strategy {
		case StrategyAmountHint, StrategyAmount:
			days := shared.DaysBetween(subject.Date, c.Date)
			if best < 0 || days < bestDays {
				best, bestDays = i, days
			}
		default:
			return i
		}
	}
	return best
}

func (e Engine) eligible(subject, c Item, strategy Strategy) bool {
	switch strategy {
	case StrategyOrderID:
		return orderIDMatch(subject, c)
	case StrategyEmail:
		return subject.Email != "" && subject.Email == c.Email && e.amountOK(subject, c)
	case StrategyAmountHint:
		return e.amountOK(subject, c) && e.dateOK(subject, c) && keywordMatch(subject.Text, c.Keywords)
	case StrategyAmount:
		return e.amountOK(subject, c) && e.dateOK(subject, c)
	}
	return false
}

func (e Engine) amountOK(a, b Item) bool {
	return shared.WithinTolerance(a.Amount, b.Amount, e.Tolerance)
}

func (e Engine) dateOK(a, b Item) bool {
	return shared.DaysBetween(a.Date, b.Date) <= e.WindowDays
}

func orderIDMatch(subject, c Item) bool {
	for _, id := range c.OrderIDs {
		norm := shared.NormalizeText(id)
		if len(norm) < minOrderIDLen {
			continue
		}
		if strings.Contains(subject.Text, norm) {
			return true
		}
		for _, own := range subject.OrderIDs {
			if shared.NormalizeText(own) == norm {
				return true
			}
		}
	}
	return false
}

func keywordMatch(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func sortedItems(items []Item) []Item {
	out := append([]Item(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// NewItemText normalises the free text fields an item is searched by.
func NewItemText(parts ...string) string {
	return shared.NormalizeText(strings.Join(parts, " "))
}
