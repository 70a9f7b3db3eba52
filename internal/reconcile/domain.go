package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dsd-finance/finance-hub/internal/shared"
)

// MatchedBySystem marks matches created by a rule run.
const MatchedBySystem = "system"

// MatchRecord is a persisted reconciliation match.
type MatchRecord struct {
	ID         int64           `json:"id"`
	Rule       Rule            `json:"rule"`
	CSVRowID   int64           `json:"csv_row_id"`
	TargetKind string          `json:"target_kind"`
	TargetRef  string          `json:"target_ref"`
	Strategy   Strategy        `json:"strategy"`
	AmountDiff decimal.Decimal `json:"amount_diff"`
	MatchedBy  string          `json:"matched_by"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Pending is a match about to be written together with its side effects.
type Pending struct {
	MatchRecord
	// FlagRows are the csv_rows marked reconciled with the match.
	FlagRows []int64
	// PaidAt is applied to invoice targets.
	PaidAt time.Time
}

// RunOptions tunes a rule run.
type RunOptions struct {
	DryRun   bool
	Currency string
}

// RunReport summarises a rule run.
type RunReport struct {
	Rule       Rule             `json:"rule"`
	DryRun     bool             `json:"dry_run"`
	Currency   string           `json:"currency,omitempty"`
	Subjects   int              `json:"subjects"`
	Candidates int              `json:"candidates"`
	Persisted  int              `json:"persisted"`
	Summary    map[Strategy]int `json:"summary"`
	Matches    []Match          `json:"matches"`
	Unmatched  []Item           `json:"unmatched"`
}

// ManualMatchInput links a csv row to a target by hand.
type ManualMatchInput struct {
	Rule       Rule   `json:"rule" validate:"required"`
	CSVRowID   int64  `json:"csv_row_id" validate:"required,gt=0"`
	TargetKind string `json:"target_kind" validate:"omitempty,oneof=ap_invoice ar_invoice payout csv_row"`
	TargetRef  string `json:"target_ref" validate:"required,max=200"`
	MatchedBy  string `json:"matched_by" validate:"omitempty,max=100"`
}

// MatchFilter narrows match listings.
type MatchFilter struct {
	Rule Rule
	Page shared.PageRequest
}
