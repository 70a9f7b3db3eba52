package csvrows

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dsd-finance/finance-hub/internal/shared"
)

// Well-known custom_data keys shared by parsers and reconciliation.
const (
	KeyOrderID       = "order_id"
	KeyEmail         = "email"
	KeyPayoutKey     = "payout_key"
	KeyTransactionID = "transaction_id"
	KeyStatus        = "status"
	KeyKind          = "kind"
	KeyFee           = "fee"
	KeyNet           = "net"
)

// Row is one imported transaction line.
type Row struct {
	ID          int64           `json:"id"`
	Source      string          `json:"source"`
	ImportID    *uuid.UUID      `json:"import_id,omitempty"`
	Fingerprint string          `json:"fingerprint"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Reference   string          `json:"reference"`
	CustomData  map[string]any  `json:"custom_data"`
	Reconciled  bool            `json:"reconciled"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Custom returns a custom_data value rendered as a string.
func (r Row) Custom(key string) string {
	v, ok := r.CustomData[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Import summarises one upload.
type Import struct {
	ID           uuid.UUID `json:"id"`
	Source       string    `json:"source"`
	Filename     string    `json:"filename"`
	RowsTotal    int       `json:"rows_total"`
	RowsInserted int       `json:"rows_inserted"`
	RowsSkipped  int       `json:"rows_skipped"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListFilter narrows row listings.
type ListFilter struct {
	Source     string
	From       *time.Time
	To         *time.Time
	Reconciled *bool
	Search     string
	Page       shared.PageRequest
}
