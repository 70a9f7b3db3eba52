package ap

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dsd-finance/finance-hub/internal/shared"
)

// Status enumerates supplier invoice states.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// Invoice is a supplier invoice awaiting or after payment.
type Invoice struct {
	ID                   int64           `json:"id"`
	Number               string          `json:"invoice_number"`
	ProviderName         string          `json:"provider_name"`
	BankAccountCode      string          `json:"bank_account_code,omitempty"`
	FinancialAccountCode string          `json:"financial_account_code"`
	InvoiceDate          time.Time       `json:"invoice_date"`
	DueDate              time.Time       `json:"due_date"`
	ScheduleDate         *time.Time      `json:"schedule_date,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency"`
	Status               Status          `json:"status"`
	PaidAt               *time.Time      `json:"paid_at,omitempty"`
	Reconciled           bool            `json:"reconciled"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// PaymentDate is the day the bank debit is expected: schedule date, else due date.
func (i Invoice) PaymentDate() time.Time {
	if i.ScheduleDate != nil {
		return *i.ScheduleDate
	}
	return i.DueDate
}

// CreateInput is the request body for new invoices. Dates are YYYY-MM-DD.
type CreateInput struct {
	Number               string          `json:"invoice_number" validate:"required,max=64"`
	ProviderName         string          `json:"provider_name" validate:"required,max=200"`
	BankAccountCode      string          `json:"bank_account_code" validate:"omitempty,max=32"`
	FinancialAccountCode string          `json:"financial_account_code" validate:"required,max=32"`
	InvoiceDate          string          `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	DueDate              string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	ScheduleDate         string          `json:"schedule_date" validate:"omitempty,datetime=2006-01-02"`
	Amount               decimal.Decimal `json:"amount"`
	Currency             string          `json:"currency" validate:"required,len=3,alpha"`
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Status     Status
	Provider   string
	Reconciled *bool
	Page       shared.PageRequest
}
