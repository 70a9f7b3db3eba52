package ar

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dsd-finance/finance-hub/internal/shared"
)

// Status enumerates customer invoice states.
type Status string

const (
	StatusOpen Status = "OPEN"
	StatusPaid Status = "PAID"
	StatusVoid Status = "VOID"
)

// Invoice is a customer invoice.
type Invoice struct {
	ID                 int64           `json:"id"`
	Number             string          `json:"invoice_number"`
	CustomerName       string          `json:"customer_name"`
	CustomerEmail      string          `json:"customer_email,omitempty"`
	OrderID            string          `json:"order_id,omitempty"`
	InvoiceDate        time.Time       `json:"invoice_date"`
	DueDate            time.Time       `json:"due_date"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	RevenueAccountCode string          `json:"revenue_account_code"`
	Status             Status          `json:"status"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	Reconciled         bool            `json:"reconciled"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// CreateInput is the request body for new invoices. Dates are YYYY-MM-DD.
type CreateInput struct {
	Number             string          `json:"invoice_number" validate:"required,max=64"`
	CustomerName       string          `json:"customer_name" validate:"required,max=200"`
	CustomerEmail      string          `json:"customer_email" validate:"omitempty,email"`
	OrderID            string          `json:"order_id" validate:"omitempty,max=64"`
	InvoiceDate        string          `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	DueDate            string          `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency" validate:"required,len=3,alpha"`
	RevenueAccountCode string          `json:"revenue_account_code" validate:"required,max=32"`
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	Status     Status
	Customer   string
	Reconciled *bool
	Page       shared.PageRequest
}

// AgingBucket summarises open balances by days overdue for one currency.
type AgingBucket struct {
	Currency   string          `json:"currency"`
	Current    decimal.Decimal `json:"current"`
	Days1To30  decimal.Decimal `json:"days_1_30"`
	Days31To60 decimal.Decimal `json:"days_31_60"`
	Days61To90 decimal.Decimal `json:"days_61_90"`
	Over90     decimal.Decimal `json:"over_90"`
	Total      decimal.Decimal `json:"total"`
}

// AgingReport is the receivables aging as of a date.
type AgingReport struct {
	AsOf    time.Time     `json:"as_of"`
	Buckets []AgingBucket `json:"buckets"`
}
