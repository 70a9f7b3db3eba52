package ap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

// Service implements accounts payable operations.
type Service struct {
	repo   Repository
	cache  Invalidator
	logger *slog.Logger
}

// Invalidator drops cached reports derived from invoices.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// NewService constructs the service.
func NewService(repo Repository, cache Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// invalidate bumps the report cache after a write. A failed bump leaves the
// report stale until its TTL.
func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("invalidate report cache", slog.Any("error", err))
	}
}

// Create validates and stores a supplier invoice. The due date defaults to the
// invoice date.
func (s *Service) Create(ctx context.Context, input CreateInput) (Invoice, error) {
	input.Number = strings.TrimSpace(input.Number)
	input.ProviderName = strings.TrimSpace(input.ProviderName)
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	if err := shared.ValidateStruct(input); err != nil {
		return Invoice{}, err
	}
	if !input.Amount.IsPositive() {
		return Invoice{}, fmt.Errorf("%w: amount must be positive", httpx.ErrValidation)
	}

	invoiceDate, err := shared.ParseInputDate("invoice_date", input.InvoiceDate)
	if err != nil {
		return Invoice{}, err
	}
	dueDate := invoiceDate
	if input.DueDate != "" {
		if dueDate, err = shared.ParseInputDate("due_date", input.DueDate); err != nil {
			return Invoice{}, err
		}
	}
	if dueDate.Before(invoiceDate) {
		return Invoice{}, fmt.Errorf("%w: due_date precedes invoice_date", httpx.ErrValidation)
	}
	inv := Invoice{
		Number:               input.Number,
		ProviderName:         input.ProviderName,
		BankAccountCode:      strings.TrimSpace(input.BankAccountCode),
		FinancialAccountCode: strings.TrimSpace(input.FinancialAccountCode),
		InvoiceDate:          invoiceDate,
		DueDate:              dueDate,
		Amount:               input.Amount.Round(2),
		Currency:             input.Currency,
		Status:               StatusPending,
	}
	if input.ScheduleDate != "" {
		schedule, err := shared.ParseInputDate("schedule_date", input.ScheduleDate)
		if err != nil {
			return Invoice{}, err
		}
		inv.ScheduleDate = &schedule
	}
	created, err := s.repo.Create(ctx, inv)
	if err != nil {
		return Invoice{}, err
	}
	s.invalidate(ctx)
	return created, nil
}

// Get returns one invoice.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	if id <= 0 {
		return Invoice{}, fmt.Errorf("%w: invalid invoice id", httpx.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// List returns a page of invoices.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Invoice, shared.Pagination, error) {
	switch f.Status {
	case "", StatusPending, StatusPaid, StatusCancelled:
	default:
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, f.Status)
	}
	f.Page = f.Page.Normalize()
	invoices, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if invoices == nil {
		invoices = []Invoice{}
	}
	return invoices, shared.NewPagination(f.Page.Page, f.Page.PerPage, total), nil
}

// Unreconciled returns pending invoices not yet matched to a bank movement.
func (s *Service) Unreconciled(ctx context.Context, currency string) ([]Invoice, error) {
	return s.repo.Unreconciled(ctx, strings.ToUpper(currency))
}
