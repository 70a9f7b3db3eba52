package ar

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

// Service handles AR business logic.
type Service struct {
	repo   RepositoryPort
	cache  Invalidator
	logger *slog.Logger
}

// Invalidator drops cached reports derived from invoices.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cache Invalidator, logger *slog.Logger) *Service {
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

// Create validates and stores a customer invoice.
func (s *Service) Create(ctx context.Context, input CreateInput) (Invoice, error) {
	input.Number = strings.TrimSpace(input.Number)
	input.CustomerName = strings.TrimSpace(input.CustomerName)
	input.CustomerEmail = shared.NormalizeEmail(input.CustomerEmail)
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
	created, err := s.repo.Create(ctx, Invoice{
		Number:             input.Number,
		CustomerName:       input.CustomerName,
		CustomerEmail:      input.CustomerEmail,
		OrderID:            strings.TrimSpace(input.OrderID),
		InvoiceDate:        invoiceDate,
		DueDate:            dueDate,
		Amount:             input.Amount.Round(2),
		Currency:           input.Currency,
		RevenueAccountCode: strings.TrimSpace(input.RevenueAccountCode),
		Status:             StatusOpen,
	})
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
	case "", StatusOpen, StatusPaid, StatusVoid:
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

// Outstanding returns open invoices awaiting a bank credit.
func (s *Service) Outstanding(ctx context.Context, currency string) ([]Invoice, error) {
	return s.repo.Outstanding(ctx, strings.ToUpper(currency))
}

// Aging groups outstanding invoices by days past due, one bucket set per currency.
func (s *Service) Aging(ctx context.Context, asOf time.Time) (AgingReport, error) {
	invoices, err := s.repo.Outstanding(ctx, "")
	if err != nil {
		return AgingReport{}, err
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	asOf = shared.DateOnly(asOf)

	byCurrency := map[string]*AgingBucket{}
	for _, inv := range invoices {
		if inv.Status != StatusOpen {
			continue
		}
		bucket, ok := byCurrency[inv.Currency]
		if !ok {
			bucket = &AgingBucket{Currency: inv.Currency}
			byCurrency[inv.Currency] = bucket
		}
		days := int(asOf.Sub(shared.DateOnly(inv.DueDate)).Hours() / 24)
		switch {
		case days <= 0:
			bucket.Current = bucket.Current.Add(inv.Amount)
		case days <= 30:
			bucket.Days1To30 = bucket.Days1To30.Add(inv.Amount)
		case days <= 60:
			bucket.Days31To60 = bucket.Days31To60.Add(inv.Amount)
		case days <= 90:
			bucket.Days61To90 = bucket.Days61To90.Add(inv.Amount)
		default:
			bucket.Over90 = bucket.Over90.Add(inv.Amount)
		}
		bucket.Total = bucket.Total.Add(inv.Amount)
	}

	report := AgingReport{AsOf: asOf, Buckets: make([]AgingBucket, 0, len(byCurrency))}
	for _, bucket := range byCurrency {
		report.Buckets = append(report.Buckets, *bucket)
	}
	sort.Slice(report.Buckets, func(i, j int) bool { return report.Buckets[i].Currency < report.Buckets[j].Currency })
	return report, nil
}
