package pnl

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
)

// Source supplies monthly account totals.
type Source interface {
	MonthlyTotals(ctx context.Context, year int, currency string) ([]AccountMonth, error)
}

// Cache is the versioned report cache.
type Cache interface {
	BuildKey(ctx context.Context, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
}

// Filter selects the report period.
type Filter struct {
	Year     int
	Currency string
}

// Service builds P&L reports behind a cache.
type Service struct {
	source Source
	cache  Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewService constructs the service. cache may be nil.
func NewService(source Source, cache Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{source: source, cache: cache, logger: logger}
}

func (f Filter) normalize() (Filter, error) {
	if f.Year == 0 {
		f.Year = time.Now().UTC().Year()
	}
	if f.Year < 2000 || f.Year > 2100 {
		return f, fmt.Errorf("%w: year out of range", httpx.ErrValidation)
	}
	f.Currency = strings.ToUpper(strings.TrimSpace(f.Currency))
	if f.Currency == "" {
		f.Currency = "EUR"
	}
	if len(f.Currency) != 3 {
		return f, fmt.Errorf("%w: currency must be an ISO code", httpx.ErrValidation)
	}
	return f, nil
}

// Build returns the report for the filter, served from cache when possible.
// Identical concurrent builds share one computation.
func (s *Service) Build(ctx context.Context, filter Filter) (Report, error) {
	filter, err := filter.normalize()
	if err != nil {
		return Report{}, err
	}
	flightKey := strconv.Itoa(filter.Year) + ":" + filter.Currency
	ch := s.group.DoChan(flightKey, func() (any, error) {
		return s.cached(context.WithoutCancel(ctx), filter)
	})
	select {
	case <-ctx.Done():
		return Report{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Report{}, res.Err
		}
		return res.Val.(Report), nil
	}
}

func (s *Service) cached(ctx context.Context, filter Filter) (Report, error) {
	load := func(ctx context.Context) (any, error) {
		rows, err := s.source.MonthlyTotals(ctx, filter.Year, filter.Currency)
		if err != nil {
			return nil, err
		}
		return BuildReport(filter.Year, filter.Currency, rows), nil
	}
	if s.cache == nil {
		v, err := load(ctx)
		if err != nil {
			return Report{}, err
		}
		return v.(Report), nil
	}

	key, err := s.cache.BuildKey(ctx, "report", strconv.Itoa(filter.Year), filter.Currency)
	if err != nil {
		s.logger.Warn("pnl cache key", slog.Any("error", err))
		v, err := load(ctx)
		if err != nil {
			return Report{}, err
		}
		return v.(Report), nil
	}
	var report Report
	if err := s.cache.FetchJSON(ctx, key, &report, load); err != nil {
		return Report{}, err
	}
	return report, nil
}
