package csvrows

import (
	"context"
	"fmt"

	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

// Store is the persistence contract used by the service.
type Store interface {
	List(ctx context.Context, f ListFilter) ([]Row, int, error)
	Get(ctx context.Context, id int64) (Row, error)
	ListImports(ctx context.Context, source string, limit int) ([]Import, error)
}

// Service exposes read access to imported rows.
type Service struct {
	store Store
}

// NewService constructs the service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns a page of rows with pagination metadata.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Row, shared.Pagination, error) {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, shared.Pagination{}, fmt.Errorf("%w: to precedes from", httpx.ErrValidation)
	}
	f.Page = f.Page.Normalize()
	rows, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, shared.NewPagination(f.Page.Page, f.Page.PerPage, total), nil
}

// Get returns one row.
func (s *Service) Get(ctx context.Context, id int64) (Row, error) {
	if id <= 0 {
		return Row{}, fmt.Errorf("%w: invalid row id", httpx.ErrValidation)
	}
	return s.store.Get(ctx, id)
}

// ListImports returns the latest imports.
func (s *Service) ListImports(ctx context.Context, source string) ([]Import, error) {
	imports, err := s.store.ListImports(ctx, source, 100)
	if err != nil {
		return nil, err
	}
	if imports == nil {
		imports = []Import{}
	}
	return imports, nil
}
