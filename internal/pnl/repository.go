package pnl

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsd-finance/finance-hub/internal/platform/db"
)

// Repository reads invoice totals from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// MonthlyTotals sums non-void AR invoices by revenue account and non-cancelled AP
// invoices by financial account, per invoice month.
func (r *Repository) MonthlyTotals(ctx context.Context, year int, currency string) ([]AccountMonth, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT 'revenue', revenue_account_code, EXTRACT(MONTH FROM invoice_date)::int, SUM(amount)::text
		FROM ar_invoices
		WHERE status <> 'VOID' AND EXTRACT(YEAR FROM invoice_date) = $1 AND currency = $2
		GROUP BY 2, 3
		UNION ALL
		SELECT 'expense', financial_account_code, EXTRACT(MONTH FROM invoice_date)::int, SUM(amount)::text
		FROM invoices
		WHERE status <> 'CANCELLED' AND EXTRACT(YEAR FROM invoice_date) = $1 AND currency = $2
		GROUP BY 2, 3`, year, currency)
	if err != nil {
		return nil, fmt.Errorf("pnl: monthly totals: %w", err)
	}
	defer rows.Close()

	var out []AccountMonth
	for rows.Next() {
		var am AccountMonth
		var amount string
		if err := rows.Scan(&am.Kind, &am.Code, &am.Month, &amount); err != nil {
			return nil, err
		}
		if am.Amount, err = db.ParseNumeric(amount); err != nil {
			return nil, err
		}
		out = append(out, am)
	}
	return out, rows.Err()
}
