package ar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsd-finance/finance-hub/internal/platform/db"
	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
)

// RepositoryPort defines data access methods for AR.
type RepositoryPort interface {
	Create(ctx context.Context, inv Invoice) (Invoice, error)
	Get(ctx context.Context, id int64) (Invoice, error)
	List(ctx context.Context, f ListFilter) ([]Invoice, int, error)
	Outstanding(ctx context.Context, currency string) ([]Invoice, error)
}

// Repository persists AR invoices in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `id, invoice_number, customer_name, COALESCE(customer_email, ''), COALESCE(order_id, ''),
	invoice_date, due_date, amount::text, currency, revenue_account_code, status, paid_at, reconciled,
	created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var amount, status string
	if err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerName, &inv.CustomerEmail, &inv.OrderID,
		&inv.InvoiceDate, &inv.DueDate, &amount, &inv.Currency, &inv.RevenueAccountCode, &status, &inv.PaidAt,
		&inv.Reconciled, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return Invoice{}, err
	}
	parsed, err := db.ParseNumeric(amount)
	if err != nil {
		return Invoice{}, err
	}
	inv.Amount = parsed
	inv.Status = Status(status)
	inv.Currency = strings.TrimSpace(inv.Currency)
	return inv, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create inserts an invoice; a duplicate number maps to ErrConflict.
func (r *Repository) Create(ctx context.Context, inv Invoice) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO ar_invoices (invoice_number, customer_name, customer_email, order_id, invoice_date,
			due_date, amount, currency, revenue_account_code, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10)
		RETURNING `+invoiceColumns,
		inv.Number, inv.CustomerName, nullable(inv.CustomerEmail), nullable(inv.OrderID), inv.InvoiceDate,
		inv.DueDate, inv.Amount.String(), inv.Currency, inv.RevenueAccountCode, string(inv.Status))
	created, err := scanInvoice(row)
	if db.IsUniqueViolation(err) {
		return Invoice{}, fmt.Errorf("%w: invoice %s already exists", httpx.ErrConflict, inv.Number)
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("ar: insert invoice: %w", err)
	}
	return created, nil
}

// Get loads one invoice.
func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, "SELECT "+invoiceColumns+" FROM ar_invoices WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("ar: invoice %d: %w", id, httpx.ErrNotFound)
	}
	return inv, err
}

// List returns a page of invoices and the total count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Invoice, int, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Customer != "" {
		args = append(args, f.Customer)
		clauses = append(clauses, fmt.Sprintf("(customer_name ILIKE '%%' || $%[1]d || '%%' OR customer_email ILIKE '%%' || $%[1]d || '%%')", len(args)))
	}
	if f.Reconciled != nil {
		args = append(args, *f.Reconciled)
		clauses = append(clauses, fmt.Sprintf("reconciled = $%d", len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM ar_invoices"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ar: count invoices: %w", err)
	}
	page := f.Page.Normalize()
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf("SELECT %s FROM ar_invoices%s ORDER BY invoice_date DESC, id DESC LIMIT $%d OFFSET $%d",
		invoiceColumns, where, len(args)-1, len(args))
	invoices, err := r.query(ctx, query, args...)
	return invoices, total, err
}

// Outstanding returns open, unreconciled invoices ordered by due date.
func (r *Repository) Outstanding(ctx context.Context, currency string) ([]Invoice, error) {
	return r.query(ctx, `SELECT `+invoiceColumns+` FROM ar_invoices
		WHERE NOT reconciled AND status = 'OPEN' AND ($1 = '' OR currency = $1)
		ORDER BY due_date, id`, currency)
}

func (r *Repository) query(ctx context.Context, sql string, args ...any) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ar: query invoices: %w", err)
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

// MarkPaid flags an invoice as paid and reconciled inside the caller's transaction.
func MarkPaid(ctx context.Context, q db.Querier, id int64, paidAt time.Time) error {
	tag, err := q.Exec(ctx, `
		UPDATE ar_invoices SET status = 'PAID', paid_at = $2, reconciled = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT reconciled`, id, paidAt)
	if err != nil {
		return fmt.Errorf("ar: mark invoice %d paid: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice %d is already reconciled", httpx.ErrConflict, id)
	}
	return nil
}

// Reopen reverses MarkPaid.
func Reopen(ctx context.Context, q db.Querier, id int64) error {
	_, err := q.Exec(ctx, `
		UPDATE ar_invoices SET status = 'OPEN', paid_at = NULL, reconciled = FALSE, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ar: reopen invoice %d: %w", id, err)
	}
	return nil
}
