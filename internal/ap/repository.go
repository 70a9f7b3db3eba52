package ap

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

// Repository defines AP data access.
type Repository interface {
	Create(ctx context.Context, inv Invoice) (Invoice, error)
	Get(ctx context.Context, id int64) (Invoice, error)
	List(ctx context.Context, f ListFilter) ([]Invoice, int, error)
	Unreconciled(ctx context.Context, currency string) ([]Invoice, error)
}

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const invoiceColumns = `id, invoice_number, provider_name, COALESCE(bank_account_code, ''), financial_account_code,
	invoice_date, due_date, schedule_date, amount::text, currency, status, paid_at, reconciled, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	var amount, status string
	if err := row.Scan(&inv.ID, &inv.Number, &inv.ProviderName, &inv.BankAccountCode, &inv.FinancialAccountCode,
		&inv.InvoiceDate, &inv.DueDate, &inv.ScheduleDate, &amount, &inv.Currency, &status, &inv.PaidAt,
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

func (r *pgRepository) Create(ctx context.Context, inv Invoice) (Invoice, error) {
	var bankCode *string
	if inv.BankAccountCode != "" {
		bankCode = &inv.BankAccountCode
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO invoices (invoice_number, provider_name, bank_account_code, financial_account_code,
			invoice_date, due_date, schedule_date, amount, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10)
		RETURNING `+invoiceColumns,
		inv.Number, inv.ProviderName, bankCode, inv.FinancialAccountCode,
		inv.InvoiceDate, inv.DueDate, inv.ScheduleDate, inv.Amount.String(), inv.Currency, string(inv.Status))
	created, err := scanInvoice(row)
	if db.IsUniqueViolation(err) {
		return Invoice{}, fmt.Errorf("%w: invoice %s from %s already exists", httpx.ErrConflict, inv.Number, inv.ProviderName)
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("ap: insert invoice: %w", err)
	}
	return created, nil
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, "SELECT "+invoiceColumns+" FROM invoices WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("ap: invoice %d: %w", id, httpx.ErrNotFound)
	}
	return inv, err
}

func (r *pgRepository) List(ctx context.Context, f ListFilter) ([]Invoice, int, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		args = append(args, string(f.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Provider != "" {
		args = append(args, f.Provider)
		clauses = append(clauses, fmt.Sprintf("provider_name ILIKE '%%' || $%d || '%%'", len(args)))
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
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM invoices"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ap: count invoices: %w", err)
	}
	page := f.Page.Normalize()
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf("SELECT %s FROM invoices%s ORDER BY invoice_date DESC, id DESC LIMIT $%d OFFSET $%d",
		invoiceColumns, where, len(args)-1, len(args))
	invoices, err := r.query(ctx, query, args...)
	return invoices, total, err
}

func (r *pgRepository) Unreconciled(ctx context.Context, currency string) ([]Invoice, error) {
	return r.query(ctx, `SELECT `+invoiceColumns+` FROM invoices
		WHERE NOT reconciled AND status = 'PENDING' AND ($1 = '' OR currency = $1)
		ORDER BY COALESCE(schedule_date, due_date), id`, currency)
}

func (r *pgRepository) query(ctx context.Context, sql string, args ...any) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ap: query invoices: %w", err)
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

// MarkPaid flags an invoice as paid and reconciled. q is usually the reconciliation tx.
func MarkPaid(ctx context.Context, q db.Querier, id int64, paidAt time.Time) error {
	tag, err := q.Exec(ctx, `
		UPDATE invoices SET status = 'PAID', paid_at = $2, reconciled = TRUE, updated_at = NOW()
		WHERE id = $1 AND NOT reconciled`, id, paidAt)
	if err != nil {
		return fmt.Errorf("ap: mark invoice %d paid: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: invoice %d is already reconciled", httpx.ErrConflict, id)
	}
	return nil
}

// Reopen reverses MarkPaid.
func Reopen(ctx context.Context, q db.Querier, id int64) error {
	_, err := q.Exec(ctx, `
		UPDATE invoices SET status = 'PENDING', paid_at = NULL, reconciled = FALSE, updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ap: reopen invoice %d: %w", id, err)
	}
	return nil
}
