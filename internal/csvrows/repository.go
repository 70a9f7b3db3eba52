package csvrows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsd-finance/finance-hub/internal/platform/db"
	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for csv_rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RowColumns is the select list matching ScanRow.
const RowColumns = `id, source, import_id, fingerprint, row_date, description, amount::text,
	currency, reference, custom_data, reconciled, created_at`

// ScanRow reads one row selected with RowColumns.
func ScanRow(row pgx.Row) (Row, error) {
	var r Row
	var amount string
	if err := row.Scan(&r.ID, &r.Source, &r.ImportID, &r.Fingerprint, &r.Date, &r.Description, &amount,
		&r.Currency, &r.Reference, &r.CustomData, &r.Reconciled, &r.CreatedAt); err != nil {
		return Row{}, err
	}
	parsed, err := db.ParseNumeric(amount)
	if err != nil {
		return Row{}, err
	}
	r.Amount = parsed
	r.Currency = strings.TrimSpace(r.Currency)
	return r, nil
}

// List returns one page of rows matching the filter and the total count.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]Row, int, error) {
	where, args := buildWhere(f)
	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM csv_rows"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("csvrows: count: %w", err)
	}

	page := f.Page.Normalize()
	args = append(args, page.PerPage, page.Offset())
	query := fmt.Sprintf("SELECT %s FROM csv_rows%s ORDER BY row_date DESC, id DESC LIMIT $%d OFFSET $%d",
		RowColumns, where, len(args)-1, len(args))
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("csvrows: list: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		row, err := ScanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, row)
	}
	return out, total, rows.Err()
}

func buildWhere(f ListFilter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Source != "" {
		add("source = $%d", f.Source)
	}
	if f.From != nil {
		add("row_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("row_date <= $%d", *f.To)
	}
	if f.Reconciled != nil {
		add("reconciled = $%d", *f.Reconciled)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		add("(description ILIKE '%%' || $%[1]d || '%%' OR reference ILIKE '%%' || $%[1]d || '%%')", s)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Get loads a single row.
func (r *Repository) Get(ctx context.Context, id int64) (Row, error) {
	row, err := ScanRow(r.pool.QueryRow(ctx, "SELECT "+RowColumns+" FROM csv_rows WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, fmt.Errorf("csvrows: row %d: %w", id, httpx.ErrNotFound)
	}
	return row, err
}

// ListImports returns recent imports, optionally for one source.
func (r *Repository) ListImports(ctx context.Context, source string, limit int) ([]Import, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, source, filename, rows_total, rows_inserted, rows_skipped, created_at
		FROM csv_imports
		WHERE ($1 = '' OR source = $1)
		ORDER BY created_at DESC
		LIMIT $2`, source, limit)
	if err != nil {
		return nil, fmt.Errorf("csvrows: list imports: %w", err)
	}
	defer rows.Close()

	var out []Import
	for rows.Next() {
		var imp Import
		if err := rows.Scan(&imp.ID, &imp.Source, &imp.Filename, &imp.RowsTotal, &imp.RowsInserted, &imp.RowsSkipped, &imp.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, imp)
	}
	return out, rows.Err()
}

// SaveImport records the import and inserts its rows in one transaction. Rows whose
// fingerprint already exists are not inserted again; while still unreconciled they
// take on custom_data keys they lack, such as a payout key learned after the first
// import. The number of inserted rows is returned.
func (r *Repository) SaveImport(ctx context.Context, imp Import, rows []Row) (int, error) {
	inserted := 0
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO csv_imports (id, source, filename, rows_total, created_at)
			VALUES ($1, $2, $3, $4, NOW())`, imp.ID, imp.Source, imp.Filename, len(rows)); err != nil {
			return fmt.Errorf("csvrows: insert import: %w", err)
		}

		batch := &pgx.Batch{}
		for _, row := range rows {
			custom := row.CustomData
			if custom == nil {
				custom = map[string]any{}
			}
			batch.Queue(`
				INSERT INTO csv_rows (source, import_id, fingerprint, row_date, description, amount, currency, reference, custom_data)
				VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)
				ON CONFLICT (fingerprint) DO UPDATE
					SET custom_data = csv_rows.custom_data || EXCLUDED.custom_data
					WHERE NOT csv_rows.reconciled
					  AND NOT csv_rows.custom_data @> EXCLUDED.custom_data
				RETURNING (xmax = 0)`,
				row.Source, imp.ID, row.Fingerprint, row.Date, row.Description, row.Amount.String(),
				row.Currency, row.Reference, custom)
		}
		results := tx.SendBatch(ctx, batch)
		for range rows {
			var fresh bool
			err := results.QueryRow().Scan(&fresh)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
			case err != nil:
				_ = results.Close()
				return fmt.Errorf("csvrows: insert row: %w", err)
			case fresh:
				inserted++
			}
		}
		if err := results.Close(); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `UPDATE csv_imports SET rows_inserted = $2, rows_skipped = $3 WHERE id = $1`,
			imp.ID, inserted, len(rows)-inserted)
		return err
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}
