package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dsd-finance/finance-hub/internal/ap"
	"github.com/dsd-finance/finance-hub/internal/ar"
	"github.com/dsd-finance/finance-hub/internal/csvrows"
	"github.com/dsd-finance/finance-hub/internal/platform/db"
	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
)

var _ Store = (*Repository)(nil)

// Repository is the Postgres Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UnreconciledRows returns open rows from sources, oldest first.
func (r *Repository) UnreconciledRows(ctx context.Context, sources []string, currency string) ([]csvrows.Row, error) {
	return r.rows(ctx, `SELECT `+csvrows.RowColumns+` FROM csv_rows
		WHERE NOT reconciled AND source = ANY($1) AND ($2 = '' OR currency = $2)
		ORDER BY row_date, id`, sources, currency)
}

// PayoutRows returns open provider rows carrying a payout key, optionally one key.
func (r *Repository) PayoutRows(ctx context.Context, sources []string, currency, payoutKey string) ([]csvrows.Row, error) {
	return r.rows(ctx, `SELECT `+csvrows.RowColumns+` FROM csv_rows
		WHERE NOT reconciled AND source = ANY($1) AND ($2 = '' OR currency = $2)
			AND custom_data ->> 'payout_key' IS NOT NULL
			AND ($3 = '' OR custom_data ->> 'payout_key' = $3)
		ORDER BY row_date, id`, sources, currency, payoutKey)
}

// UnlinkedPaymentRows returns provider rows not yet linked to a deal.
func (r *Repository) UnlinkedPaymentRows(ctx context.Context, sources []string, currency string) ([]csvrows.Row, error) {
	return r.rows(ctx, `SELECT `+csvrows.RowColumns+` FROM csv_rows c
		WHERE c.source = ANY($1) AND ($2 = '' OR c.currency = $2)
			AND NOT EXISTS (
				SELECT 1 FROM reconciliation_matches m
				WHERE m.rule = $3 AND m.target_kind = $4 AND m.target_ref = c.id::text)
		ORDER BY c.row_date, c.id`, sources, currency, string(RuleDealPayment), TargetCSVRow)
}

// GetRow loads one csv row.
func (r *Repository) GetRow(ctx context.Context, id int64) (csvrows.Row, error) {
	row, err := csvrows.ScanRow(r.pool.QueryRow(ctx, `SELECT `+csvrows.RowColumns+` FROM csv_rows WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return csvrows.Row{}, fmt.Errorf("reconcile: row %d: %w", id, httpx.ErrNotFound)
	}
	return row, err
}

func (r *Repository) rows(ctx context.Context, sql string, args ...any) ([]csvrows.Row, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []csvrows.Row
	for rows.Next() {
		row, err := csvrows.ScanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const matchColumns = `id, rule, csv_row_id, target_kind, target_ref, strategy, amount_diff::text, matched_by, created_at`

func scanMatch(row pgx.Row) (MatchRecord, error) {
	var m MatchRecord
	var rule, strategy, diff string
	if err := row.Scan(&m.ID, &rule, &m.CSVRowID, &m.TargetKind, &m.TargetRef, &strategy, &diff, &m.MatchedBy, &m.CreatedAt); err != nil {
		return MatchRecord{}, err
	}
	parsed, err := db.ParseNumeric(diff)
	if err != nil {
		return MatchRecord{}, err
	}
	m.Rule, m.Strategy, m.AmountDiff = Rule(rule), Strategy(strategy), parsed
	return m, nil
}

// SaveMatches writes every match and its side effects in one transaction. Any
// conflict aborts the whole batch, including rows another rule or a manual match
// reconciled after they were loaded.
func (r *Repository) SaveMatches(ctx context.Context, matches []Pending) ([]MatchRecord, error) {
	saved := make([]MatchRecord, 0, len(matches))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, p := range matches {
			m, err := scanMatch(tx.QueryRow(ctx, `
				INSERT INTO reconciliation_matches (rule, csv_row_id, target_kind, target_ref, strategy, amount_diff, matched_by)
				VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)
				RETURNING `+matchColumns,
				string(p.Rule), p.CSVRowID, p.TargetKind, p.TargetRef, string(p.Strategy), p.AmountDiff.Round(2).String(), p.MatchedBy))
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("%w: row %d or %s %s already matched under %s", httpx.ErrConflict, p.CSVRowID, p.TargetKind, p.TargetRef, p.Rule)
			}
			if err != nil {
				return fmt.Errorf("insert match: %w", err)
			}
			if len(p.FlagRows) > 0 {
				tag, err := tx.Exec(ctx, `UPDATE csv_rows SET reconciled = TRUE WHERE id = ANY($1) AND NOT reconciled`, p.FlagRows)
				if err != nil {
					return fmt.Errorf("flag rows: %w", err)
				}
				if tag.RowsAffected() != int64(len(p.FlagRows)) {
					return fmt.Errorf("%w: rows %v are already reconciled", httpx.ErrConflict, p.FlagRows)
				}
			}
			if err := markTarget(ctx, tx, p); err != nil {
				return err
			}
			saved = append(saved, m)
		}
		return nil
	})
	if db.IsSerializationFailure(err) {
		return nil, fmt.Errorf("%w: concurrent reconciliation: %w", httpx.ErrConflict, err)
	}
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func markTarget(ctx context.Context, tx pgx.Tx, p Pending) error {
	switch p.TargetKind {
	case TargetAPInvoice, TargetARInvoice:
		id, err := strconv.ParseInt(p.TargetRef, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: invoice ref %q", httpx.ErrValidation, p.TargetRef)
		}
		if p.TargetKind == TargetAPInvoice {
			return ap.MarkPaid(ctx, tx, id, p.PaidAt)
		}
		return ar.MarkPaid(ctx, tx, id, p.PaidAt)
	}
	return nil
}

// GetMatch loads one match.
func (r *Repository) GetMatch(ctx context.Context, id int64) (MatchRecord, error) {
	m, err := scanMatch(r.pool.QueryRow(ctx, `SELECT `+matchColumns+` FROM reconciliation_matches WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return MatchRecord{}, fmt.Errorf("reconcile: match %d: %w", id, httpx.ErrNotFound)
	}
	return m, err
}

// DeleteMatch removes m and reverses the flags SaveMatches applied.
func (r *Repository) DeleteMatch(ctx context.Context, m MatchRecord, providerSources []string) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM reconciliation_matches WHERE id = $1`, m.ID)
		if err != nil {
			return fmt.Errorf("delete match: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("reconcile: match %d: %w", m.ID, httpx.ErrNotFound)
		}
		if _, err := tx.Exec(ctx, `UPDATE csv_rows SET reconciled = FALSE WHERE id = $1`, m.CSVRowID); err != nil {
			return fmt.Errorf("unflag row: %w", err)
		}
		switch m.TargetKind {
		case TargetPayout:
			_, err = tx.Exec(ctx, `UPDATE csv_rows SET reconciled = FALSE
				WHERE source = ANY($1) AND custom_data ->> 'payout_key' = $2`, providerSources, m.TargetRef)
		case TargetAPInvoice, TargetARInvoice:
			id, perr := strconv.ParseInt(m.TargetRef, 10, 64)
			if perr != nil {
				return fmt.Errorf("%w: invoice ref %q", httpx.ErrValidation, m.TargetRef)
			}
			if m.TargetKind == TargetAPInvoice {
				err = ap.Reopen(ctx, tx, id)
			} else {
				err = ar.Reopen(ctx, tx, id)
			}
		}
		return err
	})
}

// ListMatches returns a page of matches, newest first.
func (r *Repository) ListMatches(ctx context.Context, f MatchFilter) ([]MatchRecord, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reconciliation_matches WHERE ($1 = '' OR rule = $1)`,
		string(f.Rule)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("reconcile: count matches: %w", err)
	}
	page := f.Page.Normalize()
	rows, err := r.pool.Query(ctx, `SELECT `+matchColumns+` FROM reconciliation_matches
		WHERE ($1 = '' OR rule = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, string(f.Rule), page.PerPage, page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("reconcile: list matches: %w", err)
	}
	defer rows.Close()
	var out []MatchRecord
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}
