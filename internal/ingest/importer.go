package ingest

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/dsd-finance/finance-hub/internal/csvrows"
	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
)

// Store persists an import and its rows, returning how many rows were new. Rows
// already stored under the same fingerprint gain the custom_data keys they lack.
type Store interface {
	SaveImport(ctx context.Context, imp csvrows.Import, rows []csvrows.Row) (int, error)
}

// Recorder receives import counters.
type Recorder interface {
	RowsImported(source string, n int)
}

// Importer parses exports and stores them idempotently.
type Importer struct {
	store   Store
	parsers map[string]Parser
	metrics Recorder
	logger  *slog.Logger
}

// NewImporter wires the importer with the default parsers. metrics may be nil.
func NewImporter(store Store, metrics Recorder, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		store:   store,
		parsers: DefaultParsers(),
		metrics: metrics,
		logger:  logger,
	}
}

// Import parses r as an export of source and stores its rows.
func (i *Importer) Import(ctx context.Context, rawSource, filename string, r io.Reader) (csvrows.Import, error) {
	source, err := ParseSource(rawSource)
	if err != nil {
		return csvrows.Import{}, err
	}
	parser, ok := i.parsers[source.Family()]
	if !ok {
		return csvrows.Import{}, fmt.Errorf("%w: no parser for %s", httpx.ErrUnsupported, source)
	}
	records, err := parser.Parse(r, source)
	if err != nil {
		return csvrows.Import{}, err
	}
	if len(records) == 0 {
		return csvrows.Import{}, fmt.Errorf("%w: %s export contains no rows", httpx.ErrValidation, source)
	}
	return i.ImportRecords(ctx, source, filename, records)
}

// ImportRecords stores already parsed records under source.
func (i *Importer) ImportRecords(ctx context.Context, source Source, label string, records []Record) (csvrows.Import, error) {
	imp := csvrows.Import{
		ID:        uuid.New(),
		Source:    string(source),
		Filename:  label,
		RowsTotal: len(records),
	}
	if len(records) == 0 {
		return imp, nil
	}

	rows := make([]csvrows.Row, 0, len(records))
	seen := make(map[string]int, len(records))
	for _, rec := range records {
		base := recordKey(source, rec)
		occurrence := seen[base]
		seen[base]++
		rows = append(rows, csvrows.Row{
			Source:      string(source),
			ImportID:    &imp.ID,
			Fingerprint: Fingerprint(base, occurrence),
			Date:        rec.Date,
			Description: rec.Description,
			Amount:      rec.Amount,
			Currency:    rec.Currency,
			Reference:   rec.Reference,
			CustomData:  rec.CustomData,
		})
	}

	inserted, err := i.store.SaveImport(ctx, imp, rows)
	if err != nil {
		return csvrows.Import{}, fmt.Errorf("ingest: save %s import: %w", source, err)
	}
	imp.RowsInserted = inserted
	imp.RowsSkipped = len(rows) - inserted

	if i.metrics != nil {
		i.metrics.RowsImported(string(source), inserted)
	}
	i.logger.Info("import stored",
		slog.String("source", string(source)),
		slog.String("import_id", imp.ID.String()),
		slog.Int("rows", len(rows)),
		slog.Int("inserted", inserted))
	return imp, nil
}

func recordKey(source Source, rec Record) string {
	return strings.Join([]string{
		string(source),
		rec.Date.Format("2006-01-02"),
		rec.Amount.StringFixed(2),
		strings.ToUpper(rec.Currency),
		rec.Description,
		rec.Reference,
	}, "\x1f")
}

// Fingerprint hashes a record key and its occurrence index within one file, so two
// identical lines in the same export stay distinct while a re-import collides.
func Fingerprint(key string, occurrence int) string {
	sum := blake2b.Sum256([]byte(key + "\x1f" + strconv.Itoa(occurrence)))
	return hex.EncodeToString(sum[:])
}
