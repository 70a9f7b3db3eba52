package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/dsd-finance/finance-hub/internal/ap"
	"github.com/dsd-finance/finance-hub/internal/ar"
	"github.com/dsd-finance/finance-hub/internal/csvrows"
	"github.com/dsd-finance/finance-hub/internal/platform/cache"
	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
	"github.com/dsd-finance/finance-hub/internal/shared"
)

// ErrRunInProgress is returned when another process holds the rule lock.
var ErrRunInProgress = fmt.Errorf("%w: reconciliation run in progress", httpx.ErrConflict)

// Store loads reconciliation inputs and persists matches.
type Store interface {
	UnreconciledRows(ctx context.Context, sources []string, currency string) ([]csvrows.Row, error)
	PayoutRows(ctx context.Context, sources []string, currency string, payoutKey string) ([]csvrows.Row, error)
	UnlinkedPaymentRows(ctx context.Context, sources []string, currency string) ([]csvrows.Row, error)
	GetRow(ctx context.Context, id int64) (csvrows.Row, error)

	SaveMatches(ctx context.Context, matches []Pending) ([]MatchRecord, error)
	GetMatch(ctx context.Context, id int64) (MatchRecord, error)
	DeleteMatch(ctx context.Context, m MatchRecord, providerSources []string) error
	ListMatches(ctx context.Context, f MatchFilter) ([]MatchRecord, int, error)
}

// APInvoices is the accounts payable surface used here.
type APInvoices interface {
	Unreconciled(ctx context.Context, currency string) ([]ap.Invoice, error)
	Get(ctx context.Context, id int64) (ap.Invoice, error)
}

// ARInvoices is the accounts receivable surface used here.
type ARInvoices interface {
	Outstanding(ctx context.Context, currency string) ([]ar.Invoice, error)
	Get(ctx context.Context, id int64) (ar.Invoice, error)
}

// Locker guards concurrent runs of the same rule.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Invalidator drops caches derived from reconciliation state.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Recorder counts persisted matches.
type Recorder interface {
	MatchRecorded(rule, strategy string)
}

// Deps bundles Service collaborators. Locker, Cache and Metrics are optional.
type Deps struct {
	Store   Store
	AP      APInvoices
	AR      ARInvoices
	Locker  Locker
	Cache   Invalidator
	Metrics Recorder
	Logger  *slog.Logger
	Engine  Engine
	LockTTL time.Duration
}

// Service runs reconciliation rules and manages matches.
type Service struct {
	store   Store
	ap      APInvoices
	ar      ARInvoices
	locker  Locker
	cache   Invalidator
	metrics Recorder
	logger  *slog.Logger
	engine  Engine
	lockTTL time.Duration
}

// NewService constructs the service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := deps.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		store:   deps.Store,
		ap:      deps.AP,
		ar:      deps.AR,
		locker:  deps.Locker,
		cache:   deps.Cache,
		metrics: deps.Metrics,
		logger:  logger,
		engine:  deps.Engine,
		lockTTL: ttl,
	}
}

// Run executes rule under its Redis lock. Dry runs report matches without writing.
func (s *Service) Run(ctx context.Context, rule Rule, opts RunOptions) (RunReport, error) {
	if _, err := ParseRule(string(rule)); err != nil {
		return RunReport{}, err
	}
	opts.Currency = strings.ToUpper(strings.TrimSpace(opts.Currency))
	if opts.Currency != "" && len(opts.Currency) != 3 {
		return RunReport{}, fmt.Errorf("%w: currency must be an ISO code", httpx.ErrValidation)
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, shared.ReconcileLockKey(string(rule)), s.lockTTL)
		if errors.Is(err, cache.ErrLockHeld) {
			return RunReport{}, ErrRunInProgress
		}
		if err != nil {
			return RunReport{}, fmt.Errorf("reconcile: acquire lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release reconcile lock", slog.String("rule", string(rule)), slog.Any("error", err))
			}
		}()
	}

	subjects, candidates, err := s.load(ctx, rule, opts.Currency)
	if err != nil {
		return RunReport{}, err
	}
	result := s.engine.Match(subjects, candidates, rule.Strategies())
	report := RunReport{
		Rule:       rule,
		DryRun:     opts.DryRun,
		Currency:   opts.Currency,
		Subjects:   len(subjects),
		Candidates: len(candidates),
		Summary:    result.Summary,
		Matches:    result.Matches,
		Unmatched:  result.UnmatchedSubjects,
	}
	if report.Matches == nil {
		report.Matches = []Match{}
	}
	if opts.DryRun || len(result.Matches) == 0 {
		return report, nil
	}

	pending := make([]Pending, 0, len(result.Matches))
	for _, m := range result.Matches {
		pending = append(pending, pendingFor(rule, m, MatchedBySystem))
	}
	saved, err := s.store.SaveMatches(ctx, pending)
	if err != nil {
		return RunReport{}, fmt.Errorf("reconcile: save %s matches: %w", rule, err)
	}
	report.Persisted = len(saved)
	for _, m := range saved {
		s.record(m.Rule, m.Strategy)
	}
	s.invalidate(ctx)
	s.logger.Info("reconciliation run",
		slog.String("rule", string(rule)),
		slog.String("currency", opts.Currency),
		slog.Int("subjects", report.Subjects),
		slog.Int("matched", report.Persisted))
	return report, nil
}

func (s *Service) load(ctx context.Context, rule Rule, currency string) ([]Item, []Item, error) {
	subjectRows, err := s.store.UnreconciledRows(ctx, rule.SubjectSources(), currency)
	if err != nil {
		return nil, nil, fmt.Errorf("reconcile: load subjects: %w", err)
	}
	switch rule {
	case RuleBankAP:
		invoices, err := s.ap.Unreconciled(ctx, currency)
		if err != nil {
			return nil, nil, fmt.Errorf("reconcile: load ap invoices: %w", err)
		}
		return BankSubjects(subjectRows, true), APCandidates(invoices), nil
	case RuleBankAR:
		invoices, err := s.ar.Outstanding(ctx, currency)
		if err != nil {
			return nil, nil, fmt.Errorf("reconcile: load ar invoices: %w", err)
		}
		return BankSubjects(subjectRows, false), ARCandidates(invoices), nil
	case RuleBankPayout:
		rows, err := s.store.PayoutRows(ctx, ProviderSources(), currency, "")
		if err != nil {
			return nil, nil, fmt.Errorf("reconcile: load payouts: %w", err)
		}
		return BankSubjects(subjectRows, false), PayoutCandidates(rows), nil
	case RuleDealPayment:
		rows, err := s.store.UnlinkedPaymentRows(ctx, ProviderSources(), currency)
		if err != nil {
			return nil, nil, fmt.Errorf("reconcile: load payments: %w", err)
		}
		return DealSubjects(subjectRows), PaymentCandidates(rows), nil
	}
	return nil, nil, fmt.Errorf("%w: rule %s", httpx.ErrUnsupported, rule)
}

// pendingFor derives the rows to flag for a match. Deal links only flag the deal
// row; the provider row stays open for payout reconciliation.
func pendingFor(rule Rule, m Match, matchedBy string) Pending {
	p := Pending{
		MatchRecord: MatchRecord{
			Rule:       rule,
			CSVRowID:   m.Subject.RowIDs[0],
			TargetKind: m.Candidate.Kind,
			TargetRef:  m.Candidate.Ref,
			Strategy:   m.Strategy,
			AmountDiff: m.AmountDiff,
			MatchedBy:  matchedBy,
		},
		PaidAt: m.Subject.Date,
	}
	p.FlagRows = append(p.FlagRows, m.Subject.RowIDs...)
	if m.Candidate.Kind == TargetPayout {
		p.FlagRows = append(p.FlagRows, m.Candidate.RowIDs...)
	}
	return p
}

// ManualMatch links a csv row to a target chosen by a user. Both sides must exist and
// still be open.
func (s *Service) ManualMatch(ctx context.Context, input ManualMatchInput) (MatchRecord, error) {
	if err := shared.ValidateStruct(input); err != nil {
		return MatchRecord{}, err
	}
	rule, err := ParseRule(string(input.Rule))
	if err != nil {
		return MatchRecord{}, fmt.Errorf("%w: unknown rule %q", httpx.ErrValidation, input.Rule)
	}
	if input.TargetKind != "" && input.TargetKind != rule.TargetKind() {
		return MatchRecord{}, fmt.Errorf("%w: rule %s matches %s targets", httpx.ErrValidation, rule, rule.TargetKind())
	}
	row, err := s.store.GetRow(ctx, input.CSVRowID)
	if err != nil {
		return MatchRecord{}, err
	}
	if !slices.Contains(rule.SubjectSources(), row.Source) {
		return MatchRecord{}, fmt.Errorf("%w: row %d from %s cannot be matched by %s", httpx.ErrValidation, row.ID, row.Source, rule)
	}
	if row.Reconciled {
		return MatchRecord{}, fmt.Errorf("%w: row %d is already reconciled", httpx.ErrConflict, row.ID)
	}
	if !rule.AcceptsSubject(row.Amount) {
		return MatchRecord{}, fmt.Errorf("%w: row %d amount %s has the wrong sign for %s", httpx.ErrValidation, row.ID, row.Amount.StringFixed(2), rule)
	}

	subject := rowItem(row, row.Amount)
	if rule == RuleBankAP {
		subject.Amount = row.Amount.Abs()
	}
	target, err := s.manualTarget(ctx, rule, input.TargetRef)
	if err != nil {
		return MatchRecord{}, err
	}
	if !strings.EqualFold(subject.Currency, target.Currency) {
		return MatchRecord{}, fmt.Errorf("%w: currency %s does not match %s", httpx.ErrValidation, subject.Currency, target.Currency)
	}

	matchedBy := input.MatchedBy
	if matchedBy == "" {
		matchedBy = "manual"
	}
	pending := pendingFor(rule, Match{
		Subject:    subject,
		Candidate:  target,
		Strategy:   StrategyManual,
		AmountDiff: subject.Amount.Sub(target.Amount),
	}, matchedBy)
	saved, err := s.store.SaveMatches(ctx, []Pending{pending})
	if err != nil {
		return MatchRecord{}, err
	}
	s.record(rule, StrategyManual)
	s.invalidate(ctx)
	return saved[0], nil
}

func (s *Service) manualTarget(ctx context.Context, rule Rule, ref string) (Item, error) {
	switch rule {
	case RuleBankAP:
		id, err := parseRef(ref)
		if err != nil {
			return Item{}, err
		}
		inv, err := s.ap.Get(ctx, id)
		if err != nil {
			return Item{}, err
		}
		if inv.Reconciled || inv.Status != ap.StatusPending {
			return Item{}, fmt.Errorf("%w: ap invoice %d is not open", httpx.ErrConflict, id)
		}
		return APCandidates([]ap.Invoice{inv})[0], nil
	case RuleBankAR:
		id, err := parseRef(ref)
		if err != nil {
			return Item{}, err
		}
		inv, err := s.ar.Get(ctx, id)
		if err != nil {
			return Item{}, err
		}
		if inv.Reconciled || inv.Status != ar.StatusOpen {
			return Item{}, fmt.Errorf("%w: ar invoice %d is not open", httpx.ErrConflict, id)
		}
		return ARCandidates([]ar.Invoice{inv})[0], nil
	case RuleBankPayout:
		rows, err := s.store.PayoutRows(ctx, ProviderSources(), "", ref)
		if err != nil {
			return Item{}, err
		}
		payouts := PayoutCandidates(rows)
		if len(payouts) == 0 {
			return Item{}, fmt.Errorf("%w: no open payout %q", httpx.ErrNotFound, ref)
		}
		return payouts[0], nil
	default:
		id, err := parseRef(ref)
		if err != nil {
			return Item{}, err
		}
		row, err := s.store.GetRow(ctx, id)
		if err != nil {
			return Item{}, err
		}
		if !slices.Contains(ProviderSources(), row.Source) {
			return Item{}, fmt.Errorf("%w: row %d is not a provider payment", httpx.ErrValidation, id)
		}
		return rowItem(row, row.Amount), nil
	}
}

func parseRef(ref string) (int64, error) {
	id, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: target_ref must be a numeric id", httpx.ErrValidation)
	}
	return id, nil
}

// Unmatch deletes a match and reopens both sides.
func (s *Service) Unmatch(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: invalid match id", httpx.ErrValidation)
	}
	m, err := s.store.GetMatch(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMatch(ctx, m, ProviderSources()); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logger.Info("reconciliation match removed", slog.Int64("match_id", id), slog.String("rule", string(m.Rule)))
	return nil
}

// ListMatches returns a page of persisted matches.
func (s *Service) ListMatches(ctx context.Context, f MatchFilter) ([]MatchRecord, shared.Pagination, error) {
	if f.Rule != "" {
		if _, err := ParseRule(string(f.Rule)); err != nil {
			return nil, shared.Pagination{}, fmt.Errorf("%w: unknown rule %q", httpx.ErrValidation, f.Rule)
		}
	}
	f.Page = f.Page.Normalize()
	matches, total, err := s.store.ListMatches(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if matches == nil {
		matches = []MatchRecord{}
	}
	return matches, shared.NewPagination(f.Page.Page, f.Page.PerPage, total), nil
}

func (s *Service) record(rule Rule, strategy Strategy) {
	if s.metrics != nil {
		s.metrics.MatchRecorded(string(rule), string(strategy))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("invalidate report cache", slog.Any("error", err))
	}
}
