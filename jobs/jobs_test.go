package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/dsd-finance/finance-hub/internal/jobs"
	"github.com/dsd-finance/finance-hub/internal/platform/httpx"
	"github.com/dsd-finance/finance-hub/internal/pnl"
	"github.com/dsd-finance/finance-hub/internal/reconcile"
	"github.com/dsd-finance/finance-hub/internal/stripesync"
)

func testMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

type fakeReconciler struct {
	runs []reconcile.Rule
	busy map[reconcile.Rule]bool
	err  error
}

func (f *fakeReconciler) Run(_ context.Context, rule reconcile.Rule, opts reconcile.RunOptions) (reconcile.RunReport, error) {
	f.runs = append(f.runs, rule)
	if f.busy[rule] {
		return reconcile.RunReport{}, reconcile.ErrRunInProgress
	}
	if f.err != nil {
		return reconcile.RunReport{}, f.err
	}
	return reconcile.RunReport{Rule: rule, Currency: opts.Currency, Persisted: 2}, nil
}

func TestReconcileRunJobRunsAllRulesAndSkipsLocked(t *testing.T) {
	rec := &fakeReconciler{busy: map[reconcile.Rule]bool{reconcile.RuleBankAP: true}}
	job := NewReconcileRunJob(rec, slog.Default(), testMetrics())
	task, err := NewReconcileRunTask("", "EUR")
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, reconcile.Rules(), rec.runs)
}

func TestReconcileRunJobSingleRule(t *testing.T) {
	rec := &fakeReconciler{}
	job := NewReconcileRunJob(rec, nil, testMetrics())
	task, err := NewReconcileRunTask("bank-ar", "")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []reconcile.Rule{reconcile.RuleBankAR}, rec.runs)
}

func TestReconcileRunJobRejectsBadInput(t *testing.T) {
	job := NewReconcileRunJob(&fakeReconciler{}, nil, testMetrics())
	err := job.Handle(context.Background(), asynq.NewTask(TaskReconcileRun, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	task, _ := NewReconcileRunTask("bank-xx", "")
	require.ErrorIs(t, job.Handle(context.Background(), task), asynq.SkipRetry)

	bad := &fakeReconciler{err: fmt.Errorf("%w: currency must be an ISO code", httpx.ErrValidation)}
	task, _ = NewReconcileRunTask("bank-ap", "EURO")
	err = NewReconcileRunJob(bad, nil, testMetrics()).Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestReconcileRunJobRetriesStoreErrors(t *testing.T) {
	boom := errors.New("db down")
	task, _ := NewReconcileRunTask("bank-ap", "")
	err := NewReconcileRunJob(&fakeReconciler{err: boom}, nil, testMetrics()).Handle(context.Background(), task)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

type fakeSyncer struct {
	since time.Time
}

func (f *fakeSyncer) Sync(_ context.Context, since time.Time) (stripesync.Result, error) {
	f.since = since
	return stripesync.Result{Fetched: 1, Mapped: 1}, nil
}

func TestStripeSyncJobUsesLookback(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	syncer := &fakeSyncer{}
	job := NewStripeSyncJob(syncer, 72*time.Hour, slog.Default(), testMetrics())
	job.WithClock(func() time.Time { return now })

	task, err := NewStripeSyncTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, now.Add(-72*time.Hour), syncer.since)

	task, err = NewStripeSyncTask(time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, now.Add(-time.Hour), syncer.since)

	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskStripeSync, []byte("nope"))), asynq.SkipRetry)
}

type fakeBuilder struct {
	filters []pnl.Filter
}

func (f *fakeBuilder) Build(_ context.Context, filter pnl.Filter) (pnl.Report, error) {
	f.filters = append(f.filters, filter)
	return pnl.Report{Year: filter.Year}, nil
}

func TestPnLWarmupJobWarmsPreviousYearInJanuary(t *testing.T) {
	builder := &fakeBuilder{}
	job := NewPnLWarmupJob(builder, nil, testMetrics())
	job.WithClock(func() time.Time { return time.Date(2025, 1, 10, 2, 30, 0, 0, time.UTC) })

	task, err := NewPnLWarmupTask(0, "EUR")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []pnl.Filter{{Year: 2025, Currency: "EUR"}, {Year: 2024, Currency: "EUR"}}, builder.filters)

	builder.filters = nil
	task, _ = NewPnLWarmupTask(2023, "USD")
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, []pnl.Filter{{Year: 2023, Currency: "USD"}}, builder.filters)
}

func TestTaskPayloads(t *testing.T) {
	task, err := NewReconcileRunTask("deal-payment", "EUR")
	require.NoError(t, err)
	require.Equal(t, TaskReconcileRun, task.Type())
	var payload ReconcileRunPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, ReconcileRunPayload{Rule: "deal-payment", Currency: "EUR"}, payload)
}

func TestDefaultCron(t *testing.T) {
	entries, err := DefaultCron(true, "EUR")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "0 * * * *", entries[0].Spec)
	require.Equal(t, TaskStripeSync, entries[0].Task.Type())
	require.Equal(t, "0 2 * * *", entries[1].Spec)
	require.Equal(t, TaskReconcileRun, entries[1].Task.Type())
	require.Equal(t, "30 2 * * *", entries[2].Spec)
	require.Equal(t, TaskPnLWarmup, entries[2].Task.Type())

	entries, err = DefaultCron(false, "EUR")
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestClientRejectsUnknownRule(t *testing.T) {
	client, err := NewClient(asynq.RedisClientOpt{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer client.Close()
	_, err = client.EnqueueReconcile(context.Background(), "nope", "")
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return f.info, f.err
}

func TestHealthHandler(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Size: 4, Pending: 3, Retry: 1}}, slog.Default()).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"pending":3`)
	require.Contains(t, rec.Body.String(), `"retry":1`)

	r = chi.NewRouter()
	NewHandler(fakeInspector{err: errors.New("redis down")}, slog.Default()).MountRoutes(r)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	r = chi.NewRouter()
	NewHandler(nil, slog.Default()).MountRoutes(r)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
