package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/dsd-finance/finance-hub/internal/jobs"
	"github.com/dsd-finance/finance-hub/internal/pnl"
)

// ReportBuilder builds cached P&L reports.
type ReportBuilder interface {
	Build(ctx context.Context, filter pnl.Filter) (pnl.Report, error)
}

// PnLWarmupJob prebuilds the P&L report so the first request hits the cache.
type PnLWarmupJob struct {
	Builder ReportBuilder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewPnLWarmupJob constructs the job handler.
func NewPnLWarmupJob(builder ReportBuilder, logger *slog.Logger, metrics *jobmetrics.Metrics) *PnLWarmupJob {
	return &PnLWarmupJob{
		Builder: builder,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle warms the requested year, and the previous year during January.
func (j *PnLWarmupJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Builder == nil {
		return errors.New("pnl warmup: dependencies not configured")
	}
	var payload PnLWarmupPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskPnLWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	years := []int{payload.Year}
	if payload.Year == 0 {
		now := j.now()
		years = []int{now.Year()}
		if now.Month() == time.January {
			years = append(years, now.Year()-1)
		}
	}
	for _, year := range years {
		if _, err := j.Builder.Build(ctx, pnl.Filter{Year: year, Currency: payload.Currency}); err != nil {
			resultErr = retryable(err)
			jobLogger(j.Logger, TaskPnLWarmup).Error("warm pnl", slog.Int("year", year), slog.Any("error", err))
			return resultErr
		}
	}
	metricsOrDefault(j.Metrics).AddItems(TaskPnLWarmup, len(years))
	return resultErr
}

func (j *PnLWarmupJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *PnLWarmupJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
