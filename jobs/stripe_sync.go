package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/dsd-finance/finance-hub/internal/jobs"
	"github.com/dsd-finance/finance-hub/internal/stripesync"
)

// StripeSyncer pulls Stripe history.
type StripeSyncer interface {
	Sync(ctx context.Context, since time.Time) (stripesync.Result, error)
}

// StripeSyncJob imports recent Stripe balance transactions.
type StripeSyncJob struct {
	Syncer   StripeSyncer
	Lookback time.Duration
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewStripeSyncJob constructs the job handler.
func NewStripeSyncJob(syncer StripeSyncer, lookback time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *StripeSyncJob {
	return &StripeSyncJob{
		Syncer:   syncer,
		Lookback: lookback,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the sync.
func (j *StripeSyncJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Syncer == nil {
		return errors.New("stripe sync: dependencies not configured")
	}
	var payload StripeSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Lookback < 0 {
		return asynq.SkipRetry
	}
	lookback := payload.Lookback
	if lookback == 0 {
		lookback = j.Lookback
	}
	if lookback <= 0 {
		lookback = 72 * time.Hour
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskStripeSync)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	since := j.now().Add(-lookback)
	res, err := j.Syncer.Sync(ctx, since)
	if err != nil {
		resultErr = err
		jobLogger(j.Logger, TaskStripeSync).Error("stripe sync", slog.Time("since", since), slog.Any("error", err))
		return resultErr
	}
	metricsOrDefault(j.Metrics).AddItems(TaskStripeSync, res.Import.RowsInserted)
	return resultErr
}

func (j *StripeSyncJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *StripeSyncJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
