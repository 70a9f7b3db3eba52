package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/dsd-finance/finance-hub/internal/jobs"
	"github.com/dsd-finance/finance-hub/internal/reconcile"
)

// Reconciler runs reconciliation rules.
type Reconciler interface {
	Run(ctx context.Context, rule reconcile.Rule, opts reconcile.RunOptions) (reconcile.RunReport, error)
}

// ReconcileRunJob executes reconciliation rules from the queue.
type ReconcileRunJob struct {
	Service Reconciler
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewReconcileRunJob constructs the job handler.
func NewReconcileRunJob(service Reconciler, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReconcileRunJob {
	return &ReconcileRunJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes the reconcile run job. A rule already running elsewhere is skipped.
func (j *ReconcileRunJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("reconcile run: dependencies not configured")
	}
	var payload ReconcileRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	rules := reconcile.Rules()
	if payload.Rule != "" {
		rule, err := reconcile.ParseRule(payload.Rule)
		if err != nil {
			j.log().Warn("unknown rule", slog.String("rule", payload.Rule))
			return asynq.SkipRetry
		}
		rules = []reconcile.Rule{rule}
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskReconcileRun)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	for _, rule := range rules {
		report, err := j.Service.Run(ctx, rule, reconcile.RunOptions{Currency: payload.Currency})
		if errors.Is(err, reconcile.ErrRunInProgress) {
			j.log().Info("reconcile run skipped, lock held", slog.String("rule", string(rule)))
			continue
		}
		if err != nil {
			resultErr = retryable(err)
			j.log().Error("reconcile run", slog.String("rule", string(rule)), slog.Any("error", err))
			return resultErr
		}
		metricsOrDefault(j.Metrics).AddItems(TaskReconcileRun, report.Persisted)
	}
	return resultErr
}

func (j *ReconcileRunJob) log() *slog.Logger {
	return jobLogger(j.Logger, TaskReconcileRun)
}
