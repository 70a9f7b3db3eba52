package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReconcileRun runs one reconciliation rule, or every rule when the rule is empty.
	TaskReconcileRun = "reconcile:run"
	// TaskStripeSync pulls recent Stripe balance transactions.
	TaskStripeSync = "stripe:sync"
	// TaskPnLWarmup prebuilds the cached P&L report.
	TaskPnLWarmup = "pnl:warmup"
)

// ReconcileRunPayload selects the rule and currency of a reconciliation run.
type ReconcileRunPayload struct {
	Rule     string `json:"rule"`
	Currency string `json:"currency"`
}

// StripeSyncPayload sets how far back the sync reads. Zero uses the worker default.
type StripeSyncPayload struct {
	Lookback time.Duration `json:"lookback"`
}

// PnLWarmupPayload selects the report to warm. Zero year means the current year.
type PnLWarmupPayload struct {
	Year     int    `json:"year"`
	Currency string `json:"currency"`
}

// NewReconcileRunTask creates a reconciliation task.
func NewReconcileRunTask(rule, currency string) (*asynq.Task, error) {
	return newTask(TaskReconcileRun, ReconcileRunPayload{Rule: rule, Currency: currency})
}

// NewStripeSyncTask creates a Stripe sync task.
func NewStripeSyncTask(lookback time.Duration) (*asynq.Task, error) {
	return newTask(TaskStripeSync, StripeSyncPayload{Lookback: lookback})
}

// NewPnLWarmupTask creates a P&L warmup task.
func NewPnLWarmupTask(year int, currency string) (*asynq.Task, error) {
	return newTask(TaskPnLWarmup, PnLWarmupPayload{Year: year, Currency: currency})
}

func newTask(kind string, payload any) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(kind, body, asynq.Queue(QueueDefault)), nil
}
