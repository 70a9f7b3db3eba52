package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dsd-finance/finance-hub/internal/app"
	jobmetrics "github.com/dsd-finance/finance-hub/internal/jobs"
	"github.com/dsd-finance/finance-hub/internal/observability"
	"github.com/dsd-finance/finance-hub/internal/platform/cache"
	"github.com/dsd-finance/finance-hub/internal/platform/db"
	"github.com/dsd-finance/finance-hub/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())
	services := app.NewServices(cfg, pool, redisClient, metrics, logger)

	handlers := []jobs.TaskHandler{
		{Type: jobs.TaskReconcileRun, Handler: jobs.NewReconcileRunJob(services.Reconcile, logger, jobMetrics).Handle},
		{Type: jobs.TaskPnLWarmup, Handler: jobs.NewPnLWarmupJob(services.PnL, logger, jobMetrics).Handle},
	}
	if services.Stripe != nil {
		stripeJob := jobs.NewStripeSyncJob(services.Stripe, cfg.StripeSyncLookback, logger, jobMetrics)
		handlers = append(handlers, jobs.TaskHandler{Type: jobs.TaskStripeSync, Handler: stripeJob.Handle})
	} else {
		logger.Info("stripe sync disabled, STRIPE_SECRET_KEY not set")
	}

	cron, err := jobs.DefaultCron(services.Stripe != nil, "EUR")
	if err != nil {
		logger.Error("build cron tasks", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    handlers,
		Cron:        cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("starting worker", slog.Int("handlers", len(handlers)), slog.Int("cron", len(cron)))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
