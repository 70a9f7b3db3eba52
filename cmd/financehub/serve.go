package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/dsd-finance/finance-hub/internal/ap"
	"github.com/dsd-finance/finance-hub/internal/app"
	"github.com/dsd-finance/finance-hub/internal/ar"
	"github.com/dsd-finance/finance-hub/internal/csvrows"
	"github.com/dsd-finance/finance-hub/internal/ingest"
	"github.com/dsd-finance/finance-hub/internal/observability"
	"github.com/dsd-finance/finance-hub/internal/platform/cache"
	"github.com/dsd-finance/finance-hub/internal/platform/db"
	"github.com/dsd-finance/finance-hub/internal/pnl"
	"github.com/dsd-finance/finance-hub/internal/reconcile"
	"github.com/dsd-finance/finance-hub/internal/stripesync"
	"github.com/dsd-finance/finance-hub/jobs"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.InTestMode() {
				slog.Default().Info("test mode detected, skipping runtime startup")
				return nil
			}
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		return err
	}
	logger := app.NewLogger(cfg)

	if cfg.PGMigrateOnStart {
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			return err
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	services := app.NewServices(cfg, pool, redisClient, metrics, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		return err
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	var stripeEnqueuer stripesync.Enqueuer
	if cfg.StripeEnabled() {
		stripeEnqueuer = jobClient
	}

	router := app.NewRouter(app.RouterParams{
		Logger:  logger,
		Config:  cfg,
		Metrics: metrics,
		Checks: map[string]app.HealthCheck{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
		ImportHandler:    ingest.NewHandler(logger, services.Importer, cfg.ImportMaxBytes),
		RowsHandler:      csvrows.NewHandler(logger, services.Rows),
		APHandler:        ap.NewHandler(logger, services.AP),
		ARHandler:        ar.NewHandler(logger, services.AR),
		ReconcileHandler: reconcile.NewHandler(logger, services.Reconcile, jobClient),
		PnLHandler:       pnl.NewHandler(logger, services.PnL),
		StripeHandler:    stripesync.NewHandler(logger, stripeEnqueuer, cfg.StripeSyncLookback),
		JobHandler:       jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("http server", slog.Any("error", err))
		return err
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
		return err
	}
	return nil
}
