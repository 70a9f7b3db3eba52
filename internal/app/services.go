package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dsd-finance/finance-hub/internal/ap"
	"github.com/dsd-finance/finance-hub/internal/ar"
	"github.com/dsd-finance/finance-hub/internal/csvrows"
	"github.com/dsd-finance/finance-hub/internal/ingest"
	"github.com/dsd-finance/finance-hub/internal/observability"
	"github.com/dsd-finance/finance-hub/internal/platform/cache"
	"github.com/dsd-finance/finance-hub/internal/pnl"
	"github.com/dsd-finance/finance-hub/internal/reconcile"
	"github.com/dsd-finance/finance-hub/internal/stripesync"
)

// PnLCacheNamespace prefixes every cached P&L key.
const PnLCacheNamespace = "finhub:pnl"

// Services holds the domain services shared by the HTTP server and the worker.
type Services struct {
	Rows      *csvrows.Service
	Importer  *ingest.Importer
	AP        *ap.Service
	AR        *ar.Service
	Reconcile *reconcile.Service
	PnL       *pnl.Service
	PnLCache  *cache.Versioned
	Stripe    *stripesync.Syncer
}

// NewServices wires repositories, caches and services. Stripe is nil when no
// secret key is configured.
func NewServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, metrics *observability.Metrics, logger *slog.Logger) *Services {
	pnlCache := cache.NewVersioned(redisClient, PnLCacheNamespace, cfg.PNLCacheTTL)

	rowsRepo := csvrows.NewRepository(pool)
	importer := ingest.NewImporter(rowsRepo, metrics, logger)

	apService := ap.NewService(ap.NewRepository(pool), pnlCache, logger)
	arService := ar.NewService(ar.NewRepository(pool), pnlCache, logger)

	reconcileService := reconcile.NewService(reconcile.Deps{
		Store:   reconcile.NewRepository(pool),
		AP:      apService,
		AR:      arService,
		Locker:  cache.NewLocker(redisClient),
		Cache:   pnlCache,
		Metrics: metrics,
		Logger:  logger,
		Engine:  reconcile.NewEngine(cfg.AmountTolerance(), cfg.ReconcileDateWindowDays),
		LockTTL: cfg.ReconcileLockTTL,
	})

	svc := &Services{
		Rows:      csvrows.NewService(rowsRepo),
		Importer:  importer,
		AP:        apService,
		AR:        arService,
		Reconcile: reconcileService,
		PnL:       pnl.NewService(pnl.NewRepository(pool), pnlCache, logger),
		PnLCache:  pnlCache,
	}
	if cfg.StripeEnabled() {
		svc.Stripe = stripesync.NewSyncer(stripesync.NewAPILister(cfg.StripeSecretKey), importer, logger)
	}
	return svc
}
