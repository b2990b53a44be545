// Package app is the composition root shared by the server and the worker.
package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"fleetledger/internal/config"
	"fleetledger/internal/domain/fuelcards"
	"fleetledger/internal/domain/locations"
	"fleetledger/internal/domain/stock"
	"fleetledger/internal/domain/topup"
	"fleetledger/internal/infrastructure/cache"
	"fleetledger/internal/infrastructure/http/v1/handlers"
	"fleetledger/internal/infrastructure/storage/postgres"
	"fleetledger/internal/infrastructure/storage/postgres/ledger_repo"
	"fleetledger/internal/infrastructure/storage/postgres/topup_repo"
	"fleetledger/pkg/logger"
)

// App holds the wired ledger services.
type App struct {
	Config    *config.Config
	Log       *logger.Logger
	Pool      *postgres.Pool
	TxManager *postgres.TxManager
	Redis     *redis.Client // nil without REDIS_URL

	Registry     *locations.Registry
	Balances     *stock.BalanceEngine
	Cached       *stock.CachedBalances
	Movements    *stock.MovementService
	Storno       *stock.StornoService
	Rules        *topup.RuleService
	Engine       *topup.Engine
	Recalculator *fuelcards.Recalculator
	Outbox       *postgres.OutboxPublisher
}

// New connects to Postgres (and Redis when configured) and wires the services.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	txm := postgres.NewTxManager(pool).WithStatementTimeout(cfg.DBStmtTimeout)

	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, txm); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("schema migrated")
	}

	a := &App{Config: cfg, Log: log, Pool: pool, TxManager: txm}

	var balanceCache stock.BalanceCache = cache.Nop{}
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.Redis = rdb
		balanceCache = cache.NewBalanceCache(rdb, cfg.BalanceCacheTTL)
	} else {
		log.Warn("REDIS_URL not set, current balances are read from the ledger")
	}

	audit, err := postgres.NewAuditStore(txm)
	if err != nil {
		a.Close()
		return nil, err
	}

	movementRepo := ledger_repo.NewMovementRepo(txm)
	locationRepo := ledger_repo.NewLocationRepo(txm)
	directory := ledger_repo.NewDirectory(txm)
	topupRepo := topup_repo.NewRepo(txm)

	a.Registry = locations.NewRegistry(locationRepo, directory, txm)
	a.Balances = stock.NewBalanceEngine(movementRepo)
	a.Cached = stock.NewCachedBalances(a.Balances, balanceCache)
	a.Movements = stock.NewMovementService(movementRepo, a.Registry, txm)
	a.Storno = stock.NewStornoService(movementRepo, a.Movements, txm, audit)
	a.Rules = topup.NewRuleService(topupRepo, a.Registry)
	a.Engine = topup.NewEngine(topupRepo, a.Registry, a.Balances, a.Movements, txm, postgres.NewAdvisoryLocker(txm))
	a.Recalculator = fuelcards.NewRecalculator(directory, locationRepo, a.Balances)
	a.Outbox = postgres.NewOutboxPublisher(txm)

	hooks := a.Movements.Hooks()
	hooks.OnAfterPost(a.Outbox.MovementPosted)
	hooks.OnAfterVoid(a.Outbox.MovementVoided)
	hooks.OnAfterPost(a.Cached.Invalidate)
	hooks.OnAfterVoid(a.Cached.Invalidate)

	return a, nil
}

// HealthChecks returns the readiness checks of the wired dependencies.
func (a *App) HealthChecks() map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{
		"database": a.Pool.Ready,
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

// Close releases connections.
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Log.Warnw("close redis", "error", err)
		}
	}
	a.Pool.Close()
}
