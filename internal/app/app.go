// Package app wires the application: configuration, durable store
// connection, cache tiers, version graph and the sync coordinator.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/easel-ai/easel/db"
	"github.com/easel-ai/easel/internal/cache"
	"github.com/easel-ai/easel/internal/config"
	"github.com/easel-ai/easel/internal/graph"
	"github.com/easel-ai/easel/internal/remote"
	"github.com/easel-ai/easel/internal/sync"
)

// App is the application container. Components are exported so commands
// and tests can reach them directly.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool        *pgxpool.Pool
	Graph       *graph.Store
	Cache       *cache.TwoTier
	Remote      *remote.Postgres
	Coordinator *sync.Coordinator
}

// New builds the full application: runs migrations, connects the
// durable store, opens both cache tiers and starts the coordinator.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	connURL := cfg.PostgresURL()
	if err := db.Migrate(connURL, logger); err != nil {
		return nil, fmt.Errorf("migrating durable store: %w", err)
	}

	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("connecting durable store: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging durable store: %w", err)
	}

	tiers, err := cache.New(cache.Config{
		L1MaxEntries: cfg.L1MaxEntries,
		L1MaxBytes:   cfg.L1MaxBytes,
		DefaultTTL:   time.Duration(cfg.CacheTTLSeconds) * time.Second,
		Path:         cfg.CacheDBPath,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	store := graph.NewStore(logger)
	client := remote.NewPostgres(pool, logger)
	coordinator := sync.NewCoordinator(store, client, tiers, sync.Config{
		QueueSize: cfg.SyncQueueSize,
		PushRate:  cfg.SyncPushRate,
		PushBurst: cfg.SyncPushBurst,
	}, logger)

	logger.Info("application initialized",
		"postgres_host", cfg.PostgresHost,
		"cache_db_path", cfg.CacheDBPath,
		"sync_queue_size", cfg.SyncQueueSize)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Pool:        pool,
		Graph:       store,
		Cache:       tiers,
		Remote:      client,
		Coordinator: coordinator,
	}, nil
}

// Close shuts the application down in dependency order: the coordinator
// drains its queue first so pending pushes still reach the pool.
func (a *App) Close() error {
	a.Logger.Info("shutting down")

	if a.Coordinator != nil {
		a.Coordinator.Close()
	}

	var err error
	if a.Cache != nil {
		err = a.Cache.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return err
}
