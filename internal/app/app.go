// Package app assembles a game.Service from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	s3archive "stratsim/internal/archive/s3"
	"stratsim/internal/config"
	"stratsim/internal/db"
	"stratsim/internal/game"
	"stratsim/internal/notify"
	"stratsim/internal/store/memory"
	"stratsim/internal/store/postgres"
	"stratsim/internal/store/redis"
	"stratsim/internal/store/sqlite"
)

// Runtime owns the service and every connection opened for it.
type Runtime struct {
	Service *game.Service
	closers []func()
}

func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

// Open connects the configured store, lock and round hooks. On error every
// connection already opened is closed.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (rt *Runtime, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	rt = &Runtime{}
	defer func() {
		if err != nil {
			rt.Close()
			rt = nil
		}
	}()

	var redisClient *redis.Client
	redisConn := func() (*redis.Client, error) {
		if redisClient != nil {
			return redisClient, nil
		}
		c, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		redisClient = c
		rt.closers = append(rt.closers, func() { _ = c.Close() })
		return c, nil
	}

	var store game.Store
	switch cfg.Store.Kind {
	case config.StoreMemory:
		store = memory.New()
	case config.StorePostgres:
		pool, err := db.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		pg := postgres.New(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		store = pg
	case config.StoreSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = s.Close() })
		store = s
	case config.StoreRedis:
		c, err := redisConn()
		if err != nil {
			return nil, err
		}
		store = redis.NewStore(c)
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}

	catalog, err := game.LoadCatalog(cfg.Game.CatalogPath)
	if err != nil {
		return nil, err
	}
	opts := []game.Option{game.WithCatalog(catalog), game.WithTuning(cfg.Tuning)}

	if cfg.Store.Lock == "redis" {
		c, err := redisConn()
		if err != nil {
			return nil, err
		}
		opts = append(opts, game.WithLocker(redis.NewLocker(c, cfg.Redis.LockTTL.Duration)))
	}

	var hooks []game.RoundHook
	if cfg.Archive.Enabled {
		a, err := s3archive.New(ctx, cfg.Archive)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, a)
	}
	if cfg.Notify.Enabled {
		d, err := notify.NewDiscord(cfg.Notify)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, d)
	}
	if len(hooks) > 0 {
		opts = append(opts, game.WithHooks(hooks...))
	}

	svc, err := game.NewService(store, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("build game service: %w", err)
	}
	rt.Service = svc
	logger.Info("game service ready",
		"store", cfg.Store.Kind,
		"lock", cfg.Store.Lock,
		"hooks", len(hooks),
		"events", len(catalog.Entries),
	)
	return rt, nil
}
