package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fastygo/portal/internal/config"
	"github.com/fastygo/portal/internal/infrastructure/boltdb"
	pgInfra "github.com/fastygo/portal/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/portal/internal/infrastructure/redis"
	"github.com/fastygo/portal/internal/services/lifecycle"
	"github.com/fastygo/portal/repository"
	boltRepo "github.com/fastygo/portal/repository/bolt"
	"github.com/fastygo/portal/repository/memory"
	"github.com/fastygo/portal/repository/postgres"
	redisRepo "github.com/fastygo/portal/repository/redis"
)

// openStorage connects the configured session state backend and registers
// its shutdown hook. A backend that cannot be reached is replaced by the noop
// storage, so sessions keep working without surviving a restart.
func openStorage(ctx context.Context, cfg *config.Config, manager *lifecycle.Manager, logger *zap.Logger) (repository.StateStorage, string) {
	storage, err := connectStorage(ctx, cfg, manager, logger)
	if err != nil {
		logger.Warn("session storage unavailable, state will not be persisted",
			zap.String("driver", cfg.Storage.Driver),
			zap.Error(err))
		return memory.Noop{}, config.DriverNoop
	}
	logger.Info("session storage ready", zap.String("driver", cfg.Storage.Driver))
	return storage, cfg.Storage.Driver
}

func connectStorage(ctx context.Context, cfg *config.Config, manager *lifecycle.Manager, logger *zap.Logger) (repository.StateStorage, error) {
	switch cfg.Storage.Driver {
	case config.DriverBolt:
		store, err := boltdb.Open(cfg.Bolt.Path, cfg.Bolt.Bucket)
		if err != nil {
			return nil, fmt.Errorf("open bolt file: %w", err)
		}
		manager.Register("boltdb", func(context.Context) error {
			return store.Close()
		})
		return boltRepo.NewStateStorage(store), nil

	case config.DriverRedis:
		client, err := redisInfra.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		manager.Register("redis", func(context.Context) error {
			return client.Close()
		})
		return redisRepo.NewStateStorage(client, cfg.Session.Retention), nil

	case config.DriverPostgres:
		if err := pgInfra.RunMigrations(cfg, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		pool, err := pgInfra.NewPool(ctx, cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		manager.Register("postgres", func(context.Context) error {
			pool.Close()
			return nil
		})
		return postgres.NewStateStorage(pool), nil

	case config.DriverMemory:
		return memory.NewStateStorage(), nil
	}
	return memory.Noop{}, nil
}
