package airdrop

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/config"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/persistence"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/persistence/badger"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/persistence/memory"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/persistence/postgres"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/persistence/redis"
)

// OpenStore creates the snapshot store selected by cfg and checks it is reachable
func OpenStore(cfg config.PersistenceConfig, l *zap.Logger) (persistence.ISnapshotPersistence, error) {
	var (
		store persistence.ISnapshotPersistence
		err   error
	)

	switch cfg.Type {
	case config.PersistenceTypeMemory, "":
		store = memory.NewMemoryPersistence()
	case config.PersistenceTypeBadger:
		store, err = badger.NewBadgerPersistence(cfg.DataPath, l)
	case config.PersistenceTypeRedis:
		store, err = redis.NewRedisPersistence(&redis.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		}, l)
	case config.PersistenceTypePostgres:
		store, err = postgres.NewPostgresPersistence(&postgres.PostgresConfig{
			DSN:    cfg.Postgres.DSN,
			Schema: cfg.Postgres.Schema,
		}, l)
	default:
		return nil, fmt.Errorf("unsupported persistence type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s persistence: %w", cfg.Type, err)
	}

	if err := store.HealthCheck(); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%s persistence health check failed: %w", cfg.Type, err)
	}

	l.Sugar().Infow("Opened snapshot store", "type", cfg.Type)
	return store, nil
}
