package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/ledger"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/persistence"
)

// Key prefixes for namespacing in Redis
const (
	keyPrefixDocument = "airdrop:snapshot:doc:"
	keyPrefixMeta     = "airdrop:snapshot:meta:"
	keyActiveSnapshot = "airdrop:active:snapshot"
	keySchemaVersion  = "airdrop:metadata:schema_version"

	// Key set for listing operations (Redis doesn't support prefix iteration natively)
	keySetSnapshots = "airdrop:snapshots:index"

	defaultTimeout = 5 * time.Second
)

// RedisPersistence is a shared snapshot store backed by Redis, so several
// proof-serving processes can read the same snapshots.
type RedisPersistence struct {
	client    *redis.Client
	logger    *zap.Logger
	keyPrefix string // Custom prefix for all keys
	mu        sync.RWMutex
	closed    bool
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string
	// Password is the optional Redis password
	Password string
	// DB is the Redis database number (0-15)
	DB int
	// KeyPrefix is an optional custom prefix for all keys (for multi-tenant setups).
	// "myapp:" results in keys like "myapp:airdrop:snapshot:doc:<id>".
	KeyPrefix string
}

// NewRedisPersistence connects to Redis and validates the schema version.
func NewRedisPersistence(cfg *RedisConfig, logger *zap.Logger) (*RedisPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}

	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	rp := &RedisPersistence{
		client:    client,
		logger:    logger,
		keyPrefix: cfg.KeyPrefix,
	}

	if err := rp.initSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Redis persistence initialized", "address", cfg.Address, "db", cfg.DB, "key_prefix", cfg.KeyPrefix)

	return rp, nil
}

// prefixKey adds the custom key prefix (if configured) to a key
func (r *RedisPersistence) prefixKey(key string) string {
	if r.keyPrefix == "" {
		return key
	}
	return r.keyPrefix + key
}

// initSchema initializes or validates the schema version
func (r *RedisPersistence) initSchema(ctx context.Context) error {
	schemaKey := r.prefixKey(keySchemaVersion)

	set, err := r.client.SetNX(ctx, schemaKey, persistence.CurrentSchemaVersion, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}
	if set {
		return nil
	}

	existingVersion, err := r.client.Get(ctx, schemaKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if existingVersion != persistence.CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, persistence.CurrentSchemaVersion)
	}

	return nil
}

// SaveSnapshot writes the document, listing summary and index entry in one
// MULTI/EXEC transaction, watching the document key so a concurrent save of
// the same ID fails instead of leaving a partial write.
func (r *RedisPersistence) SaveSnapshot(snap *ledger.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot save nil Snapshot")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalSnapshot(snap)
	if err != nil {
		return err
	}
	meta, err := persistence.MarshalSnapshotMeta(persistence.MetaFromSnapshot(snap))
	if err != nil {
		return fmt.Errorf("failed to marshal SnapshotMeta: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	docKey := r.prefixKey(keyPrefixDocument + snap.ID)
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, docKey).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return persistence.ErrSnapshotExists
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, docKey, data, 0)
			pipe.Set(ctx, r.prefixKey(keyPrefixMeta+snap.ID), meta, 0)
			pipe.SAdd(ctx, r.prefixKey(keySetSnapshots), snap.ID)
			return nil
		})
		return err
	}, docKey)

	switch {
	case err == nil:
	case errors.Is(err, persistence.ErrSnapshotExists), errors.Is(err, redis.TxFailedErr):
		// TxFailedErr means another writer stored the same ID after our check
		return fmt.Errorf("%w: %s", persistence.ErrSnapshotExists, snap.ID)
	default:
		return fmt.Errorf("failed to save Snapshot: %w", err)
	}

	return nil
}

// LoadSnapshot retrieves and re-verifies a snapshot
func (r *RedisPersistence) LoadSnapshot(id string) (*ledger.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	data, err := r.client.Get(ctx, r.prefixKey(keyPrefixDocument+id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Snapshot: %w", err)
	}

	return persistence.UnmarshalSnapshot(data)
}

// ListSnapshots reads the index set and fetches every summary with MGET
func (r *RedisPersistence) ListSnapshots() ([]*persistence.SnapshotMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	ids, err := r.client.SMembers(ctx, r.prefixKey(keySetSnapshots)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot ids: %w", err)
	}

	metas := make([]*persistence.SnapshotMeta, 0, len(ids))
	if len(ids) == 0 {
		return metas, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.prefixKey(keyPrefixMeta + id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snapshot metadata: %w", err)
	}

	for i, val := range values {
		if val == nil {
			r.logger.Sugar().Warnw("Snapshot indexed without metadata, skipping", "key", keys[i])
			continue
		}

		data, ok := val.(string)
		if !ok {
			r.logger.Sugar().Warnw("Unexpected value type for SnapshotMeta", "key", keys[i])
			continue
		}

		meta, err := persistence.UnmarshalSnapshotMeta([]byte(data))
		if err != nil {
			r.logger.Sugar().Warnw("Failed to unmarshal SnapshotMeta, skipping",
				"key", keys[i], "error", err)
			continue
		}

		metas = append(metas, meta)
	}

	persistence.SortSnapshotMetas(metas)
	return metas, nil
}

// SetActiveSnapshotID points proof serving at a stored snapshot
func (r *RedisPersistence) SetActiveSnapshotID(id string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	exists, err := r.client.Exists(ctx, r.prefixKey(keyPrefixDocument+id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check snapshot: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", persistence.ErrSnapshotNotFound, id)
	}

	if err := r.client.Set(ctx, r.prefixKey(keyActiveSnapshot), id, 0).Err(); err != nil {
		return fmt.Errorf("failed to set active snapshot: %w", err)
	}
	return nil
}

// GetActiveSnapshotID returns the active snapshot ID, "" when unset
func (r *RedisPersistence) GetActiveSnapshotID() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return "", persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	id, err := r.client.Get(ctx, r.prefixKey(keyActiveSnapshot)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil // No active snapshot yet
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active snapshot: %w", err)
	}

	return id, nil
}

// Close shuts down the persistence layer
func (r *RedisPersistence) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil // Already closed, idempotent
	}
	r.closed = true
	r.mu.Unlock()

	if err := r.client.Close(); err != nil {
		return fmt.Errorf("failed to close Redis client: %w", err)
	}

	r.logger.Sugar().Info("Redis persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (r *RedisPersistence) HealthCheck() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	_, err := r.client.Get(ctx, r.prefixKey(keySchemaVersion)).Result()
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
