package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/ledger"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/persistence"
)

// Key prefixes for namespacing
const (
	keyPrefixDocument     = "snapshot:doc:"
	keyPrefixMeta         = "snapshot:meta:"
	keyActiveSnapshot     = "active:snapshot"
	keySchemaVersion      = "metadata:schema_version"
	defaultGCInterval     = 5 * time.Minute
	defaultGCDiscardRatio = 0.5
)

// BadgerPersistence is a durable snapshot store using Badger.
// Provides disk-based storage with ACID guarantees.
type BadgerPersistence struct {
	db       *badgerdb.DB
	logger   *zap.Logger
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
}

// NewBadgerPersistence opens (or creates) a Badger-backed store at dataPath.
// SyncWrites is enabled, and a background goroutine runs value log GC.
func NewBadgerPersistence(dataPath string, logger *zap.Logger) (*BadgerPersistence, error) {
	absPath, err := filepath.Abs(dataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	opts := badgerdb.DefaultOptions(absPath)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.SyncWrites = true
	opts.CompactL0OnClose = true
	opts.NumVersionsToKeep = 1

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database at %s: %w", absPath, err)
	}

	bp := &BadgerPersistence{
		db:     db,
		logger: logger,
	}

	if err := bp.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	bp.gcCancel = cancel
	bp.gcWg.Add(1)
	go bp.runGC(ctx, defaultGCInterval)

	logger.Sugar().Infow("Badger persistence initialized", "path", absPath)

	return bp, nil
}

// initSchema initializes or validates the schema version
func (b *BadgerPersistence) initSchema() error {
	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Set([]byte(keySchemaVersion), []byte(persistence.CurrentSchemaVersion))
		}
		if err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		var existingVersion string
		err = item.Value(func(val []byte) error {
			existingVersion = string(val)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to read schema version value: %w", err)
		}

		if existingVersion != persistence.CurrentSchemaVersion {
			return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, persistence.CurrentSchemaVersion)
		}

		return nil
	})
}

// runGC runs periodic value log garbage collection until ctx is cancelled
func (b *BadgerPersistence) runGC(ctx context.Context, interval time.Duration) {
	defer b.gcWg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := b.db.RunValueLogGC(defaultGCDiscardRatio)
			if err != nil && !errors.Is(err, badgerdb.ErrNoRewrite) {
				b.logger.Sugar().Warnw("Badger GC error", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// SaveSnapshot stores the ledger document and its listing summary in one transaction.
func (b *BadgerPersistence) SaveSnapshot(snap *ledger.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot save nil Snapshot")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
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

	docKey := []byte(keyPrefixDocument + snap.ID)
	return b.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(docKey)
		if err == nil {
			return fmt.Errorf("%w: %s", persistence.ErrSnapshotExists, snap.ID)
		}
		if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("failed to check existing snapshot: %w", err)
		}

		if err := txn.Set(docKey, data); err != nil {
			return err
		}
		return txn.Set([]byte(keyPrefixMeta+snap.ID), meta)
	})
}

// LoadSnapshot retrieves and re-verifies a snapshot
func (b *BadgerPersistence) LoadSnapshot(id string) (*ledger.Snapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	var data []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyPrefixDocument + id))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil // Not found is not an error
		}
		if err != nil {
			return err
		}

		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load Snapshot: %w", err)
	}

	if data == nil {
		return nil, nil
	}

	return persistence.UnmarshalSnapshot(data)
}

// ListSnapshots iterates the meta prefix and returns summaries ordered by round
func (b *BadgerPersistence) ListSnapshots() ([]*persistence.SnapshotMeta, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, persistence.ErrClosed
	}

	metas := make([]*persistence.SnapshotMeta, 0)

	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefixMeta)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read value: %w", err)
			}

			meta, err := persistence.UnmarshalSnapshotMeta(data)
			if err != nil {
				b.logger.Sugar().Warnw("Failed to unmarshal SnapshotMeta, skipping",
					"key", string(item.Key()), "error", err)
				continue
			}

			metas = append(metas, meta)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	persistence.SortSnapshotMetas(metas)
	return metas, nil
}

// SetActiveSnapshotID points proof serving at a stored snapshot
func (b *BadgerPersistence) SetActiveSnapshotID(id string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.Update(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keyPrefixDocument + id))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", persistence.ErrSnapshotNotFound, id)
		}
		if err != nil {
			return err
		}
		return txn.Set([]byte(keyActiveSnapshot), []byte(id))
	})
}

// GetActiveSnapshotID returns the active snapshot ID, "" when unset
func (b *BadgerPersistence) GetActiveSnapshotID() (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return "", persistence.ErrClosed
	}

	var id string
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(keyActiveSnapshot))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil // No active snapshot yet
		}
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to get active snapshot: %w", err)
	}

	return id, nil
}

// Close shuts down the persistence layer
func (b *BadgerPersistence) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil // Already closed, idempotent
	}
	b.closed = true
	b.mu.Unlock()

	if b.gcCancel != nil {
		b.gcCancel()
	}
	b.gcWg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger database: %w", err)
	}

	b.logger.Sugar().Info("Badger persistence closed")
	return nil
}

// HealthCheck verifies the persistence layer is operational
func (b *BadgerPersistence) HealthCheck() error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return persistence.ErrClosed
	}

	return b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get([]byte(keySchemaVersion))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return fmt.Errorf("schema version not found - database may be corrupted")
		}
		return err
	})
}
