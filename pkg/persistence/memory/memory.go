package memory

import (
	"fmt"
	"os"
	"sync"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/ledger"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/persistence"
)

// MemoryPersistence is an in-memory implementation of ISnapshotPersistence.
// This implementation is intended for TESTING and dry runs only.
//
// Snapshots are kept as serialized ledger documents, so every load goes
// through the same integrity check as the durable backends and callers can
// never mutate stored state. Thread-safe using sync.RWMutex.
type MemoryPersistence struct {
	mu sync.RWMutex

	// documents: snapshot ID -> ledger JSON
	documents map[string][]byte

	// metas: snapshot ID -> listing summary
	metas map[string]*persistence.SnapshotMeta

	activeID string
	closed   bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
// Prints a loud warning since nothing survives the process.
func NewMemoryPersistence() *MemoryPersistence {
	fmt.Fprintln(os.Stderr, "WARNING: Using in-memory persistence - ALL SNAPSHOTS WILL BE LOST ON EXIT")
	fmt.Fprintln(os.Stderr, "Set AIRDROP_PERSISTENCE_TYPE=badger to keep snapshots between runs")

	return &MemoryPersistence{
		documents: make(map[string][]byte),
		metas:     make(map[string]*persistence.SnapshotMeta),
	}
}

// SaveSnapshot persists a snapshot, refusing to overwrite an existing ID.
func (m *MemoryPersistence) SaveSnapshot(snap *ledger.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot save nil Snapshot")
	}

	data, err := persistence.MarshalSnapshot(snap)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}
	if _, exists := m.documents[snap.ID]; exists {
		return fmt.Errorf("%w: %s", persistence.ErrSnapshotExists, snap.ID)
	}

	m.documents[snap.ID] = data
	m.metas[snap.ID] = persistence.MetaFromSnapshot(snap)
	return nil
}

// LoadSnapshot retrieves a snapshot by ID.
func (m *MemoryPersistence) LoadSnapshot(id string) (*ledger.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	data, ok := m.documents[id]
	if !ok {
		return nil, nil
	}
	return persistence.UnmarshalSnapshot(data)
}

// ListSnapshots returns every stored snapshot's summary ordered by round.
func (m *MemoryPersistence) ListSnapshots() ([]*persistence.SnapshotMeta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	metas := make([]*persistence.SnapshotMeta, 0, len(m.metas))
	for _, meta := range m.metas {
		copied := *meta
		metas = append(metas, &copied)
	}
	persistence.SortSnapshotMetas(metas)

	return metas, nil
}

// SetActiveSnapshotID marks a stored snapshot as active.
func (m *MemoryPersistence) SetActiveSnapshotID(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}
	if _, ok := m.documents[id]; !ok {
		return fmt.Errorf("%w: %s", persistence.ErrSnapshotNotFound, id)
	}

	m.activeID = id
	return nil
}

// GetActiveSnapshotID returns the active snapshot ID.
func (m *MemoryPersistence) GetActiveSnapshotID() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", persistence.ErrClosed
	}
	return m.activeID, nil
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck always succeeds until Close.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}
