package persistence

import "github.com/GoodDollar/reputation-airdrop-go/pkg/ledger"

// ISnapshotPersistence stores committed airdrop snapshots.
// All implementations must be thread-safe.
//
// Snapshots are immutable once saved: a new round is a new snapshot with its
// own ID, and activating it supersedes the previous one without touching it.
type ISnapshotPersistence interface {
	// SaveSnapshot persists a committed snapshot under its ID.
	// Returns ErrSnapshotExists if a snapshot with the same ID is already stored.
	SaveSnapshot(snap *ledger.Snapshot) error

	// LoadSnapshot retrieves a snapshot by ID, re-checking its root on the way out.
	// Returns nil if the snapshot doesn't exist, error only on storage failure
	// or when the stored document is malformed.
	LoadSnapshot(id string) (*ledger.Snapshot, error)

	// ListSnapshots returns metadata for every stored snapshot ordered by
	// round, then creation time (ascending).
	// Returns empty slice if nothing is stored.
	ListSnapshots() ([]*SnapshotMeta, error)

	// SetActiveSnapshotID marks the snapshot proofs are served from.
	// Returns ErrSnapshotNotFound if no snapshot with that ID is stored.
	SetActiveSnapshotID(id string) error

	// GetActiveSnapshotID returns the active snapshot ID, or "" if none is set.
	GetActiveSnapshotID() (string, error)

	// Close cleanly shuts down the persistence layer.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations return ErrClosed.
	Close() error

	// HealthCheck verifies the persistence layer is operational.
	HealthCheck() error
}
