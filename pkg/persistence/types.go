package persistence

import (
	"errors"
	"sort"
	"time"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/ledger"
)

// CurrentSchemaVersion is written by every backend on first open and checked on later opens.
const CurrentSchemaVersion = "v1"

var (
	// ErrSnapshotExists is returned when saving over an already stored snapshot ID.
	ErrSnapshotExists = errors.New("snapshot already exists")

	// ErrSnapshotNotFound is returned when activating an unknown snapshot ID.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("persistence layer is closed")
)

// SnapshotMeta is the summary of a stored snapshot used for listing.
type SnapshotMeta struct {
	ID          string    `json:"id"`
	Round       uint64    `json:"round"`
	MerkleRoot  string    `json:"merkleRoot"`
	LeafCount   int       `json:"leafCount"`
	TotalAmount string    `json:"totalAmount"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MetaFromSnapshot builds the listing summary of snap.
func MetaFromSnapshot(snap *ledger.Snapshot) *SnapshotMeta {
	return &SnapshotMeta{
		ID:          snap.ID,
		Round:       snap.Params.Round,
		MerkleRoot:  snap.RootHex(),
		LeafCount:   snap.Len(),
		TotalAmount: snap.TotalAmount().String(),
		CreatedAt:   snap.Params.CreatedAt,
	}
}

// SortSnapshotMetas orders metas by round, then creation time, then ID.
func SortSnapshotMetas(metas []*SnapshotMeta) {
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].Round != metas[j].Round {
			return metas[i].Round < metas[j].Round
		}
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.Before(metas[j].CreatedAt)
		}
		return metas[i].ID < metas[j].ID
	})
}
