// Package persistencetest holds the behaviour every ISnapshotPersistence backend must share.
package persistencetest

import (
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/ledger"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/persistence"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/types"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) persistence.ISnapshotPersistence

// NewSnapshot commits a snapshot with n descending entries for the given round.
func NewSnapshot(t *testing.T, round uint64, n int, created time.Time) *ledger.Snapshot {
	t.Helper()

	entries := make([]*types.AllocationEntry, 0, n)
	for i := n; i >= 1; i-- {
		e := types.NewAllocationEntry(common.BigToAddress(big.NewInt(int64(i)+int64(round)*1000)), false)
		e.Breakdown.HoldPortion = big.NewInt(int64(i) * 1_000_000)
		e.Recompute()
		entries = append(entries, e)
	}

	snap, err := ledger.Commit(entries, ledger.SnapshotParams{
		Round:     round,
		Blocks:    map[string]uint64{"fuse": 100 + round, "celo": 200 + round},
		CreatedAt: created,
	})
	require.NoError(t, err)
	return snap
}

// RunSuite runs the shared backend tests against stores produced by open.
func RunSuite(t *testing.T, open Factory) {
	base := time.Unix(1700000000, 0).UTC()

	t.Run("SaveAndLoad", func(t *testing.T) {
		store := open(t)
		snap := NewSnapshot(t, 1, 7, base)

		require.NoError(t, store.SaveSnapshot(snap))

		loaded, err := store.LoadSnapshot(snap.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, snap.ID, loaded.ID)
		assert.Equal(t, snap.Root, loaded.Root)
		assert.Equal(t, snap.Params.Blocks, loaded.Params.Blocks)
		assert.Equal(t, snap.Len(), loaded.Len())

		// leaf order survives storage, so every proof still verifies
		for _, leaf := range snap.Leaves() {
			proof, err := loaded.ProofFor(leaf.Address)
			require.NoError(t, err)
			assert.True(t, loaded.VerifyProof(proof))

			original, err := snap.ProofFor(leaf.Address)
			require.NoError(t, err)
			assert.Equal(t, original.ProofIndex, proof.ProofIndex)
		}
	})

	t.Run("LoadMissing", func(t *testing.T) {
		store := open(t)

		loaded, err := store.LoadSnapshot("does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("SaveRefusesOverwrite", func(t *testing.T) {
		store := open(t)
		snap := NewSnapshot(t, 1, 3, base)

		require.NoError(t, store.SaveSnapshot(snap))
		err := store.SaveSnapshot(snap)
		require.Error(t, err)
		assert.True(t, errors.Is(err, persistence.ErrSnapshotExists))
	})

	t.Run("SaveNil", func(t *testing.T) {
		store := open(t)
		require.Error(t, store.SaveSnapshot(nil))
	})

	t.Run("ListOrdered", func(t *testing.T) {
		store := open(t)

		round2 := NewSnapshot(t, 2, 2, base)
		round1Late := NewSnapshot(t, 1, 3, base.Add(time.Hour))
		round1Early := NewSnapshot(t, 1, 4, base)
		for _, s := range []*ledger.Snapshot{round2, round1Late, round1Early} {
			require.NoError(t, store.SaveSnapshot(s))
		}

		metas, err := store.ListSnapshots()
		require.NoError(t, err)
		require.Len(t, metas, 3)
		assert.Equal(t, round1Early.ID, metas[0].ID)
		assert.Equal(t, round1Late.ID, metas[1].ID)
		assert.Equal(t, round2.ID, metas[2].ID)

		assert.Equal(t, 4, metas[0].LeafCount)
		assert.Equal(t, round1Early.RootHex(), metas[0].MerkleRoot)
		assert.Equal(t, round1Early.TotalAmount().String(), metas[0].TotalAmount)
	})

	t.Run("ListEmpty", func(t *testing.T) {
		store := open(t)

		metas, err := store.ListSnapshots()
		require.NoError(t, err)
		assert.Empty(t, metas)
	})

	t.Run("ActiveSnapshot", func(t *testing.T) {
		store := open(t)

		active, err := store.GetActiveSnapshotID()
		require.NoError(t, err)
		assert.Equal(t, "", active)

		first := NewSnapshot(t, 1, 3, base)
		second := NewSnapshot(t, 2, 3, base.Add(time.Hour))
		require.NoError(t, store.SaveSnapshot(first))
		require.NoError(t, store.SaveSnapshot(second))

		require.NoError(t, store.SetActiveSnapshotID(first.ID))
		active, err = store.GetActiveSnapshotID()
		require.NoError(t, err)
		assert.Equal(t, first.ID, active)

		// a later round supersedes without touching the earlier snapshot
		require.NoError(t, store.SetActiveSnapshotID(second.ID))
		active, err = store.GetActiveSnapshotID()
		require.NoError(t, err)
		assert.Equal(t, second.ID, active)

		old, err := store.LoadSnapshot(first.ID)
		require.NoError(t, err)
		require.NotNil(t, old)
		assert.Equal(t, first.Root, old.Root)
	})

	t.Run("ActivateUnknown", func(t *testing.T) {
		store := open(t)

		err := store.SetActiveSnapshotID("missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, persistence.ErrSnapshotNotFound))
	})

	t.Run("ConcurrentAccess", func(t *testing.T) {
		store := open(t)

		var wg sync.WaitGroup
		snaps := make([]*ledger.Snapshot, 8)
		for i := range snaps {
			snaps[i] = NewSnapshot(t, uint64(i+1), 3, base)
		}

		for _, s := range snaps {
			wg.Add(1)
			go func(s *ledger.Snapshot) {
				defer wg.Done()
				assert.NoError(t, store.SaveSnapshot(s))
				_, err := store.ListSnapshots()
				assert.NoError(t, err)
			}(s)
		}
		wg.Wait()

		metas, err := store.ListSnapshots()
		require.NoError(t, err)
		assert.Len(t, metas, len(snaps))
	})

	t.Run("HealthCheck", func(t *testing.T) {
		store := open(t)
		require.NoError(t, store.HealthCheck())
	})

	t.Run("Close", func(t *testing.T) {
		store := open(t)
		snap := NewSnapshot(t, 1, 2, base)

		require.NoError(t, store.Close())
		require.NoError(t, store.Close(), "close must be idempotent")

		assert.ErrorIs(t, store.SaveSnapshot(snap), persistence.ErrClosed)
		_, err := store.LoadSnapshot(snap.ID)
		assert.ErrorIs(t, err, persistence.ErrClosed)
		_, err = store.ListSnapshots()
		assert.ErrorIs(t, err, persistence.ErrClosed)
		assert.ErrorIs(t, store.SetActiveSnapshotID(snap.ID), persistence.ErrClosed)
		_, err = store.GetActiveSnapshotID()
		assert.ErrorIs(t, err, persistence.ErrClosed)
		assert.ErrorIs(t, store.HealthCheck(), persistence.ErrClosed)
	})
}
