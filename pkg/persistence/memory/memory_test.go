package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/persistence"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/persistence/persistencetest"
)

var _ persistence.ISnapshotPersistence = (*MemoryPersistence)(nil)

func TestMemoryPersistence(t *testing.T) {
	persistencetest.RunSuite(t, func(t *testing.T) persistence.ISnapshotPersistence {
		return NewMemoryPersistence()
	})
}

func TestMemoryPersistence_LoadedSnapshotIsIndependent(t *testing.T) {
	store := NewMemoryPersistence()
	snap := persistencetest.NewSnapshot(t, 1, 4, time.Now().UTC())
	require.NoError(t, store.SaveSnapshot(snap))

	first, err := store.LoadSnapshot(snap.ID)
	require.NoError(t, err)
	first.Params.Blocks["fuse"] = 0

	second, err := store.LoadSnapshot(snap.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(101), second.Params.Blocks["fuse"])
}

func TestMemoryPersistence_ListReturnsCopies(t *testing.T) {
	store := NewMemoryPersistence()
	snap := persistencetest.NewSnapshot(t, 1, 2, time.Now().UTC())
	require.NoError(t, store.SaveSnapshot(snap))

	metas, err := store.ListSnapshots()
	require.NoError(t, err)
	metas[0].Round = 99

	metas, err = store.ListSnapshots()
	require.NoError(t, err)
	require.Equal(t, uint64(1), metas[0].Round)
}
