package ledger

import (
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/merkle"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/shares"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/types"
)

var (
	addrA = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	addrB = common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	addrC = common.HexToAddress("0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC")
)

func entry(addr common.Address, amount int64) *types.AllocationEntry {
	e := types.NewAllocationEntry(addr, false)
	e.Breakdown.HoldPortion = big.NewInt(amount)
	e.Recompute()
	return e
}

func boundaryEntries() []*types.AllocationEntry {
	return []*types.AllocationEntry{
		entry(addrA, 100),
		entry(addrB, 40),
		entry(addrC, 10),
	}
}

func testParams() SnapshotParams {
	return SnapshotParams{
		Round:  3,
		Blocks: map[string]uint64{"fuse": 1000, "celo": 2000},
		Pools: shares.Pools{
			ClaimPool: big.NewInt(1),
			HoldPool:  big.NewInt(2),
			StakePool: big.NewInt(3),
		},
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func manyEntries(n int) []*types.AllocationEntry {
	entries := make([]*types.AllocationEntry, n)
	for i := 0; i < n; i++ {
		entries[i] = entry(common.BigToAddress(big.NewInt(int64(i+1))), int64(n-i)*1000)
	}
	return entries
}

func TestHashLeafMatchesAbiEncoding(t *testing.T) {
	amount := big.NewInt(100)
	hash, err := HashLeaf(addrA, amount)
	require.NoError(t, err)

	// abi.encode(address, uint256) is two left-padded 32 byte words
	expected := crypto.Keccak256Hash(
		common.LeftPadBytes(addrA.Bytes(), 32),
		common.LeftPadBytes(amount.Bytes(), 32),
	)
	require.Equal(t, [32]byte(expected), hash)
}

func TestCommitBoundaryExample(t *testing.T) {
	snap, err := Commit(boundaryEntries(), testParams())
	require.NoError(t, err)
	require.NotEmpty(t, snap.ID)
	require.Equal(t, 3, snap.Len())

	leaves := snap.Leaves()
	l1, l2, l3 := leaves[0].Hash, leaves[1].Hash, leaves[2].Hash
	h12 := merkle.HashPair(l1, l2)
	require.Equal(t, merkle.HashPair(h12, l3), snap.Root)

	p1, err := snap.ProofFor(addrA)
	require.NoError(t, err)
	require.Equal(t, 1, p1.ProofIndex)
	require.Equal(t, []common.Hash{l2, l3}, p1.Proof)
	require.Zero(t, p1.Amount.Cmp(big.NewInt(100)))
	require.True(t, p1.Verify())
	require.True(t, snap.VerifyProof(p1))

	p3, err := snap.ProofFor(addrC)
	require.NoError(t, err)
	require.Equal(t, 3, p3.ProofIndex)
	require.Equal(t, []common.Hash{h12}, p3.Proof)
	require.True(t, p3.Verify())
	require.True(t, snap.VerifyProof(p3))

	require.Equal(t, p1.Root, p3.Root)
	require.Zero(t, snap.TotalAmount().Cmp(big.NewInt(150)))
}

func TestCommitEmpty(t *testing.T) {
	snap, err := Commit(nil, testParams())
	require.Nil(t, snap)
	require.True(t, errors.Is(err, ErrEmptySnapshot))
}

func TestCommitRejectsBadEntries(t *testing.T) {
	t.Run("duplicate address", func(t *testing.T) {
		_, err := Commit([]*types.AllocationEntry{entry(addrA, 2), entry(addrA, 1)}, testParams())
		require.True(t, errors.Is(err, ErrMalformed))
	})

	t.Run("negative amount", func(t *testing.T) {
		_, err := Commit([]*types.AllocationEntry{entry(addrA, -1)}, testParams())
		require.True(t, errors.Is(err, ErrMalformed))
	})

	t.Run("nil entry", func(t *testing.T) {
		_, err := Commit([]*types.AllocationEntry{nil}, testParams())
		require.True(t, errors.Is(err, ErrMalformed))
	})
}

func TestCommitSingleLeaf(t *testing.T) {
	snap, err := Commit([]*types.AllocationEntry{entry(addrA, 7)}, testParams())
	require.NoError(t, err)

	leaf, err := HashLeaf(addrA, big.NewInt(7))
	require.NoError(t, err)
	require.Equal(t, leaf, snap.Root)

	proof, err := snap.ProofFor(addrA)
	require.NoError(t, err)
	require.Empty(t, proof.Proof)
	require.True(t, proof.Verify())
}

func TestCommitDeterministicRoot(t *testing.T) {
	a, err := Commit(manyEntries(37), testParams())
	require.NoError(t, err)
	b, err := Commit(manyEntries(37), testParams())
	require.NoError(t, err)

	require.Equal(t, a.Root, b.Root)
	require.NotEqual(t, a.ID, b.ID, "every commit is a new artifact")
}

func TestCommitDoesNotAliasEntries(t *testing.T) {
	entries := boundaryEntries()
	snap, err := Commit(entries, testParams())
	require.NoError(t, err)

	entries[0].AllocatedAmount.SetInt64(1)
	proof, err := snap.ProofFor(addrA)
	require.NoError(t, err)
	require.Zero(t, proof.Amount.Cmp(big.NewInt(100)))
}

func TestIndexOfFollowsCommitOrder(t *testing.T) {
	snap, err := Commit(boundaryEntries(), testParams())
	require.NoError(t, err)

	for want, addr := range []common.Address{addrA, addrB, addrC} {
		index, ok := snap.IndexOf(addr)
		require.True(t, ok)
		assert.Equal(t, want+1, index)

		proof, err := snap.ProofFor(addr)
		require.NoError(t, err)
		assert.Equal(t, index, proof.ProofIndex)
	}

	_, ok := snap.IndexOf(common.HexToAddress("0x0000000000000000000000000000000000000001"))
	assert.False(t, ok)
}

func TestProofForNotFound(t *testing.T) {
	snap, err := Commit(boundaryEntries(), testParams())
	require.NoError(t, err)

	proof, err := snap.ProofFor(common.HexToAddress("0x0000000000000000000000000000000000000001"))
	require.Nil(t, proof)
	require.True(t, errors.Is(err, ErrNotFound))

	_, err = snap.ProofAt(0)
	require.True(t, errors.Is(err, ErrNotFound))
	_, err = snap.ProofAt(4)
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestEveryProofRoundTrips(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8, 13, 64, 101} {
		snap, err := Commit(manyEntries(n), testParams())
		require.NoError(t, err)

		for _, leaf := range snap.Leaves() {
			proof, err := snap.ProofFor(leaf.Address)
			require.NoError(t, err)
			require.True(t, proof.Verify(), "n=%d index=%d", n, proof.ProofIndex)
			require.True(t, snap.VerifyProof(proof), "n=%d index=%d", n, proof.ProofIndex)
		}
	}
}

func TestProofNegative(t *testing.T) {
	snap, err := Commit(manyEntries(11), testParams())
	require.NoError(t, err)

	for index := 1; index <= snap.Len(); index++ {
		proof, err := snap.ProofAt(index)
		require.NoError(t, err)

		t.Run("amount", func(t *testing.T) {
			tampered := *proof
			tampered.Amount = new(big.Int).Add(proof.Amount, big.NewInt(1))
			assert.False(t, tampered.Verify())
			assert.False(t, snap.VerifyProof(&tampered))
		})

		t.Run("address", func(t *testing.T) {
			tampered := *proof
			tampered.Address[0] ^= 0x01
			assert.False(t, tampered.Verify())
		})

		t.Run("sibling bit", func(t *testing.T) {
			for i := range proof.Proof {
				tampered := *proof
				tampered.Proof = append([]common.Hash{}, proof.Proof...)
				tampered.Proof[i][7] ^= 0x10
				assert.False(t, tampered.Verify())
			}
		})

		t.Run("index", func(t *testing.T) {
			for other := 1; other <= snap.Len(); other++ {
				if other == index {
					continue
				}
				tampered := *proof
				tampered.ProofIndex = other
				assert.False(t, snap.VerifyProof(&tampered), "proof %d accepted at %d", index, other)
			}
		})

		t.Run("root", func(t *testing.T) {
			tampered := *proof
			tampered.Root[0] ^= 0xff
			assert.False(t, tampered.Verify())
			assert.False(t, snap.VerifyProof(&tampered))
		})
	}
}

func TestProofJSON(t *testing.T) {
	snap, err := Commit(boundaryEntries(), testParams())
	require.NoError(t, err)

	proof, err := snap.ProofFor(addrB)
	require.NoError(t, err)

	data, err := json.Marshal(proof)
	require.NoError(t, err)

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &generic))
	require.Equal(t, float64(2), generic["proofIndex"])
	require.Equal(t, "40", generic["amount"])
	require.Equal(t, snap.RootHex(), generic["merkleRoot"])
	siblings, ok := generic["proof"].([]interface{})
	require.True(t, ok)
	require.Len(t, siblings, 2)
	require.Regexp(t, "^0x[0-9a-f]{64}$", siblings[0])

	var decoded Proof
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, proof.Address, decoded.Address)
	require.Equal(t, proof.Proof, decoded.Proof)
	require.True(t, decoded.Verify())

	err = json.Unmarshal([]byte(`{"amount":"ten"}`), &decoded)
	require.True(t, errors.Is(err, ErrMalformed))
}
