// Package ledger commits ordered allocations into a merkle snapshot and
// serves inclusion proofs from it.
package ledger

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/merkle"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/shares"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/types"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/util"
)

// SnapshotParams describe the run that produced a snapshot.
type SnapshotParams struct {
	// Round is the airdrop round; a later round supersedes earlier ones
	Round uint64 `json:"round"`

	// Blocks maps chain name to the block number balances were read at
	Blocks map[string]uint64 `json:"blocks,omitempty"`

	Pools     shares.Pools `json:"pools"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Leaf is one committed (address, amount) pair and its hash.
type Leaf struct {
	Address common.Address
	Amount  *big.Int
	Hash    [32]byte
}

// Snapshot is an immutable committed ledger. Leaf order is the tree order.
type Snapshot struct {
	ID     string
	Root   [32]byte
	Params SnapshotParams

	leaves []Leaf
	index  map[common.Address]int
	tree   *merkle.MerkleTree
}

// HashLeaf computes keccak256(abi.encode(address, uint256 amount)).
func HashLeaf(addr common.Address, amount *big.Int) ([32]byte, error) {
	encoded, err := util.EncodeAddressAmount(addr, amount)
	if err != nil {
		return [32]byte{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}

// Commit hashes the entries in the given order and builds the snapshot tree.
// The entries are expected to be sorted already; Commit never reorders them.
func Commit(entries []*types.AllocationEntry, params SnapshotParams) (*Snapshot, error) {
	if len(entries) == 0 {
		return nil, ErrEmptySnapshot
	}

	leaves := make([]Leaf, 0, len(entries))
	for i, entry := range entries {
		if entry == nil {
			return nil, errors.Wrapf(ErrMalformed, "entry %d is nil", i+1)
		}
		hash, err := HashLeaf(entry.Address, entry.AllocatedAmount)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "entry %d (%s): %v", i+1, entry.Address.Hex(), err)
		}
		leaves = append(leaves, Leaf{
			Address: entry.Address,
			Amount:  new(big.Int).Set(entry.AllocatedAmount),
			Hash:    hash,
		})
	}

	if params.CreatedAt.IsZero() {
		params.CreatedAt = time.Now().UTC()
	}
	return newSnapshot(uuid.New().String(), leaves, params)
}

func newSnapshot(id string, leaves []Leaf, params SnapshotParams) (*Snapshot, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptySnapshot
	}

	index := make(map[common.Address]int, len(leaves))
	hashes := make([][32]byte, len(leaves))
	for i, leaf := range leaves {
		if _, dup := index[leaf.Address]; dup {
			return nil, errors.Wrapf(ErrMalformed, "duplicate address %s", leaf.Address.Hex())
		}
		index[leaf.Address] = i + 1
		hashes[i] = leaf.Hash
	}

	tree, err := merkle.BuildMerkleTree(hashes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build merkle tree")
	}

	return &Snapshot{
		ID:     id,
		Root:   tree.Root,
		Params: params,
		leaves: leaves,
		index:  index,
		tree:   tree,
	}, nil
}

// Len returns the number of leaves.
func (s *Snapshot) Len() int {
	return len(s.leaves)
}

// Leaves returns a copy of the leaves in tree order.
func (s *Snapshot) Leaves() []Leaf {
	out := make([]Leaf, len(s.leaves))
	for i, l := range s.leaves {
		out[i] = Leaf{Address: l.Address, Amount: new(big.Int).Set(l.Amount), Hash: l.Hash}
	}
	return out
}

// IndexOf returns the 1-based leaf position of addr.
func (s *Snapshot) IndexOf(addr common.Address) (int, bool) {
	i, ok := s.index[addr]
	return i, ok
}

// TotalAmount is the sum of every committed amount.
func (s *Snapshot) TotalAmount() *big.Int {
	total := new(big.Int)
	for _, l := range s.leaves {
		total.Add(total, l.Amount)
	}
	return total
}

// RootHex returns the root as 0x-prefixed hex.
func (s *Snapshot) RootHex() string {
	return common.Hash(s.Root).Hex()
}

// ProofFor looks up addr and returns its inclusion proof.
func (s *Snapshot) ProofFor(addr common.Address) (*Proof, error) {
	index, ok := s.IndexOf(addr)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%s in snapshot %s", addr.Hex(), s.ID)
	}
	return s.ProofAt(index)
}

// ProofAt returns the proof for the leaf at the 1-based index.
func (s *Snapshot) ProofAt(index int) (*Proof, error) {
	mp, err := s.tree.GenerateProof(index)
	if err != nil {
		return nil, errors.Wrapf(ErrNotFound, "index %d: %v", index, err)
	}
	leaf := s.leaves[index-1]

	siblings := make([]common.Hash, len(mp.Proof))
	for i, h := range mp.Proof {
		siblings[i] = h
	}

	return &Proof{
		Address:    leaf.Address,
		ProofIndex: index,
		Proof:      siblings,
		Amount:     new(big.Int).Set(leaf.Amount),
		Leaf:       leaf.Hash,
		Root:       s.Root,
	}, nil
}

// VerifyProof checks p against this snapshot's root using the exact leaf count.
func (s *Snapshot) VerifyProof(p *Proof) bool {
	if p == nil || common.Hash(s.Root) != p.Root {
		return false
	}
	leaf, err := HashLeaf(p.Address, p.Amount)
	if err != nil {
		return false
	}
	return merkle.VerifyOrderedWithCount(p.siblings(), s.Root, leaf, p.ProofIndex, len(s.leaves))
}
