package merkle

// MerkleTree is a binary keccak256 tree over an ordered sequence of leaves.
// Leaf order is the caller's order and is never sorted; an unpaired trailing
// node at any level is carried up to the next level unchanged.
type MerkleTree struct {
	// Leaves contains the leaf hashes in insertion order
	Leaves [][32]byte

	// Root is the merkle root hash
	Root [32]byte

	// levels stores all tree levels for proof generation
	// levels[0] = leaves, levels[len-1] = root
	levels [][][32]byte
}

// MerkleProof represents a proof that a leaf is included in the tree.
type MerkleProof struct {
	// LeafIndex is the 1-based position of the leaf in the ordered leaves
	LeafIndex int

	// Leaf is the hash of the leaf being proven
	Leaf [32]byte

	// Proof contains the sibling hashes from leaf to root.
	// Levels where the node was carried up contribute no entry.
	Proof [][32]byte
}
