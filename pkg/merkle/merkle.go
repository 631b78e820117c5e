package merkle

import (
	"fmt"
)

// BuildMerkleTree creates an ordered binary merkle tree from leaf hashes.
//
// Level 0 is the leaves exactly as given. Each next level pairs adjacent
// nodes (2i, 2i+1) and hashes keccak256(left || right). If a level has an
// odd number of nodes, the last one is promoted to the next level as is.
func BuildMerkleTree(leaves [][32]byte) (*MerkleTree, error) {
	if len(leaves) == 0 {
		return nil, fmt.Errorf("cannot build merkle tree from empty leaf list")
	}

	// Copy so later mutation by the caller cannot change the committed order
	base := make([][32]byte, len(leaves))
	copy(base, leaves)

	h := newNodeHasher()
	levels := make([][][32]byte, 0)
	levels = append(levels, base)

	currentLevel := base
	for len(currentLevel) > 1 {
		nextLevel := make([][32]byte, 0, (len(currentLevel)+1)/2)

		for i := 0; i < len(currentLevel); i += 2 {
			if i+1 == len(currentLevel) {
				// carried up, not hashed with itself
				nextLevel = append(nextLevel, currentLevel[i])
				continue
			}
			nextLevel = append(nextLevel, h.pair(currentLevel[i], currentLevel[i+1]))
		}

		levels = append(levels, nextLevel)
		currentLevel = nextLevel
	}

	if len(currentLevel) != 1 {
		return nil, fmt.Errorf("merkle tree construction failed: final level has %d nodes instead of 1", len(currentLevel))
	}

	return &MerkleTree{
		Leaves: base,
		Root:   currentLevel[0],
		levels: levels,
	}, nil
}

// Height returns the number of levels above the leaves.
func (mt *MerkleTree) Height() int {
	return len(mt.levels) - 1
}

// GenerateProof creates a merkle proof for the leaf at the given 1-based position.
func (mt *MerkleTree) GenerateProof(leafIndex int) (*MerkleProof, error) {
	if leafIndex < 1 || leafIndex > len(mt.Leaves) {
		return nil, fmt.Errorf("leaf index %d out of bounds (tree has %d leaves, indices are 1-based)", leafIndex, len(mt.Leaves))
	}

	proof := make([][32]byte, 0, mt.Height())
	position := leafIndex

	for level := 0; level < len(mt.levels)-1; level++ {
		nodes := mt.levels[level]

		switch {
		case position%2 == 0:
			// right child, sibling sits at position-1
			proof = append(proof, nodes[position-2])
		case position < len(nodes):
			// left child, sibling sits at position+1
			proof = append(proof, nodes[position])
		default:
			// last node of an odd level, carried up without a sibling
		}

		position = (position + 1) / 2
	}

	return &MerkleProof{
		LeafIndex: leafIndex,
		Leaf:      mt.Leaves[leafIndex-1],
		Proof:     proof,
	}, nil
}

// VerifyProof checks a proof against this tree's root using the exact level
// widths of the tree.
func (mt *MerkleTree) VerifyProof(proof *MerkleProof) bool {
	if proof == nil {
		return false
	}
	return VerifyOrderedWithCount(proof.Proof, mt.Root, proof.Leaf, proof.LeafIndex, len(mt.Leaves))
}

// VerifyProof verifies that a leaf is included in a tree with the given root
// without knowing the tree size. See VerifyOrdered.
func VerifyProof(proof *MerkleProof, root [32]byte) bool {
	if proof == nil {
		return false
	}
	return VerifyOrdered(proof.Proof, root, proof.Leaf, proof.LeafIndex)
}
