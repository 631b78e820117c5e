package merkle

import (
	"crypto/rand"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// createTestLeaves creates n distinct leaf hashes in a fixed order
func createTestLeaves(n int) [][32]byte {
	leaves := make([][32]byte, n)
	for i := 0; i < n; i++ {
		leaves[i] = crypto.Keccak256Hash([]byte(fmt.Sprintf("leaf-%d", i+1)))
	}
	return leaves
}

// randomHash generates a random 32-byte hash for testing
func randomHash() [32]byte {
	var hash [32]byte
	_, _ = rand.Read(hash[:]) // Ignore error in test helper
	return hash
}

func TestHashPairMatchesKeccakConcat(t *testing.T) {
	left, right := randomHash(), randomHash()

	expected := crypto.Keccak256Hash(left[:], right[:])
	require.Equal(t, [32]byte(expected), HashPair(left, right))
	require.NotEqual(t, HashPair(left, right), HashPair(right, left))
}

// TestBuildMerkleTree tests construction and proof round trips for various sizes
func TestBuildMerkleTree(t *testing.T) {
	testCases := []struct {
		name      string
		numLeaves int
	}{
		{"Single leaf", 1},
		{"Two leaves", 2},
		{"Three leaves", 3},
		{"Four leaves (power of 2)", 4},
		{"Five leaves", 5},
		{"Six leaves", 6},
		{"Seven leaves", 7},
		{"Eight leaves (power of 2)", 8},
		{"Fifteen leaves", 15},
		{"Sixteen leaves (power of 2)", 16},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			leaves := createTestLeaves(tc.numLeaves)
			tree, err := BuildMerkleTree(leaves)
			require.NoError(t, err)
			require.NotNil(t, tree)

			require.Equal(t, tc.numLeaves, len(tree.Leaves))
			require.Equal(t, leaves, tree.Leaves)

			for i := 1; i <= tc.numLeaves; i++ {
				proof, err := tree.GenerateProof(i)
				require.NoError(t, err)
				require.NotNil(t, proof)
				require.Equal(t, i, proof.LeafIndex)
				require.Equal(t, tree.Leaves[i-1], proof.Leaf)

				require.True(t, VerifyProof(proof, tree.Root), "proof for leaf %d should be valid", i)
				require.True(t, tree.VerifyProof(proof), "sized proof for leaf %d should be valid", i)
			}
		})
	}
}

// TestBuildMerkleTreeEmpty tests that building a tree from no leaves fails
func TestBuildMerkleTreeEmpty(t *testing.T) {
	tree, err := BuildMerkleTree(nil)
	require.Error(t, err)
	require.Nil(t, tree)
	require.Contains(t, err.Error(), "empty")
}

func TestSingleLeafTree(t *testing.T) {
	leaf := randomHash()
	tree, err := BuildMerkleTree([][32]byte{leaf})
	require.NoError(t, err)

	require.Equal(t, leaf, tree.Root)
	require.Equal(t, 0, tree.Height())

	proof, err := tree.GenerateProof(1)
	require.NoError(t, err)
	require.Empty(t, proof.Proof)
	require.True(t, VerifyOrdered(proof.Proof, tree.Root, leaf, 1))
}

// TestThreeLeafTree covers the boundary example: root = H(H(L1||L2) || L3)
func TestThreeLeafTree(t *testing.T) {
	leaves := createTestLeaves(3)
	l1, l2, l3 := leaves[0], leaves[1], leaves[2]

	tree, err := BuildMerkleTree(leaves)
	require.NoError(t, err)

	h12 := HashPair(l1, l2)
	require.Equal(t, HashPair(h12, l3), tree.Root)

	t.Run("First leaf", func(t *testing.T) {
		proof, err := tree.GenerateProof(1)
		require.NoError(t, err)
		require.Equal(t, [][32]byte{l2, l3}, proof.Proof)
		require.True(t, VerifyOrdered(proof.Proof, tree.Root, l1, 1))
	})

	t.Run("Second leaf", func(t *testing.T) {
		proof, err := tree.GenerateProof(2)
		require.NoError(t, err)
		require.Equal(t, [][32]byte{l1, l3}, proof.Proof)
		require.True(t, VerifyOrdered(proof.Proof, tree.Root, l2, 2))
	})

	t.Run("Carried leaf", func(t *testing.T) {
		proof, err := tree.GenerateProof(3)
		require.NoError(t, err)
		require.Equal(t, [][32]byte{h12}, proof.Proof)
		require.True(t, VerifyOrdered(proof.Proof, tree.Root, l3, 3))
		require.True(t, VerifyOrderedWithCount(proof.Proof, tree.Root, l3, 3, 3))
	})

	t.Run("Index ambiguity without leaf count", func(t *testing.T) {
		// position 2 and the carried position 3 replay identically when the
		// tree size is unknown; the sized verifier tells them apart
		require.True(t, VerifyOrdered([][32]byte{h12}, tree.Root, l3, 2))
		require.False(t, VerifyOrderedWithCount([][32]byte{h12}, tree.Root, l3, 2, 3))
	})
}

func TestSixLeafCarriedPair(t *testing.T) {
	leaves := createTestLeaves(6)
	tree, err := BuildMerkleTree(leaves)
	require.NoError(t, err)

	h12 := HashPair(leaves[0], leaves[1])
	h34 := HashPair(leaves[2], leaves[3])
	h56 := HashPair(leaves[4], leaves[5])
	h1234 := HashPair(h12, h34)
	require.Equal(t, HashPair(h1234, h56), tree.Root)

	// H56 is carried at level 1, so leaf 5 has two siblings across three levels
	proof, err := tree.GenerateProof(5)
	require.NoError(t, err)
	require.Equal(t, [][32]byte{leaves[5], h1234}, proof.Proof)
	require.True(t, VerifyProof(proof, tree.Root))
}

// TestMerkleProofVerification tests negative cases
func TestMerkleProofVerification(t *testing.T) {
	leaves := createTestLeaves(7)
	tree, err := BuildMerkleTree(leaves)
	require.NoError(t, err)

	t.Run("Valid proof", func(t *testing.T) {
		proof, err := tree.GenerateProof(4)
		require.NoError(t, err)
		require.True(t, VerifyProof(proof, tree.Root))
	})

	t.Run("Invalid proof - wrong root", func(t *testing.T) {
		proof, err := tree.GenerateProof(4)
		require.NoError(t, err)

		invalidRoot := tree.Root
		invalidRoot[0] ^= 0x01
		require.False(t, VerifyProof(proof, invalidRoot))
	})

	t.Run("Invalid proof - tampered leaf", func(t *testing.T) {
		proof, err := tree.GenerateProof(4)
		require.NoError(t, err)

		proof.Leaf[31] ^= 0x80
		require.False(t, VerifyProof(proof, tree.Root))
	})

	t.Run("Invalid proof - every sibling bit", func(t *testing.T) {
		for index := 1; index <= len(leaves); index++ {
			proof, err := tree.GenerateProof(index)
			require.NoError(t, err)

			for i := range proof.Proof {
				for _, bytePos := range []int{0, 15, 31} {
					for bit := 0; bit < 8; bit++ {
						tampered := make([][32]byte, len(proof.Proof))
						copy(tampered, proof.Proof)
						tampered[i][bytePos] ^= 1 << bit
						require.False(t, VerifyOrdered(tampered, tree.Root, proof.Leaf, index))
					}
				}
			}
		}
	})

	t.Run("Invalid proof - truncated", func(t *testing.T) {
		proof, err := tree.GenerateProof(1)
		require.NoError(t, err)
		require.False(t, VerifyOrdered(proof.Proof[:len(proof.Proof)-1], tree.Root, proof.Leaf, 1))
	})

	t.Run("Invalid proof - extended", func(t *testing.T) {
		proof, err := tree.GenerateProof(1)
		require.NoError(t, err)
		extended := append(append([][32]byte{}, proof.Proof...), randomHash())
		require.False(t, VerifyOrdered(extended, tree.Root, proof.Leaf, 1))
	})

	t.Run("Invalid proof - zero index", func(t *testing.T) {
		proof, err := tree.GenerateProof(1)
		require.NoError(t, err)
		require.False(t, VerifyOrdered(proof.Proof, tree.Root, proof.Leaf, 0))
	})

	t.Run("Invalid proof - nil proof", func(t *testing.T) {
		require.False(t, VerifyProof(nil, tree.Root))
		require.False(t, tree.VerifyProof(nil))
	})
}

// TestVerifyWithCountRejectsOtherIndices checks that a proof only verifies at its own position
func TestVerifyWithCountRejectsOtherIndices(t *testing.T) {
	for size := 1; size <= 16; size++ {
		leaves := createTestLeaves(size)
		tree, err := BuildMerkleTree(leaves)
		require.NoError(t, err)

		for index := 1; index <= size; index++ {
			proof, err := tree.GenerateProof(index)
			require.NoError(t, err)

			for other := 0; other <= size+1; other++ {
				ok := VerifyOrderedWithCount(proof.Proof, tree.Root, proof.Leaf, other, size)
				require.Equal(t, other == index, ok, "size %d, proof for %d checked at %d", size, index, other)
			}
		}
	}
}

// TestGenerateProofInvalidIndex tests proof generation with invalid indices
func TestGenerateProofInvalidIndex(t *testing.T) {
	tree, err := BuildMerkleTree(createTestLeaves(5))
	require.NoError(t, err)

	t.Run("Zero index", func(t *testing.T) {
		proof, err := tree.GenerateProof(0)
		require.Error(t, err)
		require.Nil(t, proof)
	})

	t.Run("Negative index", func(t *testing.T) {
		proof, err := tree.GenerateProof(-1)
		require.Error(t, err)
		require.Nil(t, proof)
	})

	t.Run("Index out of bounds", func(t *testing.T) {
		proof, err := tree.GenerateProof(6)
		require.Error(t, err)
		require.Nil(t, proof)
	})
}

func TestBuildMerkleTreeCopiesLeaves(t *testing.T) {
	leaves := createTestLeaves(4)
	tree, err := BuildMerkleTree(leaves)
	require.NoError(t, err)
	root := tree.Root

	leaves[0] = randomHash()
	require.NotEqual(t, leaves[0], tree.Leaves[0])

	rebuilt, err := BuildMerkleTree(tree.Leaves)
	require.NoError(t, err)
	require.Equal(t, root, rebuilt.Root)
}

func TestMerkleTreeOrderMatters(t *testing.T) {
	leaves := createTestLeaves(4)
	swapped := [][32]byte{leaves[1], leaves[0], leaves[2], leaves[3]}

	a, err := BuildMerkleTree(leaves)
	require.NoError(t, err)
	b, err := BuildMerkleTree(swapped)
	require.NoError(t, err)

	require.NotEqual(t, a.Root, b.Root)
}

// TestMerkleTreeLargeSet tests trees with larger leaf counts
func TestMerkleTreeLargeSet(t *testing.T) {
	sizes := []int{33, 100, 257, 1000}

	for _, size := range sizes {
		t.Run(fmt.Sprintf("Size_%d", size), func(t *testing.T) {
			tree, err := BuildMerkleTree(createTestLeaves(size))
			require.NoError(t, err)
			require.Equal(t, size, len(tree.Leaves))

			for _, index := range []int{1, 2, size / 2, size - 1, size} {
				proof, err := tree.GenerateProof(index)
				require.NoError(t, err)
				require.True(t, VerifyProof(proof, tree.Root), "index %d", index)
				require.True(t, tree.VerifyProof(proof), "index %d", index)
			}
		})
	}
}

// TestMerkleProofLength tests that proofs never exceed the tree height
func TestMerkleProofLength(t *testing.T) {
	testCases := []struct {
		numLeaves int
		height    int
	}{
		{1, 0},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
		{8, 3},
		{9, 4},
		{16, 4},
		{17, 5},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("%d_leaves", tc.numLeaves), func(t *testing.T) {
			tree, err := BuildMerkleTree(createTestLeaves(tc.numLeaves))
			require.NoError(t, err)
			require.Equal(t, tc.height, tree.Height())

			for i := 1; i <= tc.numLeaves; i++ {
				proof, err := tree.GenerateProof(i)
				require.NoError(t, err)
				require.LessOrEqual(t, len(proof.Proof), tc.height)
			}

			// the first leaf always has a sibling on every level
			first, err := tree.GenerateProof(1)
			require.NoError(t, err)
			require.Len(t, first.Proof, tc.height)
		})
	}
}

// TestMerkleTreeDeterminism tests that the same leaves always produce the same root
func TestMerkleTreeDeterminism(t *testing.T) {
	leaves := createTestLeaves(11)

	tree1, err := BuildMerkleTree(leaves)
	require.NoError(t, err)

	tree2, err := BuildMerkleTree(leaves)
	require.NoError(t, err)

	require.Equal(t, tree1.Root, tree2.Root)
	require.Equal(t, tree1.Leaves, tree2.Leaves)
}

func TestPendingLeftSiblings(t *testing.T) {
	testCases := []struct {
		position int
		expected int
	}{
		{1, 0},
		{2, 1},
		{3, 1},
		{4, 2},
		{5, 1},
		{6, 2},
		{7, 2},
		{8, 3},
	}

	for _, tc := range testCases {
		require.Equal(t, tc.expected, pendingLeftSiblings(tc.position), "position %d", tc.position)
	}
}
