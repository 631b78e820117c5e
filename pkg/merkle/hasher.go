package merkle

import (
	"hash"

	"golang.org/x/crypto/sha3"
)

// nodeHasher hashes internal nodes with a single reusable keccak256 state.
// Not safe for concurrent use.
type nodeHasher struct {
	state   hash.Hash
	scratch [32]byte
}

func newNodeHasher() *nodeHasher {
	return &nodeHasher{state: sha3.NewLegacyKeccak256()}
}

// pair computes keccak256(left || right) with raw 32 byte concatenation.
func (h *nodeHasher) pair(left, right [32]byte) [32]byte {
	h.state.Reset()
	h.state.Write(left[:])
	h.state.Write(right[:])

	var out [32]byte
	copy(out[:], h.state.Sum(h.scratch[:0]))
	return out
}

// HashPair computes keccak256(left || right) for two 32-byte hashes.
func HashPair(left, right [32]byte) [32]byte {
	return newNodeHasher().pair(left, right)
}
