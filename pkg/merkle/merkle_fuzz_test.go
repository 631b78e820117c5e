package merkle

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func FuzzOrderedProofRoundTrip(f *testing.F) {
	f.Add(uint8(1), []byte("seed"))
	f.Add(uint8(3), []byte{0x01})
	f.Add(uint8(6), []byte{})
	f.Add(uint8(37), []byte("airdrop"))

	f.Fuzz(func(t *testing.T, count uint8, salt []byte) {
		n := int(count)%64 + 1

		leaves := make([][32]byte, n)
		for i := range leaves {
			leaves[i] = crypto.Keccak256Hash(salt, []byte{byte(i), byte(i >> 8)})
		}

		tree, err := BuildMerkleTree(leaves)
		if err != nil {
			t.Fatalf("build failed: %v", err)
		}

		for i := 1; i <= n; i++ {
			proof, err := tree.GenerateProof(i)
			if err != nil {
				t.Fatalf("proof %d failed: %v", i, err)
			}
			if !VerifyOrdered(proof.Proof, tree.Root, proof.Leaf, i) {
				t.Fatalf("proof %d of %d did not verify", i, n)
			}
			if !VerifyOrderedWithCount(proof.Proof, tree.Root, proof.Leaf, i, n) {
				t.Fatalf("sized proof %d of %d did not verify", i, n)
			}
		}
	})
}
