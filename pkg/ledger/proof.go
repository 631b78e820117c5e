package ledger

import (
	"encoding/json"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/merkle"
)

// Proof is what a claimant submits on chain: position, siblings and amount.
type Proof struct {
	Address    common.Address
	ProofIndex int
	Proof      []common.Hash
	Amount     *big.Int
	Leaf       common.Hash
	Root       common.Hash
}

type proofJSON struct {
	Address    common.Address `json:"address"`
	ProofIndex int            `json:"proofIndex"`
	Proof      []common.Hash  `json:"proof"`
	Amount     string         `json:"amount"`
	Leaf       common.Hash    `json:"leaf"`
	Root       common.Hash    `json:"merkleRoot"`
}

// MarshalJSON writes the amount as a decimal string and hashes as 0x hex.
func (p *Proof) MarshalJSON() ([]byte, error) {
	amount := "0"
	if p.Amount != nil {
		amount = p.Amount.String()
	}
	siblings := p.Proof
	if siblings == nil {
		siblings = []common.Hash{}
	}
	return json.Marshal(proofJSON{
		Address:    p.Address,
		ProofIndex: p.ProofIndex,
		Proof:      siblings,
		Amount:     amount,
		Leaf:       p.Leaf,
		Root:       p.Root,
	})
}

func (p *Proof) UnmarshalJSON(data []byte) error {
	var raw proofJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(ErrMalformed, err.Error())
	}
	amount, ok := new(big.Int).SetString(raw.Amount, 10)
	if !ok {
		return errors.Wrapf(ErrMalformed, "invalid amount %q", raw.Amount)
	}
	*p = Proof{
		Address:    raw.Address,
		ProofIndex: raw.ProofIndex,
		Proof:      raw.Proof,
		Amount:     amount,
		Leaf:       raw.Leaf,
		Root:       raw.Root,
	}
	return nil
}

// Verify recomputes the leaf from address and amount and checks it against Root.
// The tree size is not known here; see merkle.VerifyOrdered.
func (p *Proof) Verify() bool {
	leaf, err := HashLeaf(p.Address, p.Amount)
	if err != nil {
		return false
	}
	return merkle.VerifyOrdered(p.siblings(), p.Root, leaf, p.ProofIndex)
}

func (p *Proof) siblings() [][32]byte {
	out := make([][32]byte, len(p.Proof))
	for i, h := range p.Proof {
		out[i] = h
	}
	return out
}
