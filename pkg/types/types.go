package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SharePrecision is the fixed-point scale of every share field: 1e18 == 1.0
var SharePrecision = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// PartialRecord is what a single data source knows about an address.
// Nil fields were not observed by that source.
type PartialRecord struct {
	Balance       *big.Int
	Claims        *uint64
	Stake         *big.Int
	IsNotContract *bool
}

// BalanceRecord is the merged view of an address across all sources.
//
// Balance, Claims and Stake are raw observed quantities. The three share
// fields are fixed-point fractions scaled by SharePrecision; they stay zero
// until normalization fills them and always lie in [0, SharePrecision].
type BalanceRecord struct {
	Balance *big.Int
	Claims  uint64
	Stake   *big.Int

	GDRepShare    *big.Int
	ClaimRepShare *big.Int
	StakeRepShare *big.Int

	IsNotContract bool
}

// DefaultRecord returns the record every merge starts from: all quantities
// and shares zero, and the address assumed to be an externally owned account.
func DefaultRecord() *BalanceRecord {
	return &BalanceRecord{
		Balance:       new(big.Int),
		Claims:        0,
		Stake:         new(big.Int),
		GDRepShare:    new(big.Int),
		ClaimRepShare: new(big.Int),
		StakeRepShare: new(big.Int),
		IsNotContract: true,
	}
}

// Copy returns a deep copy of the record.
func (r *BalanceRecord) Copy() *BalanceRecord {
	if r == nil {
		return nil
	}
	return &BalanceRecord{
		Balance:       copyInt(r.Balance),
		Claims:        r.Claims,
		Stake:         copyInt(r.Stake),
		GDRepShare:    copyInt(r.GDRepShare),
		ClaimRepShare: copyInt(r.ClaimRepShare),
		StakeRepShare: copyInt(r.StakeRepShare),
		IsNotContract: r.IsNotContract,
	}
}

// Breakdown splits an allocation by the pool it came from.
type Breakdown struct {
	ClaimPortion   *big.Int
	HoldPortion    *big.Int
	StakePortion   *big.Int
	SpecialPortion *big.Int
}

// NewBreakdown returns a breakdown with every portion set to zero.
func NewBreakdown() Breakdown {
	return Breakdown{
		ClaimPortion:   new(big.Int),
		HoldPortion:    new(big.Int),
		StakePortion:   new(big.Int),
		SpecialPortion: new(big.Int),
	}
}

// Total is the sum of all portions.
func (b Breakdown) Total() *big.Int {
	total := new(big.Int)
	for _, p := range []*big.Int{b.ClaimPortion, b.HoldPortion, b.StakePortion, b.SpecialPortion} {
		if p != nil {
			total.Add(total, p)
		}
	}
	return total
}

// AllocationEntry is the allocation of a single address in smallest token units.
// AllocatedAmount always equals Breakdown.Total(); use Recompute after touching portions.
type AllocationEntry struct {
	Address         common.Address
	AllocatedAmount *big.Int
	IsContract      bool
	Breakdown       Breakdown
}

// NewAllocationEntry returns an entry with a zero breakdown.
func NewAllocationEntry(addr common.Address, isContract bool) *AllocationEntry {
	return &AllocationEntry{
		Address:         addr,
		AllocatedAmount: new(big.Int),
		IsContract:      isContract,
		Breakdown:       NewBreakdown(),
	}
}

// Recompute sets AllocatedAmount to the sum of the breakdown.
func (e *AllocationEntry) Recompute() {
	e.AllocatedAmount = e.Breakdown.Total()
}

// Zero clears every portion and the allocated amount.
func (e *AllocationEntry) Zero() {
	e.Breakdown = NewBreakdown()
	e.AllocatedAmount = new(big.Int)
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
