package shares

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/types"
)

// RedistributionRule moves allocation between entries after the pool portions
// are computed. Rules must conserve the total allocated amount.
type RedistributionRule interface {
	Name() string
	Apply(entries map[common.Address]*types.AllocationEntry) error
}

// CustodialRedistribution takes the allocation of custodial addresses (an
// exchange holding user funds, for example) and hands it to a foundation and
// a team list instead.
//
// The foundation receives FoundationTopUp, capped at the amount removed. The
// rest is split evenly across Team. Integer division dust and, with an empty
// Team, the whole remainder go to the foundation. Recipients missing from the
// allocation are added.
type CustodialRedistribution struct {
	Excluded        []common.Address
	Foundation      common.Address
	FoundationTopUp *big.Int
	Team            []common.Address
}

func (r *CustodialRedistribution) Name() string {
	return "custodial_redistribution"
}

// Validate checks that no recipient is also an excluded address.
func (r *CustodialRedistribution) Validate() error {
	excluded := make(map[common.Address]struct{}, len(r.Excluded))
	for _, addr := range r.Excluded {
		excluded[addr] = struct{}{}
	}
	if _, ok := excluded[r.Foundation]; ok {
		return fmt.Errorf("foundation address %s is also excluded", r.Foundation.Hex())
	}
	for _, addr := range r.Team {
		if _, ok := excluded[addr]; ok {
			return fmt.Errorf("team address %s is also excluded", addr.Hex())
		}
	}
	if r.FoundationTopUp != nil && r.FoundationTopUp.Sign() < 0 {
		return fmt.Errorf("foundation top-up must not be negative")
	}
	return nil
}

func (r *CustodialRedistribution) Apply(entries map[common.Address]*types.AllocationEntry) error {
	if err := r.Validate(); err != nil {
		return err
	}

	removed := new(big.Int)
	for _, addr := range r.Excluded {
		entry, ok := entries[addr]
		if !ok {
			continue
		}
		removed.Add(removed, entry.AllocatedAmount)
		entry.Zero()
	}
	if removed.Sign() == 0 {
		return nil
	}

	foundationShare := new(big.Int)
	if r.FoundationTopUp != nil {
		foundationShare.Set(r.FoundationTopUp)
	}
	if foundationShare.Cmp(removed) > 0 {
		foundationShare.Set(removed)
	}
	remainder := new(big.Int).Sub(removed, foundationShare)

	if len(r.Team) == 0 {
		foundationShare.Add(foundationShare, remainder)
	} else {
		perMember, dust := new(big.Int).QuoRem(remainder, big.NewInt(int64(len(r.Team))), new(big.Int))
		foundationShare.Add(foundationShare, dust)
		for _, addr := range r.Team {
			credit(entries, addr, perMember)
		}
	}
	credit(entries, r.Foundation, foundationShare)

	return nil
}

func credit(entries map[common.Address]*types.AllocationEntry, addr common.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	entry, ok := entries[addr]
	if !ok {
		entry = types.NewAllocationEntry(addr, false)
		entries[addr] = entry
	}
	entry.Breakdown.SpecialPortion = new(big.Int).Add(entry.Breakdown.SpecialPortion, amount)
	entry.Recompute()
}
