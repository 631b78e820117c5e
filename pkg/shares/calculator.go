package shares

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/types"
)

// Calculator converts share results into an ordered allocation list.
type Calculator struct {
	pools  Pools
	rules  []RedistributionRule
	logger *zap.Logger
}

// NewCalculator creates a calculator distributing the given pools. Rules run in order.
func NewCalculator(pools Pools, l *zap.Logger, rules ...RedistributionRule) *Calculator {
	if l == nil {
		l = zap.NewNop()
	}
	return &Calculator{
		pools:  pools,
		rules:  rules,
		logger: l,
	}
}

// Allocate computes every address's portions, applies the redistribution
// rules, drops non-positive allocations and returns the entries sorted
// descending by amount with ties broken by ascending address.
func (c *Calculator) Allocate(result *ShareResult) ([]*types.AllocationEntry, error) {
	if result == nil {
		return nil, fmt.Errorf("share result is nil")
	}

	keys := make([]string, 0, len(result.Records))
	for k := range result.Records {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make(map[common.Address]*types.AllocationEntry, len(keys))
	for _, key := range keys {
		if !common.IsHexAddress(key) {
			return nil, fmt.Errorf("invalid address in share result: %q", key)
		}
		addr := common.HexToAddress(key)
		if _, dup := entries[addr]; dup {
			return nil, fmt.Errorf("duplicate address in share result: %s", addr.Hex())
		}
		entries[addr] = c.portionsFor(addr, result.Records[key])
	}

	before := totalOf(entries)
	for _, rule := range c.rules {
		if err := rule.Apply(entries); err != nil {
			return nil, fmt.Errorf("redistribution %s failed: %w", rule.Name(), err)
		}
		c.logger.Sugar().Debugw("Applied redistribution rule", "rule", rule.Name(), "total", totalOf(entries).String())
	}
	if after := totalOf(entries); after.Cmp(before) != 0 {
		c.logger.Sugar().Warnw("Redistribution changed the total allocation",
			"before", before.String(),
			"after", after.String(),
		)
	}

	out := make([]*types.AllocationEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.AllocatedAmount.Sign() > 0 {
			out = append(out, entry)
		}
	}
	SortEntries(out)

	c.logger.Sugar().Infow("Computed allocations",
		"records", len(result.Records),
		"entries", len(out),
		"total", totalOfList(out).String(),
	)
	return out, nil
}

func (c *Calculator) portionsFor(addr common.Address, rec *types.BalanceRecord) *types.AllocationEntry {
	entry := types.NewAllocationEntry(addr, !rec.IsNotContract)
	entry.Breakdown.ClaimPortion = MulShare(rec.ClaimRepShare, c.pools.ClaimPool)
	entry.Breakdown.HoldPortion = MulShare(rec.GDRepShare, c.pools.HoldPool)
	entry.Breakdown.StakePortion = MulShare(rec.StakeRepShare, c.pools.StakePool)
	entry.Recompute()
	return entry
}

// SortEntries orders entries descending by AllocatedAmount, ties by ascending address.
func SortEntries(entries []*types.AllocationEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if c := entries[i].AllocatedAmount.Cmp(entries[j].AllocatedAmount); c != 0 {
			return c > 0
		}
		return bytes.Compare(entries[i].Address[:], entries[j].Address[:]) < 0
	})
}

func totalOf(entries map[common.Address]*types.AllocationEntry) *big.Int {
	total := new(big.Int)
	for _, e := range entries {
		total.Add(total, e.AllocatedAmount)
	}
	return total
}

func totalOfList(entries []*types.AllocationEntry) *big.Int {
	total := new(big.Int)
	for _, e := range entries {
		total.Add(total, e.AllocatedAmount)
	}
	return total
}
