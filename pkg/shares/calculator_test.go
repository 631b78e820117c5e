package shares

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/types"
)

var (
	addrA = common.HexToAddress("0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")
	addrB = common.HexToAddress("0xBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB")
	addrC = common.HexToAddress("0xCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC")
	addrD = common.HexToAddress("0xDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD")

	exchange   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	foundation = common.HexToAddress("0x2222222222222222222222222222222222222222")
	team1      = common.HexToAddress("0x3333333333333333333333333333333333333333")
	team2      = common.HexToAddress("0x4444444444444444444444444444444444444444")
	team3      = common.HexToAddress("0x5555555555555555555555555555555555555555")
)

func record(balance int64, claims uint64, stakeShare *big.Int) *types.BalanceRecord {
	rec := types.DefaultRecord()
	rec.Balance = big.NewInt(balance)
	rec.Claims = claims
	if stakeShare != nil {
		rec.StakeRepShare = stakeShare
	}
	return rec
}

func key(addr common.Address) string {
	return addr.Hex()
}

func testPools() Pools {
	return Pools{
		ClaimPool: big.NewInt(1_000_000),
		HoldPool:  big.NewInt(2_000_000),
		StakePool: big.NewInt(500_000),
	}
}

func entryTotal(entries []*types.AllocationEntry) *big.Int {
	total := new(big.Int)
	for _, e := range entries {
		total.Add(total, e.AllocatedAmount)
	}
	return total
}

func TestAllocatePortions(t *testing.T) {
	half := new(big.Int).Div(types.SharePrecision, big.NewInt(2))
	records := map[string]*types.BalanceRecord{
		key(addrA): record(30, 1, half),
		key(addrB): record(10, 3, half),
	}

	calc := NewCalculator(testPools(), zap.NewNop())
	entries, err := calc.Allocate(CalcShares(records))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// A: 1/4 claims, 3/4 balance, 1/2 stake
	a := entries[0]
	require.Equal(t, addrA, a.Address)
	require.Zero(t, a.Breakdown.ClaimPortion.Cmp(big.NewInt(250_000)))
	require.Zero(t, a.Breakdown.HoldPortion.Cmp(big.NewInt(1_500_000)))
	require.Zero(t, a.Breakdown.StakePortion.Cmp(big.NewInt(250_000)))
	require.Zero(t, a.Breakdown.SpecialPortion.Sign())
	require.Zero(t, a.AllocatedAmount.Cmp(big.NewInt(2_000_000)))

	b := entries[1]
	require.Equal(t, addrB, b.Address)
	require.Zero(t, b.AllocatedAmount.Cmp(big.NewInt(750_000+500_000+250_000)))

	for _, e := range entries {
		require.Zero(t, e.AllocatedAmount.Cmp(e.Breakdown.Total()))
	}
}

func TestAllocateFiltersAndSorts(t *testing.T) {
	records := map[string]*types.BalanceRecord{
		key(addrA): record(10, 0, nil),
		key(addrB): record(40, 0, nil),
		key(addrC): record(10, 0, nil),
		key(addrD): record(0, 0, nil),
	}

	entries, err := NewCalculator(testPools(), nil).Allocate(CalcShares(records))
	require.NoError(t, err)

	require.Len(t, entries, 3, "zero allocation must be dropped")
	require.Equal(t, addrB, entries[0].Address)
	// equal amounts are ordered by address
	require.Equal(t, addrA, entries[1].Address)
	require.Equal(t, addrC, entries[2].Address)

	for i := 1; i < len(entries); i++ {
		require.GreaterOrEqual(t, entries[i-1].AllocatedAmount.Cmp(entries[i].AllocatedAmount), 0)
	}
}

func TestAllocateMarksContracts(t *testing.T) {
	rec := record(5, 0, nil)
	rec.IsNotContract = false

	entries, err := NewCalculator(testPools(), nil).Allocate(CalcShares(map[string]*types.BalanceRecord{
		key(addrA): rec,
	}))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].IsContract)
}

func TestAllocateEmptyPools(t *testing.T) {
	entries, err := NewCalculator(Pools{}, nil).Allocate(CalcShares(map[string]*types.BalanceRecord{
		key(addrA): record(5, 1, nil),
	}))
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestAllocateInvalidInput(t *testing.T) {
	calc := NewCalculator(testPools(), nil)

	_, err := calc.Allocate(nil)
	require.Error(t, err)

	_, err = calc.Allocate(CalcShares(map[string]*types.BalanceRecord{"0xnot-an-address": record(1, 0, nil)}))
	require.Error(t, err)

	_, err = calc.Allocate(CalcShares(map[string]*types.BalanceRecord{
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa": record(1, 0, nil),
		"0xAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA": record(1, 0, nil),
	}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate")
}

func TestAllocateDeterministic(t *testing.T) {
	records := make(map[string]*types.BalanceRecord)
	for i := int64(1); i <= 40; i++ {
		records[common.BigToAddress(big.NewInt(i)).Hex()] = record(i%5+1, uint64(i%3), nil)
	}

	calc := NewCalculator(testPools(), nil)
	first, err := calc.Allocate(CalcShares(records))
	require.NoError(t, err)

	for run := 0; run < 5; run++ {
		again, err := calc.Allocate(CalcShares(records))
		require.NoError(t, err)
		require.Len(t, again, len(first))
		for i := range first {
			require.Equal(t, first[i].Address, again[i].Address)
			require.Zero(t, first[i].AllocatedAmount.Cmp(again[i].AllocatedAmount))
		}
	}
}

func TestCustodialRedistribution(t *testing.T) {
	testCases := []struct {
		name       string
		topUp      int64
		team       []common.Address
		foundation int64
		perMember  int64
	}{
		{"top-up then even split", 100, []common.Address{team1, team2}, 100, 450},
		{"division dust to foundation", 99, []common.Address{team1, team2, team3}, 99 + 1, 300},
		{"top-up capped at removed amount", 5000, []common.Address{team1, team2}, 1000, 0},
		{"no team", 100, nil, 1000, 0},
		{"zero top-up", 0, []common.Address{team1, team2}, 0, 500},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			entries := map[common.Address]*types.AllocationEntry{
				exchange: allocated(exchange, 1000),
				addrA:    allocated(addrA, 10),
			}
			rule := &CustodialRedistribution{
				Excluded:        []common.Address{exchange},
				Foundation:      foundation,
				FoundationTopUp: big.NewInt(tc.topUp),
				Team:            tc.team,
			}

			require.NoError(t, rule.Apply(entries))

			require.Zero(t, entries[exchange].AllocatedAmount.Sign())
			require.Zero(t, entries[addrA].AllocatedAmount.Cmp(big.NewInt(10)))
			if tc.foundation > 0 {
				require.Zero(t, entries[foundation].AllocatedAmount.Cmp(big.NewInt(tc.foundation)))
				require.Zero(t, entries[foundation].Breakdown.SpecialPortion.Cmp(big.NewInt(tc.foundation)))
			} else {
				assert.NotContains(t, entries, foundation)
			}
			for _, m := range tc.team {
				if tc.perMember > 0 {
					require.Zero(t, entries[m].AllocatedAmount.Cmp(big.NewInt(tc.perMember)))
				}
			}

			total := new(big.Int)
			for _, e := range entries {
				total.Add(total, e.AllocatedAmount)
			}
			require.Zero(t, total.Cmp(big.NewInt(1010)), "total allocation must be conserved")
		})
	}
}

func TestCustodialRedistributionAddsToExistingEntry(t *testing.T) {
	entries := map[common.Address]*types.AllocationEntry{
		exchange: allocated(exchange, 200),
		team1:    allocated(team1, 50),
	}
	rule := &CustodialRedistribution{
		Excluded:        []common.Address{exchange},
		Foundation:      foundation,
		FoundationTopUp: big.NewInt(100),
		Team:            []common.Address{team1},
	}

	require.NoError(t, rule.Apply(entries))
	require.Zero(t, entries[team1].AllocatedAmount.Cmp(big.NewInt(150)))
	require.Zero(t, entries[team1].Breakdown.HoldPortion.Cmp(big.NewInt(50)))
	require.Zero(t, entries[team1].Breakdown.SpecialPortion.Cmp(big.NewInt(100)))
}

func TestCustodialRedistributionNothingRemoved(t *testing.T) {
	entries := map[common.Address]*types.AllocationEntry{addrA: allocated(addrA, 10)}
	rule := &CustodialRedistribution{
		Excluded:        []common.Address{exchange},
		Foundation:      foundation,
		FoundationTopUp: big.NewInt(100),
	}

	require.NoError(t, rule.Apply(entries))
	require.Len(t, entries, 1)
}

func TestCustodialRedistributionValidate(t *testing.T) {
	rule := &CustodialRedistribution{Excluded: []common.Address{exchange}, Foundation: exchange}
	require.Error(t, rule.Validate())

	rule = &CustodialRedistribution{Excluded: []common.Address{exchange}, Foundation: foundation, Team: []common.Address{exchange}}
	require.Error(t, rule.Validate())

	rule = &CustodialRedistribution{Foundation: foundation, FoundationTopUp: big.NewInt(-1)}
	require.Error(t, rule.Validate())
}

// TestAllocateConservesTotal checks that redistribution never changes the sum of allocations
func TestAllocateConservesTotal(t *testing.T) {
	records := make(map[string]*types.BalanceRecord)
	for i := int64(1); i <= 25; i++ {
		records[common.BigToAddress(big.NewInt(i*7919)).Hex()] = record(i*i+3, uint64(i%4), nil)
	}
	records[key(exchange)] = record(5_000, 9, nil)

	shareResult := CalcShares(records)

	plain, err := NewCalculator(testPools(), nil).Allocate(shareResult)
	require.NoError(t, err)

	rule := &CustodialRedistribution{
		Excluded:        []common.Address{exchange},
		Foundation:      foundation,
		FoundationTopUp: big.NewInt(12_345),
		Team:            []common.Address{team1, team2, team3},
	}
	redistributed, err := NewCalculator(testPools(), zap.NewNop(), rule).Allocate(shareResult)
	require.NoError(t, err)

	require.Zero(t, entryTotal(plain).Cmp(entryTotal(redistributed)))
	require.LessOrEqual(t, entryTotal(plain).Cmp(testPools().Total()), 0)

	for _, e := range redistributed {
		require.NotEqual(t, exchange, e.Address)
		require.Zero(t, e.AllocatedAmount.Cmp(e.Breakdown.Total()))
	}
}

func allocated(addr common.Address, amount int64) *types.AllocationEntry {
	e := types.NewAllocationEntry(addr, false)
	e.Breakdown.HoldPortion = big.NewInt(amount)
	e.Recompute()
	return e
}
