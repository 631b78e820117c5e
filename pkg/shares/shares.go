// Package shares turns merged balance records into per-address token allocations.
package shares

import (
	"math/big"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/types"
)

// Pools are the token amounts, in smallest units, distributed by each share kind.
type Pools struct {
	ClaimPool *big.Int `json:"claimPool"`
	HoldPool  *big.Int `json:"holdPool"`
	StakePool *big.Int `json:"stakePool"`
}

// Total is the sum of the three pools.
func (p Pools) Total() *big.Int {
	return Sum(p.ClaimPool, p.HoldPool, p.StakePool)
}

// ShareResult is the output of CalcShares.
type ShareResult struct {
	TotalBalance *big.Int
	TotalClaims  *big.Int
	TotalStake   *big.Int

	// Records are copies of the input records with GDRepShare and ClaimRepShare filled
	Records map[string]*types.BalanceRecord
}

// CalcShares computes the holding and claim shares of every record.
//
// StakeRepShare is carried over untouched; the aggregator already normalized it.
// The input map is not modified.
func CalcShares(records map[string]*types.BalanceRecord) *ShareResult {
	result := &ShareResult{
		TotalBalance: new(big.Int),
		TotalClaims:  new(big.Int),
		TotalStake:   new(big.Int),
		Records:      make(map[string]*types.BalanceRecord, len(records)),
	}

	for _, rec := range records {
		if rec == nil {
			continue
		}
		if rec.Balance != nil {
			result.TotalBalance.Add(result.TotalBalance, rec.Balance)
		}
		if rec.Stake != nil {
			result.TotalStake.Add(result.TotalStake, rec.Stake)
		}
		result.TotalClaims.Add(result.TotalClaims, new(big.Int).SetUint64(rec.Claims))
	}

	for addr, rec := range records {
		if rec == nil {
			continue
		}
		out := rec.Copy()
		out.GDRepShare = Fraction(out.Balance, result.TotalBalance)
		out.ClaimRepShare = Fraction(new(big.Int).SetUint64(out.Claims), result.TotalClaims)
		result.Records[addr] = out
	}

	return result
}
