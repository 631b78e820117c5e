// Package aggregator merges per-source partial balance maps into one record per address.
package aggregator

import (
	"math"
	"math/big"
	"math/bits"
	"strings"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/shares"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/types"
)

// Config holds the aggregator settings.
type Config struct {
	// ExcludedAddresses are protocol-internal contracts (routers, bridges,
	// swap helpers) whose balances must never reach the airdrop.
	ExcludedAddresses []string
}

// Aggregator merges partial records from independent data sources.
type Aggregator struct {
	excluded map[string]struct{}
}

// NewAggregator creates an aggregator for the given config. A nil config excludes nothing.
func NewAggregator(cfg *Config) *Aggregator {
	a := &Aggregator{excluded: make(map[string]struct{})}
	if cfg == nil {
		return a
	}
	for _, addr := range cfg.ExcludedAddresses {
		a.excluded[normalizeKey(addr)] = struct{}{}
	}
	return a
}

// IsExcluded reports whether addr is in the excluded set, ignoring case.
func (a *Aggregator) IsExcluded(addr string) bool {
	_, ok := a.excluded[normalizeKey(addr)]
	return ok
}

// Merge folds the partial maps left to right into one record per address.
//
// Balance, Claims and Stake are summed. IsNotContract takes the first non-nil
// value seen for an address and defaults to true. Excluded addresses are
// dropped. Once every source is merged, StakeRepShare is set to each address's
// fraction of the total stake weight. Negative quantities are ignored.
func (a *Aggregator) Merge(partials ...map[string]*types.PartialRecord) map[string]*types.BalanceRecord {
	merged := make(map[string]*types.BalanceRecord)
	contractKnown := make(map[string]bool)

	for _, partial := range partials {
		for addr, p := range partial {
			key := normalizeKey(addr)
			if a.IsExcluded(key) {
				continue
			}

			rec, ok := merged[key]
			if !ok {
				rec = types.DefaultRecord()
				merged[key] = rec
			}
			if p == nil {
				continue
			}

			if p.Balance != nil && p.Balance.Sign() > 0 {
				rec.Balance.Add(rec.Balance, p.Balance)
			}
			if p.Claims != nil {
				rec.Claims = addClaims(rec.Claims, *p.Claims)
			}
			if p.Stake != nil && p.Stake.Sign() > 0 {
				rec.Stake.Add(rec.Stake, p.Stake)
			}
			if p.IsNotContract != nil && !contractKnown[key] {
				rec.IsNotContract = *p.IsNotContract
				contractKnown[key] = true
			}
		}
	}

	normalizeStake(merged)
	return merged
}

// normalizeStake sets StakeRepShare = stake / totalStake for every record.
func normalizeStake(records map[string]*types.BalanceRecord) {
	totalStake := new(big.Int)
	for _, rec := range records {
		totalStake.Add(totalStake, rec.Stake)
	}
	for _, rec := range records {
		rec.StakeRepShare = shares.Fraction(rec.Stake, totalStake)
	}
}

// addClaims saturates at MaxUint64 instead of wrapping
func addClaims(a, b uint64) uint64 {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

func normalizeKey(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
