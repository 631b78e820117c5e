package shares

import (
	"math/big"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/types"
)

// Fraction returns num/den as a fixed-point share scaled by types.SharePrecision,
// rounded down. A nil or zero denominator yields 0.
func Fraction(num, den *big.Int) *big.Int {
	if num == nil || den == nil || den.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(num, types.SharePrecision)
	return out.Quo(out, den)
}

// MulShare applies a fixed-point share to an amount, rounding down.
func MulShare(share, amount *big.Int) *big.Int {
	if share == nil || amount == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(share, amount)
	return out.Quo(out, types.SharePrecision)
}

// Sum adds every non-nil value.
func Sum(values ...*big.Int) *big.Int {
	total := new(big.Int)
	for _, v := range values {
		if v != nil {
			total.Add(total, v)
		}
	}
	return total
}
