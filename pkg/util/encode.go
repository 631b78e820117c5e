package util

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

var (
	addressType, _ = abi.NewType("address", "", nil)
	uint256Type, _ = abi.NewType("uint256", "", nil)

	addressAmountArgs = abi.Arguments{{Type: addressType}, {Type: uint256Type}}

	// MaxUint256 is 2^256 - 1
	MaxUint256 = math.MaxBig256
)

// EncodeAddressAmount returns abi.encode(address, uint256), the 64 byte tuple
// encoding hashed into airdrop merkle leaves.
func EncodeAddressAmount(addr common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil {
		return nil, fmt.Errorf("amount cannot be nil")
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount cannot be negative: %s", amount.String())
	}
	if amount.Cmp(MaxUint256) > 0 {
		return nil, fmt.Errorf("amount overflows uint256: %s", amount.String())
	}

	encoded, err := addressAmountArgs.Pack(addr, amount)
	if err != nil {
		return nil, err
	}

	return encoded, nil
}
