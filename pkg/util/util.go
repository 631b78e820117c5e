package util

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeAddress validates a hex address and returns its lowercase 0x form,
// the canonical key used by every address-keyed map in this module.
func NormalizeAddress(addr string) (string, error) {
	trimmed := strings.TrimSpace(addr)
	if !common.IsHexAddress(trimmed) {
		return "", fmt.Errorf("invalid address: %q", addr)
	}
	return strings.ToLower(common.HexToAddress(trimmed).Hex()), nil
}

// AddressKey returns the canonical lowercase key for an address.
func AddressKey(addr common.Address) string {
	return strings.ToLower(addr.Hex())
}

// ParseAddresses normalizes a list of addresses, failing on the first invalid one.
func ParseAddresses(addrs []string) ([]common.Address, error) {
	out := make([]common.Address, 0, len(addrs))
	for _, a := range addrs {
		if _, err := NormalizeAddress(a); err != nil {
			return nil, err
		}
		out = append(out, common.HexToAddress(strings.TrimSpace(a)))
	}
	return out, nil
}
