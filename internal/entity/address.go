package entity

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/Zilliqa/gozilliqa-sdk/bech32"
)

var (
	ErrInvalidAddress = errors.New("invalid address")
)

// NormalizeAddress accepts a bech32 (zil1...) or base16 address and returns the
// lower case 0x prefixed base16 form used as the identity everywhere else.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(strings.ToLower(addr), "zil1") {
		b16, err := bech32.FromBech32Addr(addr)
		if err != nil {
			return "", ErrInvalidAddress
		}
		addr = b16
	}

	addr = strings.ToLower(strings.TrimPrefix(strings.TrimPrefix(addr, "0x"), "0X"))
	if len(addr) != 40 {
		return "", ErrInvalidAddress
	}
	if _, err := hex.DecodeString(addr); err != nil {
		return "", ErrInvalidAddress
	}

	return "0x" + addr, nil
}

func ToBech32(addr string) string {
	b32, err := bech32.ToBech32Address(strings.TrimPrefix(strings.ToLower(addr), "0x"))
	if err != nil {
		return ""
	}
	return b32
}

// CanonicalAddress is the identity form used for comparisons and as a store
// key. Anything that is not an address is only trimmed and lower cased.
func CanonicalAddress(addr string) string {
	if normalized, err := NormalizeAddress(addr); err == nil {
		return normalized
	}
	return strings.ToLower(strings.TrimSpace(addr))
}
