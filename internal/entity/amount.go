package entity

import (
	"errors"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// QaPerZil is the power of ten between ZIL and Qa, the smallest unit.
const QaPerZil int32 = 12

var (
	ErrInvalidAmount = errors.New("invalid amount")
)

// ParseAmount parses a base 10 integer amount of Qa.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, ErrInvalidAmount
	}
	return v, nil
}

// ParseZil converts a human ZIL amount such as "0.1" into Qa.
func ParseZil(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, ErrInvalidAmount
	}

	qa := d.Shift(QaPerZil)
	if !qa.Equal(qa.Truncate(0)) {
		return nil, ErrInvalidAmount
	}

	return qa.BigInt(), nil
}

func FormatZil(qa *big.Int) string {
	if qa == nil {
		return "0"
	}
	return decimal.NewFromBigInt(qa, -QaPerZil).String()
}
