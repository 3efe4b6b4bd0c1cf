package staking

import (
	"github.com/holiman/uint256"
)

// mulDiv computes a*b/d with truncation, failing when a*b overflows.
func mulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return product.Div(product, d), nil
}

func percentOf(amount *uint256.Int, pct uint64) (*uint256.Int, error) {
	return mulDiv(amount, uint256.NewInt(pct), uint256.NewInt(percentDenominator))
}

func addAmounts(a, b *uint256.Int) (*uint256.Int, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return sum, nil
}

// subFloor subtracts b from a, saturating at zero.
func subFloor(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
