package pool

import (
	"fmt"

	"github.com/holiman/uint256"
)

// checkedAdd returns x+y or ErrArithmeticOverflow.
func checkedAdd(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s + %s", ErrArithmeticOverflow, x, y)
	}
	return z, nil
}

// checkedSub returns x-y or ErrArithmeticOverflow on underflow.
func checkedSub(x, y *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(x, y)
	if underflow {
		return nil, fmt.Errorf("%w: %s - %s", ErrArithmeticOverflow, x, y)
	}
	return z, nil
}

// checkedMul returns x*y or ErrArithmeticOverflow.
func checkedMul(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(x, y)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s", ErrArithmeticOverflow, x, y)
	}
	return z, nil
}

// mulDiv returns floor(x*y/d) with a 512-bit intermediate product.
// The quotient itself must still fit in 256 bits.
func mulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrArithmeticOverflow)
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, fmt.Errorf("%w: %s * %s / %s", ErrArithmeticOverflow, x, y, d)
	}
	return z, nil
}

// sqrtFloor returns floor(sqrt(x)).
func sqrtFloor(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sqrt(x)
}

func minU256(x, y *uint256.Int) *uint256.Int {
	if x.Lt(y) {
		return x
	}
	return y
}
