package pool

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var maxUint256 = new(uint256.Int).SetAllOne()

func TestCheckedArithmetic(t *testing.T) {
	t.Run("Add", func(t *testing.T) {
		z, err := checkedAdd(uint256.NewInt(2), uint256.NewInt(3))
		require.NoError(t, err)
		assert.Zero(t, uint256.NewInt(5).Cmp(z))

		_, err = checkedAdd(maxUint256, uint256.NewInt(1))
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
	})

	t.Run("Sub", func(t *testing.T) {
		z, err := checkedSub(uint256.NewInt(5), uint256.NewInt(3))
		require.NoError(t, err)
		assert.Zero(t, uint256.NewInt(2).Cmp(z))

		_, err = checkedSub(uint256.NewInt(3), uint256.NewInt(5))
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
	})

	t.Run("Mul", func(t *testing.T) {
		z, err := checkedMul(uint256.NewInt(6), uint256.NewInt(7))
		require.NoError(t, err)
		assert.Zero(t, uint256.NewInt(42).Cmp(z))

		_, err = checkedMul(maxUint256, uint256.NewInt(2))
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
	})
}

func TestMulDiv(t *testing.T) {
	t.Run("Floors", func(t *testing.T) {
		z, err := mulDiv(uint256.NewInt(7), uint256.NewInt(3), uint256.NewInt(2))
		require.NoError(t, err)
		assert.Zero(t, uint256.NewInt(10).Cmp(z)) // floor(21/2)
	})

	t.Run("Intermediate Product Beyond 256 Bits", func(t *testing.T) {
		// max * max overflows 256 bits but max*max/max is exact.
		z, err := mulDiv(maxUint256, maxUint256, maxUint256)
		require.NoError(t, err)
		assert.Zero(t, maxUint256.Cmp(z))
	})

	t.Run("Quotient Overflow", func(t *testing.T) {
		_, err := mulDiv(maxUint256, uint256.NewInt(2), uint256.NewInt(1))
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
	})

	t.Run("Division By Zero", func(t *testing.T) {
		_, err := mulDiv(uint256.NewInt(1), uint256.NewInt(1), new(uint256.Int))
		assert.ErrorIs(t, err, ErrArithmeticOverflow)
	})
}

func TestSqrtFloor(t *testing.T) {
	testCases := []struct {
		in       uint64
		expected uint64
	}{
		{0, 0},
		{1, 1},
		{3, 1},
		{4, 2},
		{999999, 999},
		{1000000, 1000},
	}
	for _, tc := range testCases {
		z := sqrtFloor(uint256.NewInt(tc.in))
		assert.Zero(t, uint256.NewInt(tc.expected).Cmp(z), "sqrt(%d)", tc.in)
	}
}

func TestMinU256(t *testing.T) {
	a, b := uint256.NewInt(10), uint256.NewInt(20)
	assert.Same(t, a, minU256(a, b))
	assert.Same(t, a, minU256(b, a))
	assert.Same(t, b, minU256(b, b))
}
