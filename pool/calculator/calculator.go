package calculator

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	pool "github.com/rwaswap/rwaswap-core-go/pool"
)

var (
	// basisPointDivisor is a constant representing 100% in basis points (10000).
	basisPointDivisor = big.NewInt(10000)

	ten     = big.NewInt(10)
	hundred = big.NewInt(100)

	// precomputed 10^dec for typical asset decimals (0..18)
	precomputedScales [19]*big.Int

	// ErrInvalidAmount is returned when an input/output amount is nil or negative.
	ErrInvalidAmount = errors.New("amount must be non-nil and non-negative")
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrTokenMismatch is returned when the specified input/output tokens do not match the pool's tokens.
	ErrTokenMismatch = errors.New("token mismatch")
	// ErrInvalidState is returned for internal calculation errors, like division by zero.
	ErrInvalidState = errors.New("invalid internal state")
	// ErrInsufficientLiquidity is returned when an amountOut is requested that is greater than or equal to the available reserve.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
)

func init() {
	// fill precomputedScales[0..18]
	precomputedScales[0] = big.NewInt(1)
	for i := 1; i < len(precomputedScales); i++ {
		precomputedScales[i] = new(big.Int).Mul(precomputedScales[i-1], ten)
	}
}

// GetScaledDecimal returns 10^dec. It returns a *big.Int that MUST NOT be modified.
// If dec <= 18 we return the precomputed immutable value.
// If dec > 18 we compute it on the fly.
func GetScaledDecimal(dec uint8) *big.Int {
	if int(dec) < len(precomputedScales) {
		return precomputedScales[dec] // safe to return as read-only
	}

	// rare path: compute on the fly
	return new(big.Int).Exp(ten, big.NewInt(int64(dec)), nil)
}

// Calculator holds reusable big.Int objects to avoid memory allocations during calculations.
// Instances of this struct are NOT safe for concurrent use by themselves.
// They are intended to be managed by the sync.Pool below.
type Calculator struct {
	// Reusable objects for GetAmountOut
	feeMultiplier   *big.Int
	amountInWithFee *big.Int
	numerator       *big.Int
	denominator     *big.Int

	// Reusable objects for GetAmountIn
	numeratorIn   *big.Int
	denominatorIn *big.Int

	// Reusable objects for SimulateSwap
	newReserve0 *big.Int
	newReserve1 *big.Int
}

// calculatorPool manages a pool of Calculator objects, allowing for safe concurrent use
// and drastically reducing memory allocations.
var calculatorPool = sync.Pool{
	New: func() any {
		return &Calculator{
			feeMultiplier:   new(big.Int),
			amountInWithFee: new(big.Int),
			numerator:       new(big.Int),
			denominator:     new(big.Int),
			numeratorIn:     new(big.Int),
			denominatorIn:   new(big.Int),
			newReserve0:     new(big.Int),
			newReserve1:     new(big.Int),
		}
	},
}

// GetAmountOut calculates the output amount for a swap, optimized to reduce allocations.
func GetAmountOut(
	amountIn *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	snap pool.Snapshot,
) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountOut(amountIn, tokenIn, tokenOut, snap)
}

// GetAmountIn calculates the required input amount for a desired output, optimized to reduce allocations.
func GetAmountIn(
	amountOut *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	snap pool.Snapshot,
) (*big.Int, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.getAmountIn(amountOut, tokenIn, tokenOut, snap)
}

// SimulateSwap calculates the result of a swap, optimized to reduce allocations.
func SimulateSwap(
	amountIn *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	snap pool.Snapshot,
) (*big.Int, pool.Snapshot, error) {
	calc := calculatorPool.Get().(*Calculator)
	defer calculatorPool.Put(calc)
	return calc.simulateSwap(amountIn, tokenIn, tokenOut, snap)
}

// getAmountOut is the internal calculation method that uses the pre-allocated fields.
func (c *Calculator) getAmountOut(
	amountIn *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	snap pool.Snapshot,
) (*big.Int, error) {
	if amountIn == nil {
		return nil, ErrNilAmount
	}
	if amountIn.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, snap)
	if err != nil {
		return nil, err
	}

	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return new(big.Int), nil
	}

	c.feeMultiplier.Sub(basisPointDivisor, big.NewInt(int64(snap.FeeBps)))
	c.amountInWithFee.Mul(amountIn, c.feeMultiplier)
	c.numerator.Mul(reserveOut, c.amountInWithFee)
	c.denominator.Mul(reserveIn, basisPointDivisor)
	c.denominator.Add(c.denominator, c.amountInWithFee)

	if c.denominator.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool denominator is zero", ErrInvalidState)
	}

	return new(big.Int).Div(c.numerator, c.denominator), nil
}

// getAmountIn is the internal calculation method for finding the required input for a desired output.
func (c *Calculator) getAmountIn(
	amountOut *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	snap pool.Snapshot,
) (*big.Int, error) {
	if amountOut == nil {
		return nil, ErrNilAmount
	}
	if amountOut.Sign() < 0 {
		return nil, ErrInvalidAmount
	}

	reserveIn, reserveOut, err := GetReserves(tokenIn, tokenOut, snap)
	if err != nil {
		return nil, err
	}

	if reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 || amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: requested amountOut (%s) is >= reserveOut (%s)", ErrInsufficientLiquidity, amountOut.String(), reserveOut.String())
	}

	c.numeratorIn.Mul(reserveIn, amountOut)
	c.numeratorIn.Mul(c.numeratorIn, basisPointDivisor)

	c.feeMultiplier.Sub(basisPointDivisor, big.NewInt(int64(snap.FeeBps)))
	c.denominatorIn.Sub(reserveOut, amountOut)
	c.denominatorIn.Mul(c.denominatorIn, c.feeMultiplier)

	if c.denominatorIn.Sign() == 0 {
		return nil, fmt.Errorf("%w: pool denominator is zero", ErrInvalidState)
	}

	// amountIn = (reserveIn * amountOut * 10000) / ((reserveOut - amountOut) * (10000 - feeBps)) + 1
	amountIn := new(big.Int).Div(c.numeratorIn, c.denominatorIn)
	return amountIn.Add(amountIn, big.NewInt(1)), nil
}

// simulateSwap is the internal calculation method that uses pre-allocated fields.
func (c *Calculator) simulateSwap(
	amountIn *big.Int,
	tokenIn common.Address,
	tokenOut common.Address,
	snap pool.Snapshot,
) (*big.Int, pool.Snapshot, error) {
	amountOut, err := c.getAmountOut(amountIn, tokenIn, tokenOut, snap)
	if err != nil {
		return nil, pool.Snapshot{}, err
	}

	newSnap := snap

	if tokenIn == snap.Token0 {
		c.newReserve0.Add(snap.Reserve0, amountIn)
		c.newReserve1.Sub(snap.Reserve1, amountOut)
	} else { // tokenIn == snap.Token1
		c.newReserve1.Add(snap.Reserve1, amountIn)
		c.newReserve0.Sub(snap.Reserve0, amountOut)
	}

	newSnap.Reserve0 = new(big.Int).Set(c.newReserve0)
	newSnap.Reserve1 = new(big.Int).Set(c.newReserve1)

	return amountOut, newSnap, nil
}

// GetReserves returns the reserves oriented for the given token pair.
func GetReserves(tokenIn, tokenOut common.Address, snap pool.Snapshot) (reserveIn, reserveOut *big.Int, err error) {
	if tokenIn == snap.Token0 && tokenOut == snap.Token1 {
		return snap.Reserve0, snap.Reserve1, nil
	} else if tokenIn == snap.Token1 && tokenOut == snap.Token0 {
		return snap.Reserve1, snap.Reserve0, nil
	}
	return nil, nil, fmt.Errorf("%w: pool %s/%s does not contain the pair %s -> %s", ErrTokenMismatch, snap.Token0, snap.Token1, tokenIn, tokenOut)
}

// GetExchangeRate quotes the marginal price of tokenIn in tokenOut, scaled
// by 10^decimalsIn, using a probe of 1% of the input-side reserve.
func GetExchangeRate(
	tokenIn, tokenOut common.Address,
	decimalsIn uint8,
	snap pool.Snapshot,
) (*big.Int, error) {
	amountIn := new(big.Int)

	// figure out amountIn = reserveSide / 100
	switch tokenIn {
	case snap.Token0:
		if snap.Reserve0.Sign() == 0 {
			return nil, errors.New("zero reserve for token0")
		}
		amountIn.Div(snap.Reserve0, hundred)
	case snap.Token1:
		if snap.Reserve1.Sign() == 0 {
			return nil, errors.New("zero reserve for token1")
		}
		amountIn.Div(snap.Reserve1, hundred)
	default:
		return nil, errors.New("tokenIn not in pool")
	}

	if amountIn.Sign() == 0 {
		return nil, errors.New("computed amountIn is zero")
	}

	amountOut, err := GetAmountOut(amountIn, tokenIn, tokenOut, snap)
	if err != nil {
		return nil, err
	}

	scaledDecimalsIn := GetScaledDecimal(decimalsIn) // read-only

	temp := new(big.Int).Mul(scaledDecimalsIn, amountOut)
	return temp.Div(temp, amountIn), nil
}
