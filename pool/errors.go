package pool

import "errors"

var (
	// ErrNotInitialized is returned when an operation is attempted on a pool before Initialize.
	ErrNotInitialized = errors.New("pool not initialized")
	// ErrAlreadyInitialized is returned when Initialize is called twice.
	ErrAlreadyInitialized = errors.New("pool already initialized")
	// ErrUnauthorized is returned when Initialize is called by anyone but the factory.
	ErrUnauthorized = errors.New("caller is not the factory")
	// ErrIdenticalTokens is returned when both pool tokens are the same address.
	ErrIdenticalTokens = errors.New("identical token addresses")
	// ErrZeroAddress is returned when a required address is the zero address.
	ErrZeroAddress = errors.New("zero address")
	// ErrNilAmount is returned when a nil pointer is passed for an amount.
	ErrNilAmount = errors.New("nil pointer passed as amount")

	// ErrInsufficientLiquidityMinted is returned when a deposit produces zero shares.
	ErrInsufficientLiquidityMinted = errors.New("insufficient liquidity minted")
	// ErrInsufficientLiquidityBurned is returned when burning shares yields zero of either asset.
	ErrInsufficientLiquidityBurned = errors.New("insufficient liquidity burned")
	// ErrInsufficientOutputAmount is returned when a swap requests no output at all.
	ErrInsufficientOutputAmount = errors.New("insufficient output amount")
	// ErrInsufficientInputAmount is returned when a swap received no input.
	ErrInsufficientInputAmount = errors.New("insufficient input amount")
	// ErrInsufficientLiquidity is returned when a swap requests more than the reserves hold.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity for swap")
	// ErrInsufficientShares is returned when a share transfer exceeds the holder's balance.
	ErrInsufficientShares = errors.New("insufficient share balance")
	// ErrInvalidRecipient is returned when swap output is addressed to one of the pool tokens.
	ErrInvalidRecipient = errors.New("invalid swap recipient")
	// ErrKValueDecreased is returned when a swap would shrink the constant product.
	ErrKValueDecreased = errors.New("constant product decreased")

	// ErrArithmeticOverflow is returned when a computation exceeds 256 bits.
	// State is never silently wrapped.
	ErrArithmeticOverflow = errors.New("arithmetic overflow")

	// ErrPoolExists is returned when creating a pool for a pair that already has one.
	ErrPoolExists = errors.New("pool already exists for pair")
	// ErrPoolNotFound is returned when looking up a pair with no pool.
	ErrPoolNotFound = errors.New("pool not found")
)
