package pool

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MinimumLiquidity is the share amount permanently locked to the sink
// address on the very first deposit. It pins the initial share price so a
// first depositor cannot donate assets and withdraw disproportionately.
const MinimumLiquidity = 1000

// SinkAddress receives the permanently locked minimum-liquidity shares.
// Nothing can spend from it.
var SinkAddress = common.Address{}

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// AssetLedger is the external fungible-asset boundary the pool consumes.
// Deposits are observed as balance increases at the pool's own address;
// withdrawals are transfers the pool triggers.
type AssetLedger interface {
	BalanceOf(token, account common.Address) (*uint256.Int, error)
	Transfer(token, from, to common.Address, amount *uint256.Int) error
}

// SwapCallback is invoked on the recipient between the optimistic output
// transfer and the invariant check, enabling flash-style swaps with
// repayment. The pool's lock is held for the whole call: the callback may
// operate on other pools or the ledger, but must not call back into the
// same pool.
type SwapCallback func(amount0Out, amount1Out *uint256.Int, data []byte) error

// Reserves is a point-in-time view of the pool's tracked balances.
type Reserves struct {
	Reserve0   *uint256.Int `json:"reserve0"`
	Reserve1   *uint256.Int `json:"reserve1"`
	LastUpdate uint64       `json:"lastUpdate"` // unix seconds of the last reconciliation
}

// Snapshot is a value-type view of a pool used by the quoting calculator.
// Reserves are big.Int so callers can feed them straight into pathfinding
// arithmetic.
type Snapshot struct {
	Token0   common.Address `json:"token0"`
	Token1   common.Address `json:"token1"`
	Reserve0 *big.Int       `json:"reserve0"`
	Reserve1 *big.Int       `json:"reserve1"`
	FeeBps   uint16         `json:"feeBps"` // i.e 30 for 0.3%
}
