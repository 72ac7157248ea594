package pool

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// basisPointDivisor is a constant representing 100% in basis points (10000).
var basisPointDivisor = uint256.NewInt(10000)

// Pool holds two fungible asset balances and lets callers deposit or
// withdraw proportional shares, or swap one asset for the other, preserving
// the constant-product invariant x*y=k.
//
// Every externally invoked operation runs to completion atomically under a
// single per-pool mutex; the mutex is held across the optional swap
// callback.
type Pool struct {
	mu sync.Mutex

	address common.Address // pool identity in the asset ledger
	factory common.Address // only the factory may call Initialize
	ledger  AssetLedger

	token0 common.Address
	token1 common.Address

	feeBps uint16
	feeTo  common.Address // protocol fee recipient; zero address disables

	reserve0   *uint256.Int
	reserve1   *uint256.Int
	kLast      *uint256.Int // reserve0*reserve1 after the last mint/burn, for fee-on-growth
	lastUpdate uint64

	totalShares *uint256.Int
	shares      map[common.Address]*uint256.Int

	initialized bool
}

// New creates an uninitialized pool bound to a ledger. The pool holds its
// assets at address; only factory may initialize it.
func New(address, factory common.Address, ledger AssetLedger, feeBps uint16, feeTo common.Address) *Pool {
	return &Pool{
		address:     address,
		factory:     factory,
		ledger:      ledger,
		feeBps:      feeBps,
		feeTo:       feeTo,
		reserve0:    new(uint256.Int),
		reserve1:    new(uint256.Int),
		kLast:       new(uint256.Int),
		totalShares: new(uint256.Int),
		shares:      make(map[common.Address]*uint256.Int),
	}
}

// Initialize sets the immutable token pair. One-time, factory-only.
func (p *Pool) Initialize(caller, token0, token1 common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if caller != p.factory {
		return fmt.Errorf("%w: %s", ErrUnauthorized, caller)
	}
	if p.initialized {
		return ErrAlreadyInitialized
	}
	if token0 == token1 {
		return ErrIdenticalTokens
	}
	if token0 == (common.Address{}) || token1 == (common.Address{}) {
		return ErrZeroAddress
	}

	p.token0 = token0
	p.token1 = token1
	p.initialized = true
	return nil
}

// Address returns the pool's identity in the asset ledger.
func (p *Pool) Address() common.Address { return p.address }

// Token0 returns the first asset of the immutable pair.
func (p *Pool) Token0() common.Address { return p.token0 }

// Token1 returns the second asset of the immutable pair.
func (p *Pool) Token1() common.Address { return p.token1 }

// FeeBps returns the swap fee in basis points.
func (p *Pool) FeeBps() uint16 { return p.feeBps }

// GetReserves returns the tracked balances and the time of the last
// reconciliation.
func (p *Pool) GetReserves() Reserves {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Reserves{
		Reserve0:   new(uint256.Int).Set(p.reserve0),
		Reserve1:   new(uint256.Int).Set(p.reserve1),
		LastUpdate: p.lastUpdate,
	}
}

// TotalShares returns the sum of all outstanding ownership shares.
func (p *Pool) TotalShares() *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return new(uint256.Int).Set(p.totalShares)
}

// SharesOf returns account's share balance.
func (p *Pool) SharesOf(account common.Address) *uint256.Int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.shares[account]; ok {
		return new(uint256.Int).Set(s)
	}
	return new(uint256.Int)
}

// TransferShares moves shares between holders. Burning requires shares to
// be transferred to the pool's own address first (pull-then-burn).
func (p *Pool) TransferShares(from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.moveShares(from, to, amount)
}

// Snapshot returns a value-type view for the quoting calculator.
func (p *Pool) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Token0:   p.token0,
		Token1:   p.token1,
		Reserve0: p.reserve0.ToBig(),
		Reserve1: p.reserve1.ToBig(),
		FeeBps:   p.feeBps,
	}
}

// Mint issues shares to recipient for the assets deposited since the last
// reconciliation. The first deposit locks MinimumLiquidity shares to the
// sink address; later deposits mint the minimum of the two proportional
// ratios, floored.
func (p *Pool) Mint(recipient common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil, ErrNotInitialized
	}

	balance0, balance1, err := p.balances()
	if err != nil {
		return nil, err
	}
	amount0, err := checkedSub(balance0, p.reserve0)
	if err != nil {
		return nil, err
	}
	amount1, err := checkedSub(balance1, p.reserve1)
	if err != nil {
		return nil, err
	}

	feeOn, feeShares, err := p.feeAccrual()
	if err != nil {
		return nil, err
	}
	effectiveTotal, err := checkedAdd(p.totalShares, feeShares)
	if err != nil {
		return nil, err
	}

	var minted, lock *uint256.Int
	if effectiveTotal.IsZero() {
		product, err := checkedMul(amount0, amount1)
		if err != nil {
			return nil, err
		}
		root := sqrtFloor(product)
		lock = uint256.NewInt(MinimumLiquidity)
		if !root.Gt(lock) {
			return nil, fmt.Errorf("%w: sqrt(%s*%s) <= %d", ErrInsufficientLiquidityMinted, amount0, amount1, MinimumLiquidity)
		}
		minted = new(uint256.Int).Sub(root, lock)
	} else {
		shares0, err := mulDiv(amount0, effectiveTotal, p.reserve0)
		if err != nil {
			return nil, err
		}
		shares1, err := mulDiv(amount1, effectiveTotal, p.reserve1)
		if err != nil {
			return nil, err
		}
		minted = new(uint256.Int).Set(minU256(shares0, shares1))
	}

	if minted.IsZero() {
		return nil, ErrInsufficientLiquidityMinted
	}

	// All checks passed; commit fee shares, the bootstrap lock, and the
	// recipient's shares together.
	if !feeShares.IsZero() {
		p.creditShares(p.feeTo, feeShares)
	}
	if lock != nil {
		p.creditShares(SinkAddress, lock)
	}
	p.creditShares(recipient, minted)

	p.update(balance0, balance1)
	if feeOn {
		if p.kLast, err = checkedMul(p.reserve0, p.reserve1); err != nil {
			return nil, err
		}
	} else {
		p.kLast.Clear()
	}
	return minted, nil
}

// Burn destroys the shares previously transferred to the pool's own share
// account and pays out both assets proportionally, floored.
func (p *Pool) Burn(recipient common.Address) (amount0, amount1 *uint256.Int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return nil, nil, ErrNotInitialized
	}

	burned := new(uint256.Int)
	if s, ok := p.shares[p.address]; ok {
		burned.Set(s)
	}

	feeOn, feeShares, err := p.feeAccrual()
	if err != nil {
		return nil, nil, err
	}
	effectiveTotal, err := checkedAdd(p.totalShares, feeShares)
	if err != nil {
		return nil, nil, err
	}
	if burned.IsZero() || effectiveTotal.IsZero() {
		return nil, nil, fmt.Errorf("%w: %s shares", ErrInsufficientLiquidityBurned, burned)
	}

	amount0, err = mulDiv(burned, p.reserve0, effectiveTotal)
	if err != nil {
		return nil, nil, err
	}
	amount1, err = mulDiv(burned, p.reserve1, effectiveTotal)
	if err != nil {
		return nil, nil, err
	}
	if amount0.IsZero() || amount1.IsZero() {
		return nil, nil, fmt.Errorf("%w: %s shares", ErrInsufficientLiquidityBurned, burned)
	}

	if !feeShares.IsZero() {
		p.creditShares(p.feeTo, feeShares)
	}
	delete(p.shares, p.address)
	p.totalShares.Sub(p.totalShares, burned)

	if err := p.ledger.Transfer(p.token0, p.address, recipient, amount0); err != nil {
		return nil, nil, err
	}
	if err := p.ledger.Transfer(p.token1, p.address, recipient, amount1); err != nil {
		return nil, nil, err
	}

	balance0, balance1, err := p.balances()
	if err != nil {
		return nil, nil, err
	}
	p.update(balance0, balance1)
	if feeOn {
		if p.kLast, err = checkedMul(p.reserve0, p.reserve1); err != nil {
			return nil, nil, err
		}
	} else {
		p.kLast.Clear()
	}
	return amount0, amount1, nil
}

// Swap optimistically transfers the requested outputs, invokes the optional
// callback, then verifies the fee-adjusted constant product did not
// decrease. On any failure after the optimistic transfer the outputs are
// clawed back from the recipient, so a rejected swap leaves no partial
// state behind.
func (p *Pool) Swap(amount0Out, amount1Out *uint256.Int, recipient common.Address, data []byte, callback SwapCallback) error {
	if amount0Out == nil || amount1Out == nil {
		return ErrNilAmount
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return ErrNotInitialized
	}
	if amount0Out.IsZero() && amount1Out.IsZero() {
		return ErrInsufficientOutputAmount
	}
	if !amount0Out.Lt(p.reserve0) || !amount1Out.Lt(p.reserve1) {
		return fmt.Errorf("%w: out (%s, %s) vs reserves (%s, %s)",
			ErrInsufficientLiquidity, amount0Out, amount1Out, p.reserve0, p.reserve1)
	}
	if recipient == p.token0 || recipient == p.token1 {
		return ErrInvalidRecipient
	}

	// optimistic output transfer
	if !amount0Out.IsZero() {
		if err := p.ledger.Transfer(p.token0, p.address, recipient, amount0Out); err != nil {
			return err
		}
	}
	if !amount1Out.IsZero() {
		if err := p.ledger.Transfer(p.token1, p.address, recipient, amount1Out); err != nil {
			return err
		}
	}

	// Flash-swap window. The pool lock stays held; the callback may act on
	// the ledger or other pools but not re-enter this one.
	if callback != nil {
		if err := callback(amount0Out, amount1Out, data); err != nil {
			return p.clawBack(recipient, amount0Out, amount1Out, fmt.Errorf("swap callback: %w", err))
		}
	}

	if err := p.verifySwap(amount0Out, amount1Out); err != nil {
		return p.clawBack(recipient, amount0Out, amount1Out, err)
	}
	return nil
}

// verifySwap reconciles balances after the optimistic transfer and callback
// and enforces the fee-adjusted invariant. On success it commits the new
// reserves.
func (p *Pool) verifySwap(amount0Out, amount1Out *uint256.Int) error {
	balance0, balance1, err := p.balances()
	if err != nil {
		return err
	}

	amount0In, err := inputReceived(balance0, p.reserve0, amount0Out)
	if err != nil {
		return err
	}
	amount1In, err := inputReceived(balance1, p.reserve1, amount1Out)
	if err != nil {
		return err
	}
	if amount0In.IsZero() && amount1In.IsZero() {
		return ErrInsufficientInputAmount
	}

	adjusted0, err := feeAdjusted(balance0, amount0In, p.feeBps)
	if err != nil {
		return err
	}
	adjusted1, err := feeAdjusted(balance1, amount1In, p.feeBps)
	if err != nil {
		return err
	}

	newK, err := checkedMul(adjusted0, adjusted1)
	if err != nil {
		return err
	}
	oldK, err := checkedMul(p.reserve0, p.reserve1)
	if err != nil {
		return err
	}
	scale, err := checkedMul(basisPointDivisor, basisPointDivisor)
	if err != nil {
		return err
	}
	if oldK, err = checkedMul(oldK, scale); err != nil {
		return err
	}
	if newK.Lt(oldK) {
		return fmt.Errorf("%w: %s < %s (scaled)", ErrKValueDecreased, newK, oldK)
	}

	p.update(balance0, balance1)
	return nil
}

// clawBack undoes the optimistic output transfer of a failed swap. There is
// no host runtime to revert the ledger, so the pool issues compensating
// transfers itself; if the recipient no longer holds the funds the ledger
// error is reported alongside the original failure.
func (p *Pool) clawBack(recipient common.Address, amount0Out, amount1Out *uint256.Int, cause error) error {
	if !amount0Out.IsZero() {
		if err := p.ledger.Transfer(p.token0, recipient, p.address, amount0Out); err != nil {
			return fmt.Errorf("%w (clawback of %s failed: %v)", cause, p.token0, err)
		}
	}
	if !amount1Out.IsZero() {
		if err := p.ledger.Transfer(p.token1, recipient, p.address, amount1Out); err != nil {
			return fmt.Errorf("%w (clawback of %s failed: %v)", cause, p.token1, err)
		}
	}
	return cause
}

// Sync reconciles the tracked reserves to the actual ledger balances.
func (p *Pool) Sync() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return ErrNotInitialized
	}
	balance0, balance1, err := p.balances()
	if err != nil {
		return err
	}
	p.update(balance0, balance1)
	return nil
}

// Skim sweeps any balance in excess of the tracked reserves to recipient.
func (p *Pool) Skim(recipient common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized {
		return ErrNotInitialized
	}
	balance0, balance1, err := p.balances()
	if err != nil {
		return err
	}
	excess0, err := checkedSub(balance0, p.reserve0)
	if err != nil {
		return err
	}
	excess1, err := checkedSub(balance1, p.reserve1)
	if err != nil {
		return err
	}
	if !excess0.IsZero() {
		if err := p.ledger.Transfer(p.token0, p.address, recipient, excess0); err != nil {
			return err
		}
	}
	if !excess1.IsZero() {
		if err := p.ledger.Transfer(p.token1, p.address, recipient, excess1); err != nil {
			return err
		}
	}
	return nil
}

// --- internals (callers hold p.mu) ---

func (p *Pool) balances() (*uint256.Int, *uint256.Int, error) {
	balance0, err := p.ledger.BalanceOf(p.token0, p.address)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger balance of %s: %w", p.token0, err)
	}
	balance1, err := p.ledger.BalanceOf(p.token1, p.address)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger balance of %s: %w", p.token1, err)
	}
	return balance0, balance1, nil
}

func (p *Pool) update(balance0, balance1 *uint256.Int) {
	p.reserve0.Set(balance0)
	p.reserve1.Set(balance1)
	p.lastUpdate = uint64(time.Now().Unix())
}

func (p *Pool) creditShares(account common.Address, amount *uint256.Int) {
	balance, ok := p.shares[account]
	if !ok {
		balance = new(uint256.Int)
		p.shares[account] = balance
	}
	balance.Add(balance, amount)
	p.totalShares.Add(p.totalShares, amount)
}

func (p *Pool) moveShares(from, to common.Address, amount *uint256.Int) error {
	fromBalance, ok := p.shares[from]
	if !ok || fromBalance.Lt(amount) {
		return fmt.Errorf("%w: %s", ErrInsufficientShares, from)
	}
	toBalance, ok := p.shares[to]
	if !ok {
		toBalance = new(uint256.Int)
		p.shares[to] = toBalance
	}
	fromBalance.Sub(fromBalance, amount)
	toBalance.Add(toBalance, amount)
	return nil
}

// feeAccrual computes the protocol-fee shares owed to feeTo for growth of
// sqrt(k) since the last mint/burn. Nothing is credited here; callers commit
// the returned shares only after every check of the operation has passed, so
// a failed mint or burn never realizes the accrual.
func (p *Pool) feeAccrual() (bool, *uint256.Int, error) {
	feeShares := new(uint256.Int)
	feeOn := p.feeTo != (common.Address{})
	if !feeOn || p.kLast.IsZero() {
		return feeOn, feeShares, nil
	}

	k, err := checkedMul(p.reserve0, p.reserve1)
	if err != nil {
		return false, nil, err
	}
	rootK := sqrtFloor(k)
	rootKLast := sqrtFloor(p.kLast)
	if !rootK.Gt(rootKLast) {
		return true, feeShares, nil
	}

	growth := new(uint256.Int).Sub(rootK, rootKLast)
	numerator, err := checkedMul(p.totalShares, growth)
	if err != nil {
		return false, nil, err
	}
	denominator, err := checkedMul(rootK, uint256.NewInt(5))
	if err != nil {
		return false, nil, err
	}
	denominator.Add(denominator, rootKLast)

	feeShares.Div(numerator, denominator)
	return true, feeShares, nil
}

// inputReceived computes how much of an asset arrived during the swap:
// balance - (reserve - amountOut), floored at zero.
func inputReceived(balance, reserve, amountOut *uint256.Int) (*uint256.Int, error) {
	expected, err := checkedSub(reserve, amountOut)
	if err != nil {
		return nil, err
	}
	if !balance.Gt(expected) {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Sub(balance, expected), nil
}

// feeAdjusted returns balance*10000 - amountIn*feeBps, the fee-side of the
// invariant comparison.
func feeAdjusted(balance, amountIn *uint256.Int, feeBps uint16) (*uint256.Int, error) {
	scaled, err := checkedMul(balance, basisPointDivisor)
	if err != nil {
		return nil, err
	}
	fee, err := checkedMul(amountIn, uint256.NewInt(uint64(feeBps)))
	if err != nil {
		return nil, err
	}
	return checkedSub(scaled, fee)
}

// BigReserves is a convenience for callers doing big.Int pathfinding math.
func (p *Pool) BigReserves() (*big.Int, *big.Int) {
	r := p.GetReserves()
	return r.Reserve0.ToBig(), r.Reserve1.ToBig()
}
