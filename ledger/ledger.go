package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrNilAmount is returned when a nil amount is passed.
	ErrNilAmount = errors.New("nil pointer passed as amount")
	// ErrBalanceOverflow is returned when a credit would exceed 2^256-1.
	ErrBalanceOverflow = errors.New("balance overflow")
)

// Ledger is an in-memory fungible-asset ledger. It tracks per-token,
// per-account balances and is safe for concurrent use.
//
// Transfers to the zero address are allowed and act as a burn sink.
type Ledger struct {
	mu       sync.RWMutex
	balances map[common.Address]map[common.Address]*uint256.Int // token -> account -> balance
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances: make(map[common.Address]map[common.Address]*uint256.Int),
	}
}

// Mint credits amount of token to account, creating the account if needed.
func (l *Ledger) Mint(token, account common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	accounts, ok := l.balances[token]
	if !ok {
		accounts = make(map[common.Address]*uint256.Int)
		l.balances[token] = accounts
	}

	balance, ok := accounts[account]
	if !ok {
		balance = new(uint256.Int)
		accounts[account] = balance
	}
	sum, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return fmt.Errorf("%w: account %s of token %s", ErrBalanceOverflow, account, token)
	}
	balance.Set(sum)
	return nil
}

// BalanceOf returns a copy of account's balance of token. Unknown accounts
// hold zero.
func (l *Ledger) BalanceOf(token, account common.Address) (*uint256.Int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	accounts, ok := l.balances[token]
	if !ok {
		return new(uint256.Int), nil
	}
	balance, ok := accounts[account]
	if !ok {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(balance), nil
}

// Transfer moves amount of token from one account to another.
func (l *Ledger) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrNilAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	accounts, ok := l.balances[token]
	if !ok {
		return fmt.Errorf("%w: token %s has no holders", ErrInsufficientBalance, token)
	}
	fromBalance, ok := accounts[from]
	if !ok || fromBalance.Lt(amount) {
		return fmt.Errorf("%w: account %s of token %s", ErrInsufficientBalance, from, token)
	}

	toBalance, ok := accounts[to]
	if !ok {
		toBalance = new(uint256.Int)
		accounts[to] = toBalance
	}

	sum, overflow := new(uint256.Int).AddOverflow(toBalance, amount)
	if overflow {
		return fmt.Errorf("%w: account %s of token %s", ErrBalanceOverflow, to, token)
	}
	fromBalance.Sub(fromBalance, amount)
	toBalance.Set(sum)
	return nil
}
