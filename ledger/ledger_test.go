package ledger

import (
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	token = common.HexToAddress("0x0000000000000000000000000000000000000001")
	alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func TestLedger_MintAndBalanceOf(t *testing.T) {
	l := New()

	balance, err := l.BalanceOf(token, alice)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "unknown accounts hold zero")

	require.NoError(t, l.Mint(token, alice, uint256.NewInt(100)))
	require.NoError(t, l.Mint(token, alice, uint256.NewInt(50)))

	balance, err = l.BalanceOf(token, alice)
	require.NoError(t, err)
	assert.Zero(t, uint256.NewInt(150).Cmp(balance))

	// The returned balance is a copy; mutating it must not affect the ledger.
	balance.Add(balance, uint256.NewInt(1000))
	fresh, err := l.BalanceOf(token, alice)
	require.NoError(t, err)
	assert.Zero(t, uint256.NewInt(150).Cmp(fresh))

	assert.ErrorIs(t, l.Mint(token, alice, nil), ErrNilAmount)
}

func TestLedger_Transfer(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(token, alice, uint256.NewInt(100)))

	require.NoError(t, l.Transfer(token, alice, bob, uint256.NewInt(40)))

	aliceBalance, err := l.BalanceOf(token, alice)
	require.NoError(t, err)
	assert.Zero(t, uint256.NewInt(60).Cmp(aliceBalance))

	bobBalance, err := l.BalanceOf(token, bob)
	require.NoError(t, err)
	assert.Zero(t, uint256.NewInt(40).Cmp(bobBalance))

	t.Run("Insufficient Balance", func(t *testing.T) {
		err := l.Transfer(token, alice, bob, uint256.NewInt(61))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("Unknown Token", func(t *testing.T) {
		err := l.Transfer(common.HexToAddress("0x99"), alice, bob, uint256.NewInt(1))
		assert.ErrorIs(t, err, ErrInsufficientBalance)
	})

	t.Run("Nil Amount", func(t *testing.T) {
		err := l.Transfer(token, alice, bob, nil)
		assert.ErrorIs(t, err, ErrNilAmount)
	})

	t.Run("Burn To Zero Address", func(t *testing.T) {
		require.NoError(t, l.Transfer(token, alice, common.Address{}, uint256.NewInt(10)))
		sinkBalance, err := l.BalanceOf(token, common.Address{})
		require.NoError(t, err)
		assert.Zero(t, uint256.NewInt(10).Cmp(sinkBalance))
	})
}

func TestLedger_Overflow(t *testing.T) {
	l := New()
	max := new(uint256.Int).SetAllOne()

	require.NoError(t, l.Mint(token, alice, max))

	t.Run("Mint", func(t *testing.T) {
		err := l.Mint(token, alice, uint256.NewInt(1))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBalanceOverflow)

		balance, err := l.BalanceOf(token, alice)
		require.NoError(t, err)
		assert.Zero(t, max.Cmp(balance), "failed mint must leave the balance untouched")
	})

	t.Run("Transfer", func(t *testing.T) {
		require.NoError(t, l.Mint(token, bob, uint256.NewInt(1)))

		err := l.Transfer(token, alice, bob, max)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrBalanceOverflow)

		aliceBalance, err := l.BalanceOf(token, alice)
		require.NoError(t, err)
		assert.Zero(t, max.Cmp(aliceBalance), "failed transfer must leave the sender untouched")

		bobBalance, err := l.BalanceOf(token, bob)
		require.NoError(t, err)
		assert.Zero(t, uint256.NewInt(1).Cmp(bobBalance), "failed transfer must leave the recipient untouched")
	})
}

func TestLedger_ConcurrentAccess(t *testing.T) {
	l := New()
	require.NoError(t, l.Mint(token, alice, uint256.NewInt(10000)))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Transfer(token, alice, bob, uint256.NewInt(1))
			_, _ = l.BalanceOf(token, bob)
		}()
	}
	wg.Wait()

	aliceBalance, err := l.BalanceOf(token, alice)
	require.NoError(t, err)
	bobBalance, err := l.BalanceOf(token, bob)
	require.NoError(t, err)

	total := new(uint256.Int).Add(aliceBalance, bobBalance)
	assert.Zero(t, uint256.NewInt(10000).Cmp(total), "transfers must conserve supply")
	assert.Zero(t, uint256.NewInt(100).Cmp(bobBalance))
}
