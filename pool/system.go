package pool

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
)

// SystemConfig holds the configuration for a pool System.
type SystemConfig struct {
	Ledger AssetLedger
	Logger Logger

	// FeeBps is the swap fee applied by every pool the system creates.
	FeeBps uint16
	// FeeTo receives protocol-fee shares on k-growth; zero address disables.
	FeeTo common.Address

	// Registerer receives the system's metrics. Optional.
	Registerer prometheus.Registerer
}

func (c *SystemConfig) validate() error {
	if c.Ledger == nil {
		return errors.New("config: Ledger is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.FeeBps >= 10000 {
		return errors.New("config: FeeBps must be below 10000")
	}
	return nil
}

// pairKey is the canonical (sorted) identity of a token pair.
type pairKey struct {
	token0 common.Address
	token1 common.Address
}

// System is the factory and concurrency-safe directory of pools, one per
// token pair. Pool addresses are derived deterministically from the pair.
type System struct {
	mu     sync.RWMutex
	pools  map[pairKey]*Pool
	ledger AssetLedger
	logger Logger
	feeBps uint16
	feeTo  common.Address

	poolsCreated prometheus.Counter
	lookupMisses prometheus.Counter
}

// NewSystem creates an empty pool system.
func NewSystem(cfg SystemConfig) (*System, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &System{
		pools:  make(map[pairKey]*Pool),
		ledger: cfg.Ledger,
		logger: cfg.Logger,
		feeBps: cfg.FeeBps,
		feeTo:  cfg.FeeTo,
		poolsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rwaswap",
			Subsystem: "pool",
			Name:      "pools_created_total",
			Help:      "Number of pools created by the system.",
		}),
		lookupMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rwaswap",
			Subsystem: "pool",
			Name:      "pool_lookup_misses_total",
			Help:      "Number of GetPool calls for pairs with no pool.",
		}),
	}

	if cfg.Registerer != nil {
		for _, c := range []prometheus.Collector{s.poolsCreated, s.lookupMisses} {
			if err := cfg.Registerer.Register(c); err != nil {
				return nil, fmt.Errorf("register metrics: %w", err)
			}
		}
	}
	return s, nil
}

// systemAddress is the factory identity pools check in Initialize.
var systemAddress = common.BytesToAddress(crypto.Keccak256([]byte("rwaswap/pool-system"))[12:])

// CreatePool creates and initializes the pool for a token pair. Token order
// does not matter; the pair is canonicalized.
func (s *System) CreatePool(tokenA, tokenB common.Address) (*Pool, error) {
	if tokenA == tokenB {
		return nil, ErrIdenticalTokens
	}
	if tokenA == (common.Address{}) || tokenB == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	key := canonicalPair(tokenA, tokenB)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pools[key]; exists {
		return nil, fmt.Errorf("%w: %s/%s", ErrPoolExists, key.token0, key.token1)
	}

	p := New(derivePoolAddress(key), systemAddress, s.ledger, s.feeBps, s.feeTo)
	if err := p.Initialize(systemAddress, key.token0, key.token1); err != nil {
		return nil, err
	}

	s.pools[key] = p
	s.poolsCreated.Inc()
	s.logger.Info("Pool created",
		"pool", p.Address(),
		"token0", key.token0,
		"token1", key.token1,
		"fee_bps", s.feeBps,
	)
	return p, nil
}

// GetPool returns the pool for a token pair, in either order.
func (s *System) GetPool(tokenA, tokenB common.Address) (*Pool, error) {
	key := canonicalPair(tokenA, tokenB)

	s.mu.RLock()
	p, ok := s.pools[key]
	s.mu.RUnlock()

	if !ok {
		s.lookupMisses.Inc()
		return nil, fmt.Errorf("%w: %s/%s", ErrPoolNotFound, key.token0, key.token1)
	}
	return p, nil
}

// Pools returns a snapshot of all pools.
func (s *System) Pools() []*Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Pool, 0, len(s.pools))
	for _, p := range s.pools {
		all = append(all, p)
	}
	return all
}

func canonicalPair(tokenA, tokenB common.Address) pairKey {
	if bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) < 0 {
		return pairKey{token0: tokenA, token1: tokenB}
	}
	return pairKey{token0: tokenB, token1: tokenA}
}

// derivePoolAddress gives each pair a stable ledger identity.
func derivePoolAddress(key pairKey) common.Address {
	digest := crypto.Keccak256(
		[]byte("rwaswap/pool"),
		key.token0.Bytes(),
		key.token1.Bytes(),
	)
	return common.BytesToAddress(digest[12:])
}
