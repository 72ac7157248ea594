package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rwaswap/rwaswap-core-go/registry"
)

// Memory is an in-memory registry.Store, the default backing for tests and
// single-process deployments. It keeps the same shape as the durable store
// so a registry can be restored from either.
type Memory struct {
	mu sync.RWMutex

	nonce     uint64
	signers   []common.Address
	threshold int

	releases    map[string]map[string]registry.Release // component -> version -> release
	history     map[string][]string
	latestIndex map[string]int
	minVersions map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		releases:    make(map[string]map[string]registry.Release),
		history:     make(map[string][]string),
		latestIndex: make(map[string]int),
		minVersions: make(map[string]string),
	}
}

func (m *Memory) SaveRelease(_ context.Context, release registry.Release, nonce uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions, ok := m.releases[release.Component]
	if !ok {
		versions = make(map[string]registry.Release)
		m.releases[release.Component] = versions
	}
	if _, exists := versions[release.Version]; exists {
		return fmt.Errorf("store: %w: %s@%s", registry.ErrDuplicateVersion, release.Component, release.Version)
	}

	versions[release.Version] = release
	m.history[release.Component] = append(m.history[release.Component], release.Version)
	newIndex := len(m.history[release.Component]) - 1
	if newIndex >= m.latestIndex[release.Component] {
		m.latestIndex[release.Component] = newIndex
	}
	m.nonce = nonce
	return nil
}

func (m *Memory) SaveRevocation(_ context.Context, component, version, reason string, revokedBy common.Address, revokedAt time.Time, nonce uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	versions, ok := m.releases[component]
	if !ok {
		return fmt.Errorf("store: %w: %s@%s", registry.ErrVersionNotFound, component, version)
	}
	release, ok := versions[version]
	if !ok {
		return fmt.Errorf("store: %w: %s@%s", registry.ErrVersionNotFound, component, version)
	}

	release.Revoked = true
	release.RevokeReason = reason
	release.RevokedBy = revokedBy
	release.RevokedAt = revokedAt
	versions[version] = release
	m.nonce = nonce
	return nil
}

func (m *Memory) SaveMinimumVersion(_ context.Context, component, minVersion string, nonce uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.minVersions[component] = minVersion
	m.nonce = nonce
	return nil
}

func (m *Memory) SaveSignerSet(_ context.Context, signers []common.Address, threshold int, nonce uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.signers = append([]common.Address(nil), signers...)
	m.threshold = threshold
	m.nonce = nonce
	return nil
}

// Load returns the full persisted state for registry restoration.
func (m *Memory) Load(_ context.Context) (*registry.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &registry.Snapshot{
		Signers:         append([]common.Address(nil), m.signers...),
		Threshold:       m.threshold,
		Nonce:           m.nonce,
		History:         make(map[string][]string, len(m.history)),
		LatestIndex:     make(map[string]int, len(m.latestIndex)),
		MinimumVersions: make(map[string]string, len(m.minVersions)),
	}

	for component, versions := range m.history {
		snap.History[component] = append([]string(nil), versions...)
	}
	for component, index := range m.latestIndex {
		snap.LatestIndex[component] = index
	}
	for component, minVersion := range m.minVersions {
		snap.MinimumVersions[component] = minVersion
	}
	for _, versions := range m.releases {
		for _, release := range versions {
			snap.Releases = append(snap.Releases, release)
		}
	}
	return snap, nil
}
