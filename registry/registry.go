package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rwaswap/rwaswap-core-go/bitset"
)

// Store persists accepted operations. Each method must be atomic: the
// operation's state change and the new nonce land together or not at all.
// A store failure aborts the registry operation with no in-memory mutation.
type Store interface {
	SaveRelease(ctx context.Context, release Release, nonce uint64) error
	SaveRevocation(ctx context.Context, component, version, reason string, revokedBy common.Address, revokedAt time.Time, nonce uint64) error
	SaveMinimumVersion(ctx context.Context, component, minVersion string, nonce uint64) error
	SaveSignerSet(ctx context.Context, signers []common.Address, threshold int, nonce uint64) error
}

// Config holds the configuration for a Registry.
type Config struct {
	// ChainID and Address identify this deployment in every signed digest
	// (domain separation).
	ChainID uint64
	Address common.Address

	// Initial signer set.
	Signers   []common.Address
	Threshold int

	Logger Logger

	// Verifier recovers signer identities; defaults to ECDSAVerifier.
	Verifier Verifier
	// Store persists accepted operations. Optional.
	Store Store
	// Registerer receives the registry's metrics. Optional.
	Registerer prometheus.Registerer
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Address == (common.Address{}) {
		return errors.New("config: Address is required")
	}
	return nil
}

// Registry stores versioned, append-only release records per named
// component, gated by M-of-N threshold signatures with nonce replay
// protection and a monotonic latest-version pointer.
//
// A single mutex serializes all operations; the nonce check and increment
// are atomic under it, so of two submissions carrying the same nonce the
// first wins and the second fails ErrStaleNonce.
type Registry struct {
	mu sync.Mutex

	chainID  uint64
	address  common.Address
	verifier Verifier
	logger   Logger
	store    Store

	signers *SignerSet
	nonce   uint64

	releases    map[releaseKey]*Release
	history     map[common.Hash][]string // component hash -> versions in publish order
	latestIndex map[common.Hash]int      // component hash -> history index of the advertised latest
	minVersion  map[common.Hash]string   // component hash -> minimum version pointer

	operations *prometheus.CounterVec
}

// New creates a registry with an initial signer set.
func New(cfg Config) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	signers, err := NewSignerSet(cfg.Signers, cfg.Threshold)
	if err != nil {
		return nil, err
	}

	verifier := cfg.Verifier
	if verifier == nil {
		verifier = ECDSAVerifier{}
	}

	r := &Registry{
		chainID:     cfg.ChainID,
		address:     cfg.Address,
		verifier:    verifier,
		logger:      cfg.Logger,
		store:       cfg.Store,
		signers:     signers,
		releases:    make(map[releaseKey]*Release),
		history:     make(map[common.Hash][]string),
		latestIndex: make(map[common.Hash]int),
		minVersion:  make(map[common.Hash]string),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rwaswap",
			Subsystem: "registry",
			Name:      "operations_total",
			Help:      "Signed registry operations by kind and outcome.",
		}, []string{"op", "outcome"}),
	}

	if cfg.Registerer != nil {
		if err := cfg.Registerer.Register(r.operations); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return r, nil
}

// NewFromSnapshot restores a registry from durably stored state. The
// snapshot's signer set and nonce override the config's initial values.
func NewFromSnapshot(cfg Config, snap *Snapshot) (*Registry, error) {
	cfg.Signers = snap.Signers
	cfg.Threshold = snap.Threshold

	r, err := New(cfg)
	if err != nil {
		return nil, err
	}

	r.nonce = snap.Nonce
	for i := range snap.Releases {
		rel := snap.Releases[i]
		r.releases[keyOf(rel.Component, rel.Version)] = &rel
	}
	for component, versions := range snap.History {
		h := crypto.Keccak256Hash([]byte(component))
		r.history[h] = append([]string(nil), versions...)
		if idx, ok := snap.LatestIndex[component]; ok {
			r.latestIndex[h] = idx
		}
	}
	for component, minVersion := range snap.MinimumVersions {
		r.minVersion[crypto.Keccak256Hash([]byte(component))] = minVersion
	}
	return r, nil
}

func keyOf(component, version string) releaseKey {
	return releaseKey{
		component: crypto.Keccak256Hash([]byte(component)),
		version:   crypto.Keccak256Hash([]byte(version)),
	}
}

// PublishRelease appends a new release for a component. Legitimacy comes
// from threshold signatures over the publish digest; the publisher identity
// is recorded but externally authorized.
func (r *Registry) PublishRelease(
	ctx context.Context,
	publisher common.Address,
	component, version string,
	binaryHash common.Hash,
	minVersion, changelogCID string,
	nonce uint64,
	signatures [][]byte,
) (err error) {
	defer r.countOp(tagPublishRelease, &err)

	if err = validateField("component", component, MaxComponentLen); err != nil {
		return err
	}
	if err = validateField("version", version, MaxVersionLen); err != nil {
		return err
	}
	if binaryHash == (common.Hash{}) {
		return fmt.Errorf("%w: binaryHash", ErrZeroHash)
	}
	if len(minVersion) > MaxVersionLen {
		return fmt.Errorf("%w: minVersion (%d > %d)", ErrFieldTooLong, len(minVersion), MaxVersionLen)
	}
	if len(changelogCID) > MaxChangelogLen {
		return fmt.Errorf("%w: changelogCID (%d > %d)", ErrFieldTooLong, len(changelogCID), MaxChangelogLen)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err = r.checkNonce(nonce); err != nil {
		return err
	}
	key := keyOf(component, version)
	if _, exists := r.releases[key]; exists {
		return fmt.Errorf("%w: %s@%s", ErrDuplicateVersion, component, version)
	}

	digest := r.ComputePublishHash(component, version, binaryHash, minVersion, nonce)
	if err = r.verifySignatures(digest, signatures, r.signers.Threshold()); err != nil {
		return err
	}

	release := Release{
		Component:      component,
		Version:        version,
		BinaryHash:     binaryHash,
		MinimumVersion: minVersion,
		ChangelogCID:   changelogCID,
		PublishedAt:    time.Now().UTC(),
		PublishedBy:    publisher,
	}

	if r.store != nil {
		if err = r.store.SaveRelease(ctx, release, nonce+1); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}

	r.releases[key] = &release
	r.history[key.component] = append(r.history[key.component], version)
	newIndex := len(r.history[key.component]) - 1
	// An out-of-order (older) publication must not regress the advertised
	// latest version.
	if newIndex >= r.latestIndex[key.component] {
		r.latestIndex[key.component] = newIndex
	}
	r.nonce++

	r.logger.Info("Release published",
		"component", component,
		"version", version,
		"binary_hash", binaryHash,
		"publisher", publisher,
		"nonce", nonce,
	)
	return nil
}

// RevokeRelease marks a published release revoked, once.
func (r *Registry) RevokeRelease(
	ctx context.Context,
	revoker common.Address,
	component, version, reason string,
	nonce uint64,
	signatures [][]byte,
) (err error) {
	defer r.countOp(tagRevokeRelease, &err)

	if err = validateField("component", component, MaxComponentLen); err != nil {
		return err
	}
	if err = validateField("version", version, MaxVersionLen); err != nil {
		return err
	}
	if len(reason) > MaxReasonLen {
		return fmt.Errorf("%w: reason (%d > %d)", ErrFieldTooLong, len(reason), MaxReasonLen)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err = r.checkNonce(nonce); err != nil {
		return err
	}
	release, exists := r.releases[keyOf(component, version)]
	if !exists {
		return fmt.Errorf("%w: %s@%s", ErrVersionNotFound, component, version)
	}
	if release.Revoked {
		return fmt.Errorf("%w: %s@%s", ErrVersionAlreadyRevoked, component, version)
	}

	digest := r.ComputeRevokeHash(component, version, reason, nonce)
	if err = r.verifySignatures(digest, signatures, r.signers.Threshold()); err != nil {
		return err
	}

	revokedAt := time.Now().UTC()
	if r.store != nil {
		if err = r.store.SaveRevocation(ctx, component, version, reason, revoker, revokedAt, nonce+1); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}

	release.Revoked = true
	release.RevokeReason = reason
	release.RevokedAt = revokedAt
	release.RevokedBy = revoker
	r.nonce++

	r.logger.Warn("Release revoked",
		"component", component,
		"version", version,
		"reason", reason,
		"revoker", revoker,
		"nonce", nonce,
	)
	return nil
}

// SetMinimumVersion directly overrides a component's minimum-version
// pointer.
func (r *Registry) SetMinimumVersion(
	ctx context.Context,
	component, minVersion string,
	nonce uint64,
	signatures [][]byte,
) (err error) {
	defer r.countOp(tagSetMinimumVersion, &err)

	if err = validateField("component", component, MaxComponentLen); err != nil {
		return err
	}
	if err = validateField("minVersion", minVersion, MaxVersionLen); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err = r.checkNonce(nonce); err != nil {
		return err
	}

	digest := r.ComputeMinimumVersionHash(component, minVersion, nonce)
	if err = r.verifySignatures(digest, signatures, r.signers.Threshold()); err != nil {
		return err
	}

	if r.store != nil {
		if err = r.store.SaveMinimumVersion(ctx, component, minVersion, nonce+1); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}

	r.minVersion[crypto.Keccak256Hash([]byte(component))] = minVersion
	r.nonce++

	r.logger.Info("Minimum version set", "component", component, "min_version", minVersion, "nonce", nonce)
	return nil
}

// UpdateSignerSet atomically replaces the signer membership. Rotation is the
// highest-impact operation, so it requires signatures from the current set
// at an elevated threshold: currentThreshold+1, capped at the current
// member count.
func (r *Registry) UpdateSignerSet(
	ctx context.Context,
	newSigners []common.Address,
	newThreshold int,
	nonce uint64,
	signatures [][]byte,
) (err error) {
	defer r.countOp(tagUpdateSignerSet, &err)

	next, err := NewSignerSet(newSigners, newThreshold)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err = r.checkNonce(nonce); err != nil {
		return err
	}

	required := r.signers.Threshold() + 1
	if required > r.signers.Len() {
		required = r.signers.Len()
	}

	digest := r.ComputeSignerSetHash(newSigners, newThreshold, nonce)
	if err = r.verifySignatures(digest, signatures, required); err != nil {
		return err
	}

	if r.store != nil {
		if err = r.store.SaveSignerSet(ctx, next.Signers(), next.Threshold(), nonce+1); err != nil {
			return fmt.Errorf("store: %w", err)
		}
	}

	r.signers = next
	r.nonce++

	r.logger.Warn("Signer set rotated",
		"signers", next.Len(),
		"threshold", next.Threshold(),
		"nonce", nonce,
	)
	return nil
}

// --- read accessors ---

// GetRelease returns the release record for (component, version).
func (r *Registry) GetRelease(component, version string) (Release, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	release, exists := r.releases[keyOf(component, version)]
	if !exists {
		return Release{}, fmt.Errorf("%w: %s@%s", ErrVersionNotFound, component, version)
	}
	return *release, nil
}

// GetLatestRelease returns the release the latest-version pointer
// advertises for a component.
func (r *Registry) GetLatestRelease(component string) (Release, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := crypto.Keccak256Hash([]byte(component))
	versions := r.history[h]
	if len(versions) == 0 {
		return Release{}, fmt.Errorf("%w: %s", ErrComponentNotFound, component)
	}
	version := versions[r.latestIndex[h]]
	return *r.releases[keyOf(component, version)], nil
}

// GetMinimumVersion returns the component's minimum-version pointer, empty
// if never set.
func (r *Registry) GetMinimumVersion(component string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.minVersion[crypto.Keccak256Hash([]byte(component))]
}

// IsVersionRevoked reports whether a release exists and is revoked.
func (r *Registry) IsVersionRevoked(component, version string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	release, exists := r.releases[keyOf(component, version)]
	if !exists {
		return false, fmt.Errorf("%w: %s@%s", ErrVersionNotFound, component, version)
	}
	return release.Revoked, nil
}

// VersionHistory returns a component's versions in publish order.
func (r *Registry) VersionHistory(component string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.history[crypto.Keccak256Hash([]byte(component))]
	out := make([]string, len(versions))
	copy(out, versions)
	return out
}

// GetSigners returns the current ordered signer list.
func (r *Registry) GetSigners() []common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.signers.Signers()
}

// GetSignerThreshold returns the current signature threshold.
func (r *Registry) GetSignerThreshold() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.signers.Threshold()
}

// GetOperationNonce returns the nonce the next signed operation must embed.
func (r *Registry) GetOperationNonce() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nonce
}

// --- internals ---

// checkNonce enforces replay protection. Callers hold r.mu.
func (r *Registry) checkNonce(nonce uint64) error {
	if nonce != r.nonce {
		return fmt.Errorf("%w: got %d, current %d", ErrStaleNonce, nonce, r.nonce)
	}
	return nil
}

// verifySignatures walks the provided signatures in order until `required`
// distinct current signers have recovered. Duplicate member signatures
// count once; leftover signatures past the threshold are ignored. A
// signature recovering outside the member set is a hard failure. Callers
// hold r.mu.
func (r *Registry) verifySignatures(digest common.Hash, signatures [][]byte, required int) error {
	if len(signatures) < required {
		return fmt.Errorf("%w: got %d, need %d", ErrInsufficientSignatures, len(signatures), required)
	}

	seen := bitset.NewBitSet(MaxSigners)
	distinct := 0
	for _, sig := range signatures {
		if distinct >= required {
			break
		}
		signer, err := r.verifier.Recover(digest, sig)
		if err != nil {
			return err
		}
		index, member := r.signers.IndexOf(signer)
		if !member {
			return fmt.Errorf("%w: recovered non-member %s", ErrInvalidSignature, signer)
		}
		if seen.IsSet(uint64(index)) {
			continue
		}
		seen.Set(uint64(index))
		distinct++
	}

	if distinct < required {
		return fmt.Errorf("%w: %d distinct signers, need %d", ErrInsufficientSignatures, distinct, required)
	}
	return nil
}

func validateField(name, value string, max int) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrEmptyField, name)
	}
	if len(value) > max {
		return fmt.Errorf("%w: %s (%d > %d)", ErrFieldTooLong, name, len(value), max)
	}
	return nil
}

func (r *Registry) countOp(op string, err *error) {
	outcome := "ok"
	if *err != nil {
		outcome = "rejected"
	}
	r.operations.WithLabelValues(op, outcome).Inc()
}
