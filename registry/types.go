package registry

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxSigners bounds the authorized signer set.
	MaxSigners = 20

	// Field length bounds, checked before any state mutation.
	MaxComponentLen = 64
	MaxVersionLen   = 32
	MaxChangelogLen = 128
	MaxReasonLen    = 256
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Release is a versioned record for a named component. Immutable once
// published, except for the revocation fields.
type Release struct {
	Component      string         `json:"component"`
	Version        string         `json:"version"`
	BinaryHash     common.Hash    `json:"binaryHash"`
	MinimumVersion string         `json:"minimumVersion"`
	ChangelogCID   string         `json:"changelogCid"`
	PublishedAt    time.Time      `json:"publishedAt"`
	PublishedBy    common.Address `json:"publishedBy"`
	Revoked        bool           `json:"revoked"`
	RevokeReason   string         `json:"revokeReason,omitempty"`
	RevokedAt      time.Time      `json:"revokedAt,omitzero"`
	RevokedBy      common.Address `json:"revokedBy,omitempty"`
}

// releaseKey is the composite lookup key for a release record.
type releaseKey struct {
	component common.Hash
	version   common.Hash
}

// SignerSet is an ordered list of authorized signer identities with a
// signature threshold. Membership lookup is by map, not linear scan.
type SignerSet struct {
	signers   []common.Address
	index     map[common.Address]int
	threshold int
}

// NewSignerSet validates and builds a signer set.
func NewSignerSet(signers []common.Address, threshold int) (*SignerSet, error) {
	if len(signers) == 0 {
		return nil, fmt.Errorf("%w: empty signer list", ErrInvalidSignerSet)
	}
	if len(signers) > MaxSigners {
		return nil, fmt.Errorf("%w: %d signers exceeds maximum %d", ErrInvalidSignerSet, len(signers), MaxSigners)
	}
	if threshold < 1 || threshold > len(signers) {
		return nil, fmt.Errorf("%w: threshold %d out of range [1, %d]", ErrInvalidSignerSet, threshold, len(signers))
	}

	index := make(map[common.Address]int, len(signers))
	ordered := make([]common.Address, len(signers))
	for i, s := range signers {
		if s == (common.Address{}) {
			return nil, fmt.Errorf("%w: zero address at position %d", ErrInvalidSignerSet, i)
		}
		if _, dup := index[s]; dup {
			return nil, fmt.Errorf("%w: duplicate signer %s", ErrInvalidSignerSet, s)
		}
		index[s] = i
		ordered[i] = s
	}

	return &SignerSet{signers: ordered, index: index, threshold: threshold}, nil
}

// IndexOf returns the position of addr in the set.
func (s *SignerSet) IndexOf(addr common.Address) (int, bool) {
	i, ok := s.index[addr]
	return i, ok
}

// Signers returns a defensive copy of the ordered member list.
func (s *SignerSet) Signers() []common.Address {
	out := make([]common.Address, len(s.signers))
	copy(out, s.signers)
	return out
}

// Len returns the number of members.
func (s *SignerSet) Len() int { return len(s.signers) }

// Threshold returns the number of distinct valid signatures required.
func (s *SignerSet) Threshold() int { return s.threshold }

// Snapshot is the registry's full persisted state, used to restore a
// registry from a durable store.
type Snapshot struct {
	Signers   []common.Address `json:"signers"`
	Threshold int              `json:"threshold"`
	Nonce     uint64           `json:"nonce"`

	Releases []Release `json:"releases"`

	// Per-component version strings in publish order, plus the index of the
	// advertised latest entry and the minimum-version pointer.
	History         map[string][]string `json:"history"`
	LatestIndex     map[string]int      `json:"latestIndex"`
	MinimumVersions map[string]string   `json:"minimumVersions"`
}
