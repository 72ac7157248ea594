package registry

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Domain-separation tags. Each signed operation hashes a distinct tag so a
// signature for one operation can never authorize another.
const (
	tagPublishRelease    = "PUBLISH_RELEASE"
	tagRevokeRelease     = "REVOKE_RELEASE"
	tagSetMinimumVersion = "SET_MINIMUM_VERSION"
	tagUpdateSignerSet   = "UPDATE_SIGNER_SET"
)

// Every digest folds in the operation tag, the operation fields, the nonce,
// the chain identifier, and the registry's own address. The construction
// must stay stable: external signer tooling reproduces it byte for byte.

func be8(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

// ComputePublishHash returns the exact digest signers must produce to
// authorize PublishRelease.
func (r *Registry) ComputePublishHash(component, version string, binaryHash common.Hash, minVersion string, nonce uint64) common.Hash {
	return crypto.Keccak256Hash(
		[]byte(tagPublishRelease),
		crypto.Keccak256([]byte(component)),
		crypto.Keccak256([]byte(version)),
		binaryHash.Bytes(),
		crypto.Keccak256([]byte(minVersion)),
		be8(nonce),
		be8(r.chainID),
		r.address.Bytes(),
	)
}

// ComputeRevokeHash returns the digest authorizing RevokeRelease.
func (r *Registry) ComputeRevokeHash(component, version, reason string, nonce uint64) common.Hash {
	return crypto.Keccak256Hash(
		[]byte(tagRevokeRelease),
		crypto.Keccak256([]byte(component)),
		crypto.Keccak256([]byte(version)),
		crypto.Keccak256([]byte(reason)),
		be8(nonce),
		be8(r.chainID),
		r.address.Bytes(),
	)
}

// ComputeMinimumVersionHash returns the digest authorizing SetMinimumVersion.
func (r *Registry) ComputeMinimumVersionHash(component, minVersion string, nonce uint64) common.Hash {
	return crypto.Keccak256Hash(
		[]byte(tagSetMinimumVersion),
		crypto.Keccak256([]byte(component)),
		crypto.Keccak256([]byte(minVersion)),
		be8(nonce),
		be8(r.chainID),
		r.address.Bytes(),
	)
}

// ComputeSignerSetHash returns the digest authorizing UpdateSignerSet. The
// new membership is folded in as a keccak over the concatenated addresses.
func (r *Registry) ComputeSignerSetHash(newSigners []common.Address, newThreshold int, nonce uint64) common.Hash {
	packed := make([]byte, 0, len(newSigners)*common.AddressLength)
	for _, s := range newSigners {
		packed = append(packed, s.Bytes()...)
	}
	return crypto.Keccak256Hash(
		[]byte(tagUpdateSignerSet),
		crypto.Keccak256(packed),
		be8(uint64(newThreshold)),
		be8(nonce),
		be8(r.chainID),
		r.address.Bytes(),
	)
}
