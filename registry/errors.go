package registry

import "errors"

var (
	// Validation errors: rejected before any state mutation.

	// ErrEmptyField is returned when a required string field is empty.
	ErrEmptyField = errors.New("empty field")
	// ErrFieldTooLong is returned when a string field exceeds its bound.
	ErrFieldTooLong = errors.New("field too long")
	// ErrZeroHash is returned when a required digest is all zeroes.
	ErrZeroHash = errors.New("zero hash")
	// ErrInvalidSignerSet is returned when a signer set has duplicates,
	// null entries, or a threshold out of range.
	ErrInvalidSignerSet = errors.New("invalid signer set")

	// Authorization errors.

	// ErrInvalidSignature is returned when a signature is malformed or
	// recovers to an address outside the current signer set.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrInsufficientSignatures is returned when fewer than the required
	// number of distinct signers recover from the signature set.
	ErrInsufficientSignatures = errors.New("insufficient signatures")

	// Replay/ordering errors: the caller must re-fetch current state.

	// ErrStaleNonce is returned when an operation embeds a nonce other than
	// the registry's current one.
	ErrStaleNonce = errors.New("stale nonce")
	// ErrDuplicateVersion is returned when publishing an already-published
	// (component, version) pair.
	ErrDuplicateVersion = errors.New("duplicate version")
	// ErrVersionAlreadyRevoked is returned when revoking a revoked release.
	ErrVersionAlreadyRevoked = errors.New("version already revoked")

	// Not-found errors.

	// ErrVersionNotFound is returned when a (component, version) pair does
	// not exist.
	ErrVersionNotFound = errors.New("version not found")
	// ErrComponentNotFound is returned when a component has no releases.
	ErrComponentNotFound = errors.New("component not found")
)
