package registry

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Verifier recovers a signer identity from a signature over a digest. It is
// pluggable so the registry core stays independent of the signature scheme;
// the default is secp256k1 ECDSA.
type Verifier interface {
	Recover(digest common.Hash, signature []byte) (common.Address, error)
}

// ECDSAVerifier recovers secp256k1 signatures in the 65-byte [R || S || V]
// form. V may be 0/1 or the legacy 27/28.
type ECDSAVerifier struct{}

func (ECDSAVerifier) Recover(digest common.Hash, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d, want %d", ErrInvalidSignature, len(signature), crypto.SignatureLength)
	}

	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
