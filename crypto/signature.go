package crypto

import (
	"crypto/ed25519"
	"errors"
)

// Signature is a raw 64-byte ed25519 signature.
type Signature [SignatureSize]byte

// Sign signs hash (a block or vote digest) with the private key.
func Sign(priv PrivateKey, hash Hash) Signature {
	raw := ed25519.Sign(ed25519.PrivateKey(priv), hash[:])
	var sig Signature
	copy(sig[:], raw)
	return sig
}

// Verify checks sig against hash using the public key.
func Verify(pub PublicKey, hash Hash, sig Signature) error {
	if len(pub) != PublicKeySize {
		return errors.New("crypto: invalid public key length")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), hash[:], sig[:]) {
		return errors.New("crypto: signature verification failed")
	}
	return nil
}

// IsZero reports whether sig is the all-zero sentinel (used for
// not-yet-signed blocks under construction).
func (s Signature) IsZero() bool {
	return s == Signature{}
}
