package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// PrivateKeySize and PublicKeySize mirror ed25519's sizes; kept local so
// callers don't need to import crypto/ed25519 themselves.
const (
	PrivateKeySize = ed25519.PrivateKeySize
	PublicKeySize  = ed25519.PublicKeySize
	SignatureSize  = ed25519.SignatureSize
)

// PrivateKey wraps ed25519 private key bytes.
type PrivateKey []byte

// PublicKey wraps ed25519 public key bytes. An Account (§3.1) is a
// PublicKey; the two names are used interchangeably depending on context
// (Account when talking about ledger identity, PublicKey when talking about
// the cryptographic operation).
type PublicKey []byte

// Account is the ledger-facing name for a PublicKey.
type Account = PublicKey

// GenerateKeyPair generates a new ed25519 key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	return PrivateKey(priv), PublicKey(pub), nil
}

// AsHash reinterprets the 32-byte public key as a Hash, which is how
// accounts are treated when they serve as a block's root (§3.2: "root of a
// block is previous if non-zero, else account").
func (pub PublicKey) AsHash() Hash {
	var h Hash
	copy(h[:], pub)
	return h
}

// Hex returns the full hex-encoded public key.
func (pub PublicKey) Hex() string {
	return hex.EncodeToString(pub)
}

// IsZero reports whether pub is empty or every byte is zero, the "no
// representative assigned yet" sentinel an epoch block opening a
// never-before-seen account must carry (§4.3 rule 10).
func (pub PublicKey) IsZero() bool {
	for _, b := range pub {
		if b != 0 {
			return false
		}
	}
	return true
}

// Hex returns the hex-encoded private key.
func (priv PrivateKey) Hex() string {
	return hex.EncodeToString(priv)
}

// Public derives the ed25519 public key from the private key.
func (priv PrivateKey) Public() PublicKey {
	return PublicKey(ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
}

// PubKeyFromHex decodes a hex-encoded public key.
func PubKeyFromHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid pubkey hex: %w", err)
	}
	if len(b) != PublicKeySize {
		return nil, fmt.Errorf("pubkey must be %d bytes, got %d", PublicKeySize, len(b))
	}
	return PublicKey(b), nil
}

// PrivKeyFromHex decodes a hex-encoded private key.
func PrivKeyFromHex(s string) (PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid privkey hex: %w", err)
	}
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("privkey must be %d bytes, got %d", PrivateKeySize, len(b))
	}
	return PrivateKey(b), nil
}

// PubKeyFromHash reinterprets a Hash as an account public key (the inverse
// of PublicKey.AsHash), used when a root turns out to be an opening
// account rather than a previous-block hash.
func PubKeyFromHash(h Hash) PublicKey {
	pub := make(PublicKey, PublicKeySize)
	copy(pub, h[:])
	return pub
}
