// Package crypto provides the primitive types shared by the ledger and wire
// layers: 256-bit hashes, ed25519 accounts/signatures, and the canonical
// account address encoding.
package crypto

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the length in bytes of a canonical block/vote digest.
const HashSize = 32

// Hash is a 256-bit BLAKE2b digest over canonical block or vote bytes.
type Hash [HashSize]byte

// ZeroHash is the well-known all-zero hash used as "no previous"/"no link".
var ZeroHash Hash

// IsZero reports whether h is the all-zero sentinel.
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String returns the upper-case hex form used on the wire and in logs.
func (h Hash) String() string {
	return fmt.Sprintf("%X", h[:])
}

// HashFromHex decodes a hex-encoded hash, accepting upper or lower case.
func HashFromHex(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash hex: %w", err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// BlockHash returns the canonical BLAKE2b-256 digest over the concatenation
// of parts: a type-tag preamble plus hashable fields for state blocks, or
// just the hashable fields for legacy blocks (§4.1). Callers assemble the
// byte sequence; this runs it through BLAKE2b-256 in one shot.
func BlockHash(parts ...[]byte) Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for an oversized key, which we never pass.
		panic(fmt.Sprintf("crypto: blake2b.New256: %v", err))
	}
	for _, p := range parts {
		h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
