// Package vote implements the Vote type (§3.1): a representative's
// signed statement about which block(s) it believes are valid at a root,
// used both for root elections (§4.6) and confirm_ack replies (§4.2).
package vote

import (
	"encoding/binary"
	"fmt"

	"github.com/tolelom/nanoledger/crypto"
)

// MaxHashes is the maximum number of hashes a single vote payload may carry
// (§3.1, §4.2).
const MaxHashes = 12

// Vote is {account, signature, sequence, payload}. Payload is either a
// single full block hash list of length 1 (when voting directly on a
// just-seen block) or up to MaxHashes hashes (batched, §4.7).
type Vote struct {
	Account   crypto.PublicKey
	Sig       crypto.Signature
	Sequence  uint64
	Hashes    []crypto.Hash
}

// ErrTooManyHashes is returned by New/MarshalBinary when Hashes exceeds
// MaxHashes.
var ErrTooManyHashes = fmt.Errorf("vote: payload exceeds %d hashes", MaxHashes)

// signable returns the bytes a vote's signature covers: sequence (8 bytes,
// big-endian) followed by each hash in order. Account is excluded because
// it is derived from the signing key, not carried independently in the
// signature input.
func signable(sequence uint64, hashes []crypto.Hash) []byte {
	buf := make([]byte, 8, 8+len(hashes)*crypto.HashSize)
	binary.BigEndian.PutUint64(buf, sequence)
	for _, h := range hashes {
		buf = append(buf, h[:]...)
	}
	return buf
}

// New builds and signs a vote over hashes with the given sequence.
func New(priv crypto.PrivateKey, sequence uint64, hashes []crypto.Hash) (*Vote, error) {
	if len(hashes) == 0 || len(hashes) > MaxHashes {
		return nil, ErrTooManyHashes
	}
	v := &Vote{
		Account:  priv.Public(),
		Sequence: sequence,
		Hashes:   hashes,
	}
	v.Sig = crypto.Sign(priv, crypto.BlockHash(signable(sequence, hashes)))
	return v, nil
}

// Verify checks the vote's signature against its own Account field.
func (v *Vote) Verify() error {
	if len(v.Hashes) == 0 || len(v.Hashes) > MaxHashes {
		return ErrTooManyHashes
	}
	digest := crypto.BlockHash(signable(v.Sequence, v.Hashes))
	return crypto.Verify(v.Account, digest, v.Sig)
}

// MarshalBinary encodes a vote as account(32) signature(64) sequence(8,
// big-endian) count(1) hash*count(32 each).
func (v *Vote) MarshalBinary() ([]byte, error) {
	if len(v.Hashes) == 0 || len(v.Hashes) > MaxHashes {
		return nil, ErrTooManyHashes
	}
	buf := make([]byte, 0, 32+64+8+1+len(v.Hashes)*crypto.HashSize)
	buf = append(buf, v.Account...)
	buf = append(buf, v.Sig[:]...)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], v.Sequence)
	buf = append(buf, seq[:]...)
	buf = append(buf, byte(len(v.Hashes)))
	for _, h := range v.Hashes {
		buf = append(buf, h[:]...)
	}
	return buf, nil
}

// UnmarshalVote decodes a vote previously encoded by MarshalBinary.
func UnmarshalVote(buf []byte) (*Vote, error) {
	if len(buf) < 32+64+8+1 {
		return nil, fmt.Errorf("vote: truncated")
	}
	v := &Vote{}
	off := 0
	v.Account = append(crypto.PublicKey{}, buf[off:off+32]...)
	off += 32
	copy(v.Sig[:], buf[off:off+64])
	off += 64
	v.Sequence = binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	count := int(buf[off])
	off++
	if count == 0 || count > MaxHashes {
		return nil, ErrTooManyHashes
	}
	if len(buf) != off+count*crypto.HashSize {
		return nil, fmt.Errorf("vote: length mismatch for %d hashes", count)
	}
	v.Hashes = make([]crypto.Hash, count)
	for i := 0; i < count; i++ {
		copy(v.Hashes[i][:], buf[off:off+crypto.HashSize])
		off += crypto.HashSize
	}
	return v, nil
}

// HashKey returns a stable identifier for uniquing/caching: the hash of the
// vote's signature, which is unique per (account, sequence, payload).
func (v *Vote) HashKey() crypto.Hash {
	return crypto.BlockHash(v.Sig[:])
}
