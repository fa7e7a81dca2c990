package ledger

import (
	"encoding/binary"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
	"golang.org/x/crypto/blake2b"
)

// WorkVerifier computes a block's work difficulty and the threshold it must
// clear. Proof-of-work algorithm selection is explicitly out of scope for
// the core (§1 Non-goals); Process depends on this interface rather than a
// hardcoded hash function so the algorithm can be swapped without touching
// ledger rules.
type WorkVerifier interface {
	Difficulty(root crypto.Hash, work uint64) uint64
	Threshold(version uint8, details blocks.Details) uint64
}

// Blake2WorkVerifier is the default WorkVerifier: a block's work is valid
// when the 8-byte BLAKE2b digest of (work || root), read as a little-endian
// uint64, is
// numerically at or above the threshold for its block's version/details.
// Mirrors the scheme nano-node uses (original_source/nano/lib/work.cpp).
type Blake2WorkVerifier struct {
	BaseThreshold        uint64
	EpochBlockThreshold   uint64
	ReceiveBlockThreshold uint64
}

// DefaultWorkVerifier returns a Blake2WorkVerifier with the thresholds the
// reference implementation ships (epoch blocks highest, then the
// send/change base threshold, receive/open lowest).
func DefaultWorkVerifier() *Blake2WorkVerifier {
	return &Blake2WorkVerifier{
		BaseThreshold:         0xffffffc000000000,
		EpochBlockThreshold:   0xfffffff800000000,
		ReceiveBlockThreshold: 0xfffffe0000000000,
	}
}

func (v *Blake2WorkVerifier) Difficulty(root crypto.Hash, work uint64) uint64 {
	h, err := blake2b.New(8, nil)
	if err != nil {
		panic(err)
	}
	var workBytes [8]byte
	binary.LittleEndian.PutUint64(workBytes[:], work)
	h.Write(workBytes[:])
	h.Write(root[:])
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

func (v *Blake2WorkVerifier) Threshold(version uint8, details blocks.Details) uint64 {
	switch {
	case details.IsEpoch:
		return v.EpochBlockThreshold
	case details.IsReceive:
		return v.ReceiveBlockThreshold
	default:
		return v.BaseThreshold
	}
}

// workRoot is the hash work is computed against: previous for any
// non-opening block, account for an opening block (same as a block's root,
// §3.2), matching the reference scheme.
func workRoot(b blocks.Block, account crypto.PublicKey) crypto.Hash {
	return b.Root(account)
}
