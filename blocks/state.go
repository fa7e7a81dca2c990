package blocks

import (
	"encoding/binary"
	"fmt"

	"github.com/tolelom/nanoledger/crypto"
)

// StateBlock is the universal block variant (§3.1). Link is
// context-dependent: a destination account for a send, a source block hash
// for a receive, the epoch-link sentinel for an epoch transition, or zero
// for a plain representative change (§4.3 subtype determination).
type StateBlock struct {
	Account        crypto.PublicKey
	PreviousHash   crypto.Hash
	Representative crypto.PublicKey
	Balance        Amount
	Link           crypto.Hash
	Sig            crypto.Signature
	WorkNonce      uint64
}

func (b *StateBlock) Type() Type                     { return State }
func (b *StateBlock) Previous() crypto.Hash           { return b.PreviousHash }
func (b *StateBlock) Signature() crypto.Signature     { return b.Sig }
func (b *StateBlock) SetSignature(s crypto.Signature) { b.Sig = s }
func (b *StateBlock) Work() uint64                    { return b.WorkNonce }
func (b *StateBlock) SetWork(w uint64)                { b.WorkNonce = w }

func (b *StateBlock) Root(_ crypto.PublicKey) crypto.Hash {
	return rootOf(b.PreviousHash, b.Account)
}

// preamble is the 32-byte block-type tag prefixed to a state block's
// hashable bytes: all zero except the final byte, which carries the type
// code (§4.1).
func statePreamble() []byte {
	p := make([]byte, 32)
	p[31] = byte(State)
	return p
}

func (b *StateBlock) hashable() []byte {
	buf := make([]byte, 0, 32+32+32+32+AmountSize+32)
	buf = append(buf, statePreamble()...)
	buf = append(buf, b.Account...)
	buf = append(buf, b.PreviousHash[:]...)
	buf = append(buf, b.Representative...)
	buf = append(buf, b.Balance[:]...)
	buf = append(buf, b.Link[:]...)
	return buf
}

func (b *StateBlock) Hash() crypto.Hash {
	return crypto.BlockHash(b.hashable())
}

func (b *StateBlock) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 32+32+32+AmountSize+32+crypto.SignatureSize+8)
	off := 0
	copy(buf[off:], b.Account)
	off += 32
	copy(buf[off:], b.PreviousHash[:])
	off += 32
	copy(buf[off:], b.Representative)
	off += 32
	copy(buf[off:], b.Balance[:])
	off += AmountSize
	copy(buf[off:], b.Link[:])
	off += 32
	copy(buf[off:], b.Sig[:])
	off += crypto.SignatureSize
	// State-block work is big-endian on the wire, unlike the legacy variants
	// (§4.1) — a quirk carried over from the original wire format.
	binary.BigEndian.PutUint64(buf[off:], b.WorkNonce)
	return buf, nil
}

// UnmarshalStateBlock decodes a state block body.
func UnmarshalStateBlock(buf []byte) (*StateBlock, error) {
	const want = 32 + 32 + 32 + AmountSize + 32 + crypto.SignatureSize + 8
	if len(buf) != want {
		return nil, fmt.Errorf("blocks: state body must be %d bytes, got %d", want, len(buf))
	}
	b := &StateBlock{}
	off := 0
	b.Account = append(crypto.PublicKey{}, buf[off:off+32]...)
	off += 32
	copy(b.PreviousHash[:], buf[off:off+32])
	off += 32
	b.Representative = append(crypto.PublicKey{}, buf[off:off+32]...)
	off += 32
	copy(b.Balance[:], buf[off:off+AmountSize])
	off += AmountSize
	copy(b.Link[:], buf[off:off+32])
	off += 32
	copy(b.Sig[:], buf[off:off+crypto.SignatureSize])
	off += crypto.SignatureSize
	b.WorkNonce = binary.BigEndian.Uint64(buf[off:])
	return b, nil
}

// Subtype classifies a state block per §4.3's determination rules, given
// the previous block's balance (ZeroAmount if this is an opening block) and
// the configured epoch-link sentinel.
type Subtype int

const (
	SubtypeMalformed Subtype = iota
	SubtypeEpoch
	SubtypeSend
	SubtypeReceive
	SubtypeChange
)

func (b *StateBlock) Subtype(prevBalance Amount, epochLink crypto.Hash) Subtype {
	if b.Link == epochLink && !epochLink.IsZero() {
		return SubtypeEpoch
	}
	switch b.Balance.Cmp(prevBalance) {
	case -1:
		return SubtypeSend
	case 1:
		return SubtypeReceive
	default:
		if b.Link.IsZero() {
			return SubtypeChange
		}
		return SubtypeMalformed
	}
}
