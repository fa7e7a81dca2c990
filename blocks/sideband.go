package blocks

import (
	"encoding/binary"
	"fmt"

	"github.com/tolelom/nanoledger/crypto"
)

// Details packs {epoch, is_send, is_receive, is_epoch} into one byte
// (§3.1): the low nibble holds the epoch number, the next three bits the
// three flags.
type Details struct {
	Epoch     uint8
	IsSend    bool
	IsReceive bool
	IsEpoch   bool
}

func (d Details) Pack() byte {
	var b byte = d.Epoch & 0x0F
	if d.IsSend {
		b |= 1 << 4
	}
	if d.IsReceive {
		b |= 1 << 5
	}
	if d.IsEpoch {
		b |= 1 << 6
	}
	return b
}

func UnpackDetails(b byte) Details {
	return Details{
		Epoch:     b & 0x0F,
		IsSend:    b&(1<<4) != 0,
		IsReceive: b&(1<<5) != 0,
		IsEpoch:   b&(1<<6) != 0,
	}
}

// Sideband is the unsigned metadata persisted alongside a committed block
// (§3.1). It is authoritative after ledger insertion and is never part of
// the signed/hashed body.
type Sideband struct {
	Successor crypto.Hash // zero until a later block points back at this one
	Account   crypto.PublicKey
	Balance   Amount
	Height    uint64
	Timestamp int64 // unix seconds
	Details   Details
}

// MarshalBinary encodes the sideband. Its length depends on block type:
// open blocks omit Account/Height (implied by the open block body and
// height=1), state blocks append the packed Details byte, send blocks omit
// Balance (already present in the body) — §4.1.
func (s Sideband) MarshalBinary(typ Type) ([]byte, error) {
	buf := make([]byte, 0, 32+32+8+8+AmountSize+1)
	buf = append(buf, s.Successor[:]...)
	if typ != Open {
		buf = append(buf, s.Account...)
	}
	if typ != Send {
		buf = append(buf, s.Balance[:]...)
	}
	if typ != Open {
		var h [8]byte
		binary.BigEndian.PutUint64(h[:], s.Height)
		buf = append(buf, h[:]...)
	}
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(s.Timestamp))
	buf = append(buf, ts[:]...)
	if typ == State {
		buf = append(buf, s.Details.Pack())
	}
	return buf, nil
}

// UnmarshalSideband decodes a sideband previously encoded for block type typ.
func UnmarshalSideband(buf []byte, typ Type) (Sideband, error) {
	var s Sideband
	off := 0
	need := func(n int) error {
		if off+n > len(buf) {
			return fmt.Errorf("blocks: sideband truncated")
		}
		return nil
	}
	if err := need(32); err != nil {
		return s, err
	}
	copy(s.Successor[:], buf[off:off+32])
	off += 32

	if typ != Open {
		if err := need(32); err != nil {
			return s, err
		}
		s.Account = append(crypto.PublicKey{}, buf[off:off+32]...)
		off += 32
	}
	if typ != Send {
		if err := need(AmountSize); err != nil {
			return s, err
		}
		copy(s.Balance[:], buf[off:off+AmountSize])
		off += AmountSize
	}
	if typ != Open {
		if err := need(8); err != nil {
			return s, err
		}
		s.Height = binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
	} else {
		s.Height = 1
	}
	if err := need(8); err != nil {
		return s, err
	}
	s.Timestamp = int64(binary.BigEndian.Uint64(buf[off : off+8]))
	off += 8
	if typ == State {
		if err := need(1); err != nil {
			return s, err
		}
		s.Details = UnpackDetails(buf[off])
		off++
	}
	return s, nil
}
