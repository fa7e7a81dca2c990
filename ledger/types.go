package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
)

// Epoch tracks the sequential epoch-block upgrades an account has gone
// through (§3.2: "epoch monotonicity").
type Epoch uint8

const (
	Epoch0 Epoch = 0
	Epoch1 Epoch = 1
	Epoch2 Epoch = 2
)

// AccountInfo is the per-account head record (§3.1).
type AccountInfo struct {
	Head              crypto.Hash
	Representative    crypto.PublicKey
	OpenBlock         crypto.Hash
	Balance           blocks.Amount
	ModifiedTimestamp uint64
	BlockCount        uint64
	Epoch             Epoch
}

// MarshalBinary encodes an AccountInfo row.
func (a AccountInfo) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 32+32+32+blocks.AmountSize+8+8+1)
	buf = append(buf, a.Head[:]...)
	buf = append(buf, padPubKey(a.Representative)...)
	buf = append(buf, a.OpenBlock[:]...)
	buf = append(buf, a.Balance[:]...)
	buf = appendUint64(buf, a.ModifiedTimestamp)
	buf = appendUint64(buf, a.BlockCount)
	buf = append(buf, byte(a.Epoch))
	return buf, nil
}

// UnmarshalAccountInfo decodes a row written by AccountInfo.MarshalBinary.
func UnmarshalAccountInfo(buf []byte) (AccountInfo, error) {
	const want = 32 + 32 + 32 + blocks.AmountSize + 8 + 8 + 1
	if len(buf) != want {
		return AccountInfo{}, fmt.Errorf("ledger: account info length mismatch: got %d want %d", len(buf), want)
	}
	var a AccountInfo
	off := 0
	copy(a.Head[:], buf[off:off+32])
	off += 32
	a.Representative = append(crypto.PublicKey{}, buf[off:off+32]...)
	off += 32
	copy(a.OpenBlock[:], buf[off:off+32])
	off += 32
	copy(a.Balance[:], buf[off:off+blocks.AmountSize])
	off += blocks.AmountSize
	a.ModifiedTimestamp = binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	a.BlockCount = binary.BigEndian.Uint64(buf[off : off+8])
	off += 8
	a.Epoch = Epoch(buf[off])
	return a, nil
}

// PendingEntry represents a send awaiting its matching receive/open (§3.1),
// keyed by (destination, send_hash) in the pending table.
type PendingEntry struct {
	SourceAccount crypto.PublicKey
	Amount        blocks.Amount
	Epoch         Epoch
}

func (p PendingEntry) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 32+blocks.AmountSize+1)
	buf = append(buf, padPubKey(p.SourceAccount)...)
	buf = append(buf, p.Amount[:]...)
	buf = append(buf, byte(p.Epoch))
	return buf, nil
}

func UnmarshalPendingEntry(buf []byte) (PendingEntry, error) {
	const want = 32 + blocks.AmountSize + 1
	if len(buf) != want {
		return PendingEntry{}, fmt.Errorf("ledger: pending entry length mismatch")
	}
	var p PendingEntry
	p.SourceAccount = append(crypto.PublicKey{}, buf[:32]...)
	copy(p.Amount[:], buf[32:32+blocks.AmountSize])
	p.Epoch = Epoch(buf[32+blocks.AmountSize])
	return p, nil
}

// ConfirmationHeightInfo is {height, frontier_hash} keyed by account (§3.1).
// Confirmation is final: rollback of any block at or below this height is
// rejected (§4.3).
type ConfirmationHeightInfo struct {
	Height       uint64
	FrontierHash crypto.Hash
}

func (c ConfirmationHeightInfo) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 8+32)
	buf = appendUint64(buf, c.Height)
	buf = append(buf, c.FrontierHash[:]...)
	return buf, nil
}

func UnmarshalConfirmationHeightInfo(buf []byte) (ConfirmationHeightInfo, error) {
	if len(buf) != 8+32 {
		return ConfirmationHeightInfo{}, fmt.Errorf("ledger: confirmation height length mismatch")
	}
	var c ConfirmationHeightInfo
	c.Height = binary.BigEndian.Uint64(buf[:8])
	copy(c.FrontierHash[:], buf[8:])
	return c, nil
}

// ProcessResult is the outcome code of Process (§4.3).
type ProcessResult int

const (
	Progress ProcessResult = iota
	Old
	GapPrevious
	GapSource
	BadSignature
	NegativeSpend
	Fork
	Unreceivable
	OpenedBurnAccount
	BalanceMismatch
	RepresentativeMismatch
	BlockPosition
	InsufficientWork
)

func (r ProcessResult) String() string {
	switch r {
	case Progress:
		return "progress"
	case Old:
		return "old"
	case GapPrevious:
		return "gap_previous"
	case GapSource:
		return "gap_source"
	case BadSignature:
		return "bad_signature"
	case NegativeSpend:
		return "negative_spend"
	case Fork:
		return "fork"
	case Unreceivable:
		return "unreceivable"
	case OpenedBurnAccount:
		return "opened_burn_account"
	case BalanceMismatch:
		return "balance_mismatch"
	case RepresentativeMismatch:
		return "representative_mismatch"
	case BlockPosition:
		return "block_position"
	case InsufficientWork:
		return "insufficient_work"
	default:
		return "unknown"
	}
}

// ProcessReturn is process(block)'s public contract (§4.3).
type ProcessReturn struct {
	Code            ProcessResult
	Verified        bool
	Account         crypto.PublicKey
	Amount          blocks.Amount
	PendingAccount  crypto.PublicKey
	PreviousBalance blocks.Amount
}

func appendUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

// padPubKey defends against a zero-value crypto.PublicKey (nil slice, e.g.
// the burn account or an unset representative) so every fixed-width row is
// exactly 32 bytes.
func padPubKey(k crypto.PublicKey) []byte {
	out := make([]byte, 32)
	copy(out, k)
	return out
}
