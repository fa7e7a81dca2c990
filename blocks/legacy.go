package blocks

import (
	"encoding/binary"
	"fmt"

	"github.com/tolelom/nanoledger/crypto"
)

// SendBlock moves amount from an account's chain to a destination account,
// creating a pending entry the destination later consumes (§3.1).
type SendBlock struct {
	PreviousHash crypto.Hash
	Destination  crypto.PublicKey
	Balance      Amount
	Sig          crypto.Signature
	WorkNonce    uint64
}

func (b *SendBlock) Type() Type                        { return Send }
func (b *SendBlock) Previous() crypto.Hash              { return b.PreviousHash }
func (b *SendBlock) Signature() crypto.Signature        { return b.Sig }
func (b *SendBlock) SetSignature(s crypto.Signature)    { b.Sig = s }
func (b *SendBlock) Work() uint64                       { return b.WorkNonce }
func (b *SendBlock) SetWork(w uint64)                   { b.WorkNonce = w }
func (b *SendBlock) Root(account crypto.PublicKey) crypto.Hash { return rootOf(b.PreviousHash, account) }

func (b *SendBlock) hashable() []byte {
	buf := make([]byte, 0, 32+32+AmountSize)
	buf = append(buf, b.PreviousHash[:]...)
	buf = append(buf, b.Destination...)
	buf = append(buf, b.Balance[:]...)
	return buf
}

func (b *SendBlock) Hash() crypto.Hash {
	return crypto.BlockHash(b.hashable())
}

func (b *SendBlock) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 32+32+AmountSize+crypto.SignatureSize+8)
	off := 0
	copy(buf[off:], b.PreviousHash[:])
	off += 32
	copy(buf[off:], b.Destination)
	off += 32
	copy(buf[off:], b.Balance[:])
	off += AmountSize
	copy(buf[off:], b.Sig[:])
	off += crypto.SignatureSize
	binary.LittleEndian.PutUint64(buf[off:], b.WorkNonce)
	return buf, nil
}

// UnmarshalSendBlock decodes a send block body per §4.1's fixed layout.
func UnmarshalSendBlock(buf []byte) (*SendBlock, error) {
	const want = 32 + 32 + AmountSize + crypto.SignatureSize + 8
	if len(buf) != want {
		return nil, fmt.Errorf("blocks: send body must be %d bytes, got %d", want, len(buf))
	}
	b := &SendBlock{}
	off := 0
	copy(b.PreviousHash[:], buf[off:off+32])
	off += 32
	b.Destination = append(crypto.PublicKey{}, buf[off:off+32]...)
	off += 32
	copy(b.Balance[:], buf[off:off+AmountSize])
	off += AmountSize
	copy(b.Sig[:], buf[off:off+crypto.SignatureSize])
	off += crypto.SignatureSize
	b.WorkNonce = binary.LittleEndian.Uint64(buf[off:])
	return b, nil
}

// ReceiveBlock consumes a pending entry created by source, crediting the
// account's balance (§3.1).
type ReceiveBlock struct {
	PreviousHash crypto.Hash
	Source       crypto.Hash
	Sig          crypto.Signature
	WorkNonce    uint64
}

func (b *ReceiveBlock) Type() Type                        { return Receive }
func (b *ReceiveBlock) Previous() crypto.Hash              { return b.PreviousHash }
func (b *ReceiveBlock) Signature() crypto.Signature        { return b.Sig }
func (b *ReceiveBlock) SetSignature(s crypto.Signature)    { b.Sig = s }
func (b *ReceiveBlock) Work() uint64                       { return b.WorkNonce }
func (b *ReceiveBlock) SetWork(w uint64)                   { b.WorkNonce = w }
func (b *ReceiveBlock) Root(account crypto.PublicKey) crypto.Hash { return rootOf(b.PreviousHash, account) }

func (b *ReceiveBlock) hashable() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, b.PreviousHash[:]...)
	buf = append(buf, b.Source[:]...)
	return buf
}

func (b *ReceiveBlock) Hash() crypto.Hash {
	return crypto.BlockHash(b.hashable())
}

func (b *ReceiveBlock) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 32+32+crypto.SignatureSize+8)
	off := 0
	copy(buf[off:], b.PreviousHash[:])
	off += 32
	copy(buf[off:], b.Source[:])
	off += 32
	copy(buf[off:], b.Sig[:])
	off += crypto.SignatureSize
	binary.LittleEndian.PutUint64(buf[off:], b.WorkNonce)
	return buf, nil
}

// UnmarshalReceiveBlock decodes a receive block body.
func UnmarshalReceiveBlock(buf []byte) (*ReceiveBlock, error) {
	const want = 32 + 32 + crypto.SignatureSize + 8
	if len(buf) != want {
		return nil, fmt.Errorf("blocks: receive body must be %d bytes, got %d", want, len(buf))
	}
	b := &ReceiveBlock{}
	off := 0
	copy(b.PreviousHash[:], buf[off:off+32])
	off += 32
	copy(b.Source[:], buf[off:off+32])
	off += 32
	copy(b.Sig[:], buf[off:off+crypto.SignatureSize])
	off += crypto.SignatureSize
	b.WorkNonce = binary.LittleEndian.Uint64(buf[off:])
	return b, nil
}

// OpenBlock is the first block of an account's chain (§3.1, §8.3).
type OpenBlock struct {
	Source         crypto.Hash
	Representative crypto.PublicKey
	Account        crypto.PublicKey
	Sig            crypto.Signature
	WorkNonce      uint64
}

func (b *OpenBlock) Type() Type                     { return Open }
func (b *OpenBlock) Previous() crypto.Hash           { return crypto.ZeroHash }
func (b *OpenBlock) Signature() crypto.Signature     { return b.Sig }
func (b *OpenBlock) SetSignature(s crypto.Signature) { b.Sig = s }
func (b *OpenBlock) Work() uint64                    { return b.WorkNonce }
func (b *OpenBlock) SetWork(w uint64)                { b.WorkNonce = w }
func (b *OpenBlock) Root(_ crypto.PublicKey) crypto.Hash {
	return b.Account.AsHash()
}

func (b *OpenBlock) hashable() []byte {
	buf := make([]byte, 0, 96)
	buf = append(buf, b.Source[:]...)
	buf = append(buf, b.Representative...)
	buf = append(buf, b.Account...)
	return buf
}

func (b *OpenBlock) Hash() crypto.Hash {
	return crypto.BlockHash(b.hashable())
}

func (b *OpenBlock) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 32+32+32+crypto.SignatureSize+8)
	off := 0
	copy(buf[off:], b.Source[:])
	off += 32
	copy(buf[off:], b.Representative)
	off += 32
	copy(buf[off:], b.Account)
	off += 32
	copy(buf[off:], b.Sig[:])
	off += crypto.SignatureSize
	binary.LittleEndian.PutUint64(buf[off:], b.WorkNonce)
	return buf, nil
}

// UnmarshalOpenBlock decodes an open block body.
func UnmarshalOpenBlock(buf []byte) (*OpenBlock, error) {
	const want = 32 + 32 + 32 + crypto.SignatureSize + 8
	if len(buf) != want {
		return nil, fmt.Errorf("blocks: open body must be %d bytes, got %d", want, len(buf))
	}
	b := &OpenBlock{}
	off := 0
	copy(b.Source[:], buf[off:off+32])
	off += 32
	b.Representative = append(crypto.PublicKey{}, buf[off:off+32]...)
	off += 32
	b.Account = append(crypto.PublicKey{}, buf[off:off+32]...)
	off += 32
	copy(b.Sig[:], buf[off:off+crypto.SignatureSize])
	off += crypto.SignatureSize
	b.WorkNonce = binary.LittleEndian.Uint64(buf[off:])
	return b, nil
}

// ChangeBlock alters an account's representative without moving funds
// (§3.1).
type ChangeBlock struct {
	PreviousHash   crypto.Hash
	Representative crypto.PublicKey
	Sig            crypto.Signature
	WorkNonce      uint64
}

func (b *ChangeBlock) Type() Type                        { return Change }
func (b *ChangeBlock) Previous() crypto.Hash              { return b.PreviousHash }
func (b *ChangeBlock) Signature() crypto.Signature        { return b.Sig }
func (b *ChangeBlock) SetSignature(s crypto.Signature)    { b.Sig = s }
func (b *ChangeBlock) Work() uint64                       { return b.WorkNonce }
func (b *ChangeBlock) SetWork(w uint64)                   { b.WorkNonce = w }
func (b *ChangeBlock) Root(account crypto.PublicKey) crypto.Hash { return rootOf(b.PreviousHash, account) }

func (b *ChangeBlock) hashable() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, b.PreviousHash[:]...)
	buf = append(buf, b.Representative...)
	return buf
}

func (b *ChangeBlock) Hash() crypto.Hash {
	return crypto.BlockHash(b.hashable())
}

func (b *ChangeBlock) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 32+32+crypto.SignatureSize+8)
	off := 0
	copy(buf[off:], b.PreviousHash[:])
	off += 32
	copy(buf[off:], b.Representative)
	off += 32
	copy(buf[off:], b.Sig[:])
	off += crypto.SignatureSize
	binary.LittleEndian.PutUint64(buf[off:], b.WorkNonce)
	return buf, nil
}

// UnmarshalChangeBlock decodes a change block body.
func UnmarshalChangeBlock(buf []byte) (*ChangeBlock, error) {
	const want = 32 + 32 + crypto.SignatureSize + 8
	if len(buf) != want {
		return nil, fmt.Errorf("blocks: change body must be %d bytes, got %d", want, len(buf))
	}
	b := &ChangeBlock{}
	off := 0
	copy(b.PreviousHash[:], buf[off:off+32])
	off += 32
	b.Representative = append(crypto.PublicKey{}, buf[off:off+32]...)
	off += 32
	copy(b.Sig[:], buf[off:off+crypto.SignatureSize])
	off += crypto.SignatureSize
	b.WorkNonce = binary.LittleEndian.Uint64(buf[off:])
	return b, nil
}
