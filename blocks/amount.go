package blocks

import (
	"encoding/binary"
	"errors"
	"math/big"
)

// AmountSize is the width in bytes of a 128-bit balance/amount (§3.1).
const AmountSize = 16

// Amount is a big-endian 128-bit unsigned integer.
type Amount [AmountSize]byte

// ZeroAmount is the additive identity.
var ZeroAmount Amount

// AmountFromUint64 builds an Amount from a uint64 value.
func AmountFromUint64(v uint64) Amount {
	var a Amount
	binary.BigEndian.PutUint64(a[8:], v)
	return a
}

// AmountFromBigInt converts a non-negative big.Int to an Amount, returning an
// error if it does not fit in 128 bits.
func AmountFromBigInt(v *big.Int) (Amount, error) {
	var a Amount
	if v.Sign() < 0 {
		return a, errors.New("blocks: amount must be non-negative")
	}
	b := v.Bytes()
	if len(b) > AmountSize {
		return a, errors.New("blocks: amount overflows 128 bits")
	}
	copy(a[AmountSize-len(b):], b)
	return a, nil
}

// BigInt returns the amount as a big.Int.
func (a Amount) BigInt() *big.Int {
	return new(big.Int).SetBytes(a[:])
}

// Cmp compares two amounts the way big.Int.Cmp does.
func (a Amount) Cmp(b Amount) int {
	return a.BigInt().Cmp(b.BigInt())
}

// Sub returns a-b and an error if the result would be negative (negative
// balances never occur in a valid ledger; callers use this to detect
// negative_spend, §4.3 rule 8).
func (a Amount) Sub(b Amount) (Amount, error) {
	r := new(big.Int).Sub(a.BigInt(), b.BigInt())
	return AmountFromBigInt(r)
}

// Add returns a+b, erroring only if the sum would overflow 128 bits.
func (a Amount) Add(b Amount) (Amount, error) {
	r := new(big.Int).Add(a.BigInt(), b.BigInt())
	return AmountFromBigInt(r)
}

// String renders the amount in decimal, as required by §4.1's JSON form.
func (a Amount) String() string {
	return a.BigInt().String()
}
