// Package blocks implements the five on-chain block variants, their
// canonical binary and JSON encodings, and the sideband metadata attached to
// a block once it is committed to the ledger (§3.1, §4.1).
package blocks

import (
	"fmt"

	"github.com/tolelom/nanoledger/crypto"
)

// Type discriminates the five block variants. Numeric values match the
// historical wire encoding (0 is reserved as "not a block").
type Type byte

const (
	Invalid Type = 0
	Send    Type = 2
	Receive Type = 3
	Open    Type = 4
	Change  Type = 5
	State   Type = 6
)

func (t Type) String() string {
	switch t {
	case Send:
		return "send"
	case Receive:
		return "receive"
	case Open:
		return "open"
	case Change:
		return "change"
	case State:
		return "state"
	default:
		return "invalid"
	}
}

// Block is the common surface every variant implements. A visitor over the
// five concrete types (rather than further subtype polymorphism) is how
// higher layers dispatch variant-specific logic (§9 design note).
type Block interface {
	Type() Type
	Hash() crypto.Hash
	// Root is previous if non-zero, else the account (§3.2).
	Root(account crypto.PublicKey) crypto.Hash
	Previous() crypto.Hash
	Signature() crypto.Signature
	SetSignature(crypto.Signature)
	Work() uint64
	SetWork(uint64)
	// MarshalBinary renders the fixed-width wire body (§4.1 table); it does
	// not include the sideband.
	MarshalBinary() ([]byte, error)
}

// Signer returns account for every variant. Epoch state blocks are signed
// by the configured epoch signer instead (§4.3 rule 2); Signer does not
// resolve that case, which is config-dependent and handled in the ledger
// package.
func Signer(b Block, account crypto.PublicKey) crypto.PublicKey {
	return account
}

// rootOf computes a block's root: previous if set, else the account
// reinterpreted as a hash (§3.2).
func rootOf(previous crypto.Hash, account crypto.PublicKey) crypto.Hash {
	if !previous.IsZero() {
		return previous
	}
	return account.AsHash()
}

// ErrUnknownType is returned by DecodeBody, DecodeRow and DecodeJSON for an
// unrecognized block type.
var ErrUnknownType = fmt.Errorf("blocks: unknown block type")
