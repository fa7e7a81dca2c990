package ledger

import (
	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
)

// CanVote reports whether hash's block has every ancestor already cemented,
// i.e. it is the very next block the confirmation-height processor would
// advance to for its account. The vote generator (§4.7) and request
// aggregator (§4.8) only enqueue hashes that clear this check — voting on a
// block whose own dependencies are still unconfirmed wastes a signature on
// something that cannot confirm yet.
func (l *Ledger) CanVote(hash crypto.Hash) (bool, error) {
	txn := l.Store.Begin()
	defer txn.Discard()

	typ, row, found, err := txn.FindBlockAnyType(hash)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	_, sb, err := blocks.DecodeRow(blocks.Type(typ), row)
	if err != nil {
		return false, err
	}

	cur, hasCur, err := txn.GetConfirmationHeight(sb.Account)
	if err != nil {
		return false, err
	}
	if !hasCur {
		return sb.Height == 1, nil
	}
	return sb.Height <= cur.Height+1, nil
}

// Exists reports whether hash identifies a block already committed to the
// ledger, regardless of type (§4.8 "if the block is not in the ledger,
// record as unknown").
func (l *Ledger) Exists(hash crypto.Hash) (bool, error) {
	txn := l.Store.Begin()
	defer txn.Discard()
	_, _, found, err := txn.FindBlockAnyType(hash)
	return found, err
}
