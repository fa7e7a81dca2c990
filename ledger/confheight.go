package ledger

import (
	"fmt"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
)

// ConfirmationHeightProcessor advances an account's confirmation height
// once a quorum of representative weight has voted a block's ancestry
// confirmed (§4.5, §4.6). It never walks back a height. It does not inspect
// the blocks between the current height and the target; the single height
// write is what cements them.
type ConfirmationHeightProcessor struct {
	store *Store
}

// NewConfirmationHeightProcessor wraps store.
func NewConfirmationHeightProcessor(store *Store) *ConfirmationHeightProcessor {
	return &ConfirmationHeightProcessor{store: store}
}

// Cement advances account's confirmation height up to and including hash's
// height, cementing every block in between. It is a no-op (not an error) if
// hash is already at or below the current confirmation height.
func (c *ConfirmationHeightProcessor) Cement(txn *Txn, account crypto.PublicKey, hash crypto.Hash) error {
	typ, row, found, err := txn.FindBlockAnyType(hash)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("ledger: cement: block %s not found", hash)
	}
	_, sb, err := blocks.DecodeRow(blocks.Type(typ), row)
	if err != nil {
		return err
	}

	cur, hasCur, err := txn.GetConfirmationHeight(account)
	if err != nil {
		return err
	}
	if hasCur && sb.Height <= cur.Height {
		return nil
	}

	return txn.PutConfirmationHeight(account, ConfirmationHeightInfo{
		Height:       sb.Height,
		FrontierHash: hash,
	})
}

// Height returns the current confirmation height for account (zero if the
// account has never had a block cemented).
func (c *ConfirmationHeightProcessor) Height(txn *Txn, account crypto.PublicKey) (uint64, error) {
	info, found, err := txn.GetConfirmationHeight(account)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	return info.Height, nil
}
