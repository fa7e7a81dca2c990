package ledger

import (
	"fmt"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
)

// Rollback pops blocks off account's chain back to and including target,
// undoing each one's effect on balance, pending entries, and representative
// weight. Confirmation is final (§3.2): rollback refuses to touch any block
// at or below its account's confirmation height.
func (l *Ledger) Rollback(txn *Txn, target crypto.Hash) error {
	typ, row, found, err := txn.FindBlockAnyType(target)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("ledger: rollback: block %s not found", target)
	}
	blk, sb, err := blocks.DecodeRow(blocks.Type(typ), row)
	if err != nil {
		return err
	}
	account := sb.Account
	if account == nil {
		if account, err = l.resolveAccount(txn, blk); err != nil {
			return err
		}
	}

	info, hasInfo, err := txn.GetAccountInfo(account)
	if err != nil {
		return err
	}
	if !hasInfo {
		return fmt.Errorf("ledger: rollback: account %s has no head", account.Hex())
	}

	confHeight, hasConf, err := txn.GetConfirmationHeight(account)
	if err != nil {
		return err
	}

	head := info.Head
	for {
		typ, row, found, err := txn.FindBlockAnyType(head)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("ledger: rollback: chain broken at %s", head)
		}
		blk, sb, err := blocks.DecodeRow(blocks.Type(typ), row)
		if err != nil {
			return err
		}
		if hasConf && sb.Height <= confHeight.Height {
			return fmt.Errorf("ledger: rollback: block %s at height %d is at or below confirmation height %d (confirmed, §3.2)", head, sb.Height, confHeight.Height)
		}

		if err := l.popHead(txn, account, typ, blk); err != nil {
			return err
		}

		if head == target {
			return nil
		}
		head = blk.Previous()
		if head.IsZero() {
			return fmt.Errorf("ledger: rollback: ran off the start of the chain before reaching %s", target)
		}
	}
}

// popHead undoes the single block currently at account's head, restoring
// the account's previous Head/Balance/Representative/Epoch and reversing
// whatever pending-entry effect the block had.
func (l *Ledger) popHead(txn *Txn, account crypto.PublicKey, typ byte, blk blocks.Block) error {
	hash := blk.Hash()
	prevHash := blk.Previous()

	curInfo, hasCur, err := txn.GetAccountInfo(account)
	if err != nil {
		return err
	}
	if !hasCur || curInfo.Head != hash {
		return fmt.Errorf("ledger: rollback: %s is not account %s's current head", hash, account.Hex())
	}

	prevBalance, prevRep, prevEpoch := blocks.ZeroAmount, crypto.PublicKey(nil), Epoch0
	if !prevHash.IsZero() {
		ptyp, prow, found, err := txn.FindBlockAnyType(prevHash)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("ledger: rollback: previous block %s missing", prevHash)
		}
		pblk, psb, err := blocks.DecodeRow(blocks.Type(ptyp), prow)
		if err != nil {
			return err
		}
		prevBalance = psb.Balance
		if _, ok := pblk.(*blocks.StateBlock); ok {
			prevEpoch = Epoch(psb.Details.Epoch)
		}
		prevRep = representativeAfter(pblk, curInfo.Representative)
	}

	c := classify(blk, prevBalance, prevRep, prevEpoch, l.epochLinkFor(prevEpoch+1))

	switch c.kind {
	case kindSend:
		txn.DeletePending(c.destination, hash)
	case kindReceive, kindOpen:
		srcTyp, srow, found, err := txn.FindBlockAnyType(c.source)
		if err != nil {
			return err
		}
		if found {
			sblk, ssb, derr := blocks.DecodeRow(blocks.Type(srcTyp), srow)
			if derr == nil {
				sourceAccount := ssb.Account
				if sourceAccount == nil {
					sourceAccount, _ = l.resolveAccount(txn, sblk)
				}
				amount, _ := curInfo.Balance.Sub(prevBalance)
				sourceEpoch := Epoch0
				if _, ok := sblk.(*blocks.StateBlock); ok {
					sourceEpoch = Epoch(ssb.Details.Epoch)
				}
				if sourceAccount != nil {
					if err := txn.PutPending(account, c.source, PendingEntry{SourceAccount: sourceAccount, Amount: amount, Epoch: sourceEpoch}); err != nil {
						return err
					}
				}
			}
		}
	}

	l.RepWeights.Adjust(curInfo.Representative, curInfo.Balance, prevRep, prevBalance)

	txn.DeleteBlockRow(typ, hash)
	txn.del(frontierKey(hash))

	if prevHash.IsZero() {
		txn.DeleteAccountInfo(account)
		return nil
	}

	txn.put(frontierKey(prevHash), append([]byte{}, account...))
	if err := l.clearSuccessor(txn, prevHash); err != nil {
		return err
	}

	return txn.PutAccountInfo(account, AccountInfo{
		Head:              prevHash,
		Representative:    prevRep,
		OpenBlock:         curInfo.OpenBlock,
		Balance:           prevBalance,
		ModifiedTimestamp: l.now(),
		BlockCount:        curInfo.BlockCount - 1,
		Epoch:             prevEpoch,
	})
}

// representativeAfter returns the representative a block leaves its account
// with, used when walking backwards to recover the representative in effect
// immediately before the block currently being rolled back.
func representativeAfter(b blocks.Block, fallback crypto.PublicKey) crypto.PublicKey {
	switch v := b.(type) {
	case *blocks.StateBlock:
		return v.Representative
	case *blocks.OpenBlock:
		return v.Representative
	case *blocks.ChangeBlock:
		return v.Representative
	default:
		return fallback
	}
}

func (l *Ledger) clearSuccessor(txn *Txn, hash crypto.Hash) error {
	typ, row, found, err := txn.FindBlockAnyType(hash)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	blk, sb, err := blocks.DecodeRow(blocks.Type(typ), row)
	if err != nil {
		return err
	}
	sb.Successor = crypto.ZeroHash
	newRow, err := blocks.EncodeRow(blk, sb)
	if err != nil {
		return err
	}
	txn.PutBlockRow(typ, hash, newRow)
	return nil
}
