package ledger

import (
	"fmt"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/storage"
)

// kind classifies what effect a block has on its account's balance/pending
// entries, unifying legacy variants (whose shape is fixed per type) with
// state blocks (whose shape depends on Subtype, §4.3).
type kind int

const (
	kindOpen kind = iota
	kindSend
	kindReceive
	kindChange
	kindEpoch
	kindMalformed
)

// classified holds the derived effect of a block, computed once up front so
// the thirteen ordered checks (§4.3) can all read from one place instead of
// re-deriving per-variant fields.
type classified struct {
	kind        kind
	newBalance  blocks.Amount
	newRep      crypto.PublicKey
	source      crypto.Hash // receive/open: the send block being consumed
	destination crypto.PublicKey // send: who receives the pending entry
}

func classify(b blocks.Block, prevBalance blocks.Amount, prevRep crypto.PublicKey, prevEpoch Epoch, nextEpochLink crypto.Hash) classified {
	switch v := b.(type) {
	case *blocks.SendBlock:
		return classified{kind: kindSend, newBalance: v.Balance, newRep: prevRep, destination: v.Destination}
	case *blocks.ReceiveBlock:
		return classified{kind: kindReceive, newRep: prevRep, source: v.Source}
	case *blocks.OpenBlock:
		return classified{kind: kindOpen, newRep: v.Representative, source: v.Source}
	case *blocks.ChangeBlock:
		return classified{kind: kindChange, newBalance: prevBalance, newRep: v.Representative}
	case *blocks.StateBlock:
		switch v.Subtype(prevBalance, nextEpochLink) {
		case blocks.SubtypeSend:
			dest := crypto.PubKeyFromHash(v.Link)
			return classified{kind: kindSend, newBalance: v.Balance, newRep: v.Representative, destination: dest}
		case blocks.SubtypeReceive:
			return classified{kind: kindReceive, newBalance: v.Balance, newRep: v.Representative, source: v.Link}
		case blocks.SubtypeChange:
			return classified{kind: kindChange, newBalance: v.Balance, newRep: v.Representative}
		case blocks.SubtypeEpoch:
			return classified{kind: kindEpoch, newBalance: v.Balance, newRep: v.Representative}
		default:
			return classified{kind: kindMalformed}
		}
	default:
		return classified{kind: kindMalformed}
	}
}

// Process validates b against current ledger state and, on success, commits
// it within txn (§4.3). The caller commits or discards txn; Process never
// does so itself, since a batch of blocks may share one transaction (§4.4).
func (l *Ledger) Process(txn *Txn, b blocks.Block) (ProcessReturn, error) {
	hash := b.Hash()
	typ := byte(b.Type())

	// 1. old
	if _, found, err := txn.GetBlockRow(typ, hash); err != nil {
		return ProcessReturn{}, err
	} else if found {
		return ProcessReturn{Code: Old}, nil
	}

	account, err := l.resolveAccount(txn, b)
	if err != nil {
		return ProcessReturn{}, err
	}
	if account == nil {
		// No open block for this account and no frontier entry for the
		// legacy block's previous hash: the dependency a signer could be
		// derived from simply isn't there yet.
		return ProcessReturn{Code: GapPrevious}, nil
	}

	info, hasInfo, err := txn.GetAccountInfo(account)
	if err != nil {
		return ProcessReturn{}, err
	}
	prevBalance, prevRep, prevEpoch := ZeroAmountFor(), crypto.PublicKey(nil), Epoch0
	if hasInfo {
		prevBalance, prevRep, prevEpoch = info.Balance, info.Representative, info.Epoch
	}

	c := classify(b, prevBalance, prevRep, prevEpoch, l.epochLinkFor(prevEpoch+1))

	// 2. bad_signature
	signer := account
	if c.kind == kindEpoch {
		signer = l.Config.EpochSigner
	} else if sb, ok := b.(*blocks.StateBlock); ok && c.kind == kindMalformed && l.IsAnyEpochLink(sb.Link) {
		// An epoch link for some epoch other than the next one is still an
		// epoch block; it is rejected below as block_position (rule 11).
		signer = l.Config.EpochSigner
	}
	if err := crypto.Verify(signer, hash, b.Signature()); err != nil {
		return ProcessReturn{Code: BadSignature}, nil
	}

	// 3. opened_burn_account
	if l.isBurnAccount(account) {
		return ProcessReturn{Code: OpenedBurnAccount}, nil
	}

	// 4. gap_previous
	if !b.Previous().IsZero() {
		if _, _, found, err := txn.FindBlockAnyType(b.Previous()); err != nil {
			return ProcessReturn{}, err
		} else if !found {
			return ProcessReturn{Code: GapPrevious}, nil
		}
	}

	// 5. gap_source
	if c.kind == kindReceive || c.kind == kindOpen {
		if _, _, found, err := txn.FindBlockAnyType(c.source); err != nil {
			return ProcessReturn{}, err
		} else if !found {
			return ProcessReturn{Code: GapSource}, nil
		}
	}

	// 6. fork
	if hasInfo {
		if b.Previous() != info.Head {
			return ProcessReturn{Code: Fork}, nil
		}
	} else if !b.Previous().IsZero() {
		return ProcessReturn{Code: Fork}, nil
	}

	// 7. unreceivable
	var pending PendingEntry
	var havePending bool
	if c.kind == kindReceive || c.kind == kindOpen {
		pending, havePending, err = txn.GetPending(account, c.source)
		if err != nil {
			return ProcessReturn{}, err
		}
		if !havePending {
			return ProcessReturn{Code: Unreceivable}, nil
		}
		legacy := typ != byte(blocks.State)
		if legacy && pending.Epoch > Epoch0 {
			return ProcessReturn{Code: Unreceivable}, nil
		}
	}

	// 8. negative_spend
	if c.kind == kindSend && c.newBalance.Cmp(prevBalance) > 0 {
		return ProcessReturn{Code: NegativeSpend}, nil
	}

	// 9. balance_mismatch
	if typ == byte(blocks.State) {
		switch c.kind {
		case kindReceive:
			delta, err := c.newBalance.Sub(prevBalance)
			if err != nil || delta.Cmp(pending.Amount) != 0 {
				return ProcessReturn{Code: BalanceMismatch}, nil
			}
		case kindEpoch:
			if c.newBalance.Cmp(prevBalance) != 0 {
				return ProcessReturn{Code: BalanceMismatch}, nil
			}
		}
	}

	// 10. representative_mismatch
	if c.kind == kindEpoch {
		if hasInfo {
			if string(c.newRep) != string(prevRep) {
				return ProcessReturn{Code: RepresentativeMismatch}, nil
			}
		} else if !c.newRep.IsZero() {
			// An epoch block opening a never-before-seen account carries no
			// representative of its own yet (§4.3 rule 10, §8.3).
			return ProcessReturn{Code: RepresentativeMismatch}, nil
		}
	}

	// 11. block_position
	if c.kind == kindEpoch && !hasInfo {
		// An epoch block may open an account that has never had a block of
		// its own, but only if it already has at least one pending receive
		// waiting (§8.3 "Epoch block on an unopened account").
		anyPending, err := txn.PendingAny(account)
		if err != nil {
			return ProcessReturn{}, err
		}
		if !anyPending {
			return ProcessReturn{Code: BlockPosition}, nil
		}
	}
	if c.kind == kindMalformed {
		return ProcessReturn{Code: BlockPosition}, nil
	}

	// 12. insufficient_work
	newEpoch := prevEpoch
	if c.kind == kindEpoch {
		newEpoch++
	}
	details := blocks.Details{
		Epoch:     uint8(newEpoch),
		IsSend:    c.kind == kindSend,
		IsReceive: c.kind == kindReceive || c.kind == kindOpen,
		IsEpoch:   c.kind == kindEpoch,
	}
	root := b.Root(account)
	if l.Work != nil {
		diff := l.Work.Difficulty(root, b.Work())
		if diff < l.Work.Threshold(uint8(newEpoch), details) {
			return ProcessReturn{Code: InsufficientWork}, nil
		}
	}

	// 13. progress
	amount := blocks.ZeroAmount
	switch c.kind {
	case kindSend:
		amount, _ = prevBalance.Sub(c.newBalance)
	case kindReceive, kindOpen:
		amount = pending.Amount
		if c.kind == kindOpen {
			c.newBalance = amount
		}
	case kindChange:
		c.newBalance = prevBalance
	}

	newInfo := AccountInfo{
		Head:              hash,
		Representative:    c.newRep,
		OpenBlock:         info.OpenBlock,
		Balance:           c.newBalance,
		ModifiedTimestamp: l.now(),
		BlockCount:        info.BlockCount + 1,
		Epoch:             newEpoch,
	}
	if !hasInfo {
		newInfo.OpenBlock = hash
	}
	if err := txn.PutAccountInfo(account, newInfo); err != nil {
		return ProcessReturn{}, err
	}

	sb := blocks.Sideband{
		Successor: crypto.ZeroHash,
		Account:   account,
		Balance:   c.newBalance,
		Height:    newInfo.BlockCount,
		Timestamp: int64(l.now()),
		Details:   details,
	}
	row, err := blocks.EncodeRow(b, sb)
	if err != nil {
		return ProcessReturn{}, fmt.Errorf("ledger: encode row: %w", err)
	}
	txn.PutBlockRow(typ, hash, row)

	if !b.Previous().IsZero() {
		if err := l.updateSuccessor(txn, b.Previous(), hash); err != nil {
			return ProcessReturn{}, err
		}
		txn.del(frontierKey(b.Previous()))
	}
	txn.put(frontierKey(hash), append([]byte{}, account...))

	switch c.kind {
	case kindSend:
		entry := PendingEntry{SourceAccount: account, Amount: amount, Epoch: newEpoch}
		if err := txn.PutPending(c.destination, hash, entry); err != nil {
			return ProcessReturn{}, err
		}
	case kindReceive, kindOpen:
		txn.DeletePending(account, c.source)
	}

	l.RepWeights.Adjust(prevRep, prevBalance, c.newRep, c.newBalance)

	l.log.Debug().Str("account", account.Hex()).Str("hash", hash.String()).Str("type", b.Type().String()).Msg("block committed")

	return ProcessReturn{
		Code:            Progress,
		Verified:        true,
		Account:         account,
		Amount:          amount,
		PendingAccount:  c.destination,
		PreviousBalance: prevBalance,
	}, nil
}

func (l *Ledger) now() uint64 {
	if l.Config.Now != nil {
		return l.Config.Now()
	}
	return 0
}

// resolveAccount derives the account a block belongs to (§4.3): explicit for
// state/open blocks, or via the frontier table (previous hash → account)
// for the other three legacy variants, which don't carry their account on
// the wire.
func (l *Ledger) resolveAccount(txn *Txn, b blocks.Block) (crypto.PublicKey, error) {
	switch v := b.(type) {
	case *blocks.StateBlock:
		return v.Account, nil
	case *blocks.OpenBlock:
		return v.Account, nil
	default:
		raw, err := txn.get(frontierKey(b.Previous()))
		if err == storage.ErrNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return crypto.PublicKey(raw), nil
	}
}

// updateSuccessor rewrites previousHash's sideband.successor field to point
// at newHash (§3.2, §4.3 rule 13). Committed block bodies are immutable;
// only this sideband field ever changes after insertion.
func (l *Ledger) updateSuccessor(txn *Txn, previousHash, newHash crypto.Hash) error {
	typ, row, found, err := txn.FindBlockAnyType(previousHash)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	blk, sb, err := blocks.DecodeRow(blocks.Type(typ), row)
	if err != nil {
		return fmt.Errorf("ledger: decode previous row for successor update: %w", err)
	}
	sb.Successor = newHash
	newRow, err := blocks.EncodeRow(blk, sb)
	if err != nil {
		return err
	}
	txn.PutBlockRow(typ, previousHash, newRow)
	return nil
}

// ZeroAmountFor exists only so callers that want a named zero value read
// clearly at call sites; it is exactly blocks.ZeroAmount.
func ZeroAmountFor() blocks.Amount { return blocks.ZeroAmount }
