package blockproc

import (
	"time"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/events"
	"github.com/tolelom/nanoledger/ledger"
)

// consumeLoop is the pipeline's single consumer (§4.4 "a single-consumer
// pipeline"). Every pass drains a bounded prefix of forced+main under one
// write transaction, bounded by batchDeadline or maxBatch.
func (p *Processor) consumeLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.notify:
		case <-time.After(100 * time.Millisecond):
		}
		p.drainAndProcess()
	}
}

func (p *Processor) drainAndProcess() {
	batch := p.drainBatch()
	if len(batch) == 0 {
		return
	}

	deadline := time.Now().Add(batchDeadline)
	txn := p.ledger.Store.Begin()

	for i, e := range batch {
		if i > 0 && time.Now().After(deadline) {
			// Ran out of time for this pass; push the remainder back to the
			// front of the queue for the next one.
			p.requeueFront(batch[i:])
			break
		}
		p.processEntry(txn, e)
	}

	if err := txn.Commit(); err != nil {
		p.log.Error().Err(err).Msg("batch commit failed")
	}
}

// drainBatch pulls up to maxBatch entries, forced queue first since a
// forced replacement is operator-driven and should not wait behind
// ordinary traffic.
func (p *Processor) drainBatch() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Entry
	take := func(q *[]Entry) {
		for len(out) < maxBatch && len(*q) > 0 {
			out = append(out, (*q)[0])
			*q = (*q)[1:]
		}
	}
	take(&p.forced)
	take(&p.main)
	return out
}

func (p *Processor) requeueFront(entries []Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.main = append(append([]Entry{}, entries...), p.main...)
}

func (p *Processor) processEntry(txn *ledger.Txn, e Entry) {
	if e.Forced {
		if err := p.prepareForced(txn, e.Block); err != nil {
			p.log.Error().Err(err).Str("hash", e.Block.Hash().String()).Msg("forced rollback failed")
			return
		}
	}

	ret, err := p.ledger.Process(txn, e.Block)
	if err != nil {
		p.log.Error().Err(err).Str("hash", e.Block.Hash().String()).Msg("process error")
		return
	}

	switch ret.Code {
	case ledger.Progress:
		p.onProgress(txn, ret, e)
	case ledger.GapPrevious, ledger.GapSource:
		p.quarantine(txn, e, ret.Code)
	default:
		p.log.Debug().Str("hash", e.Block.Hash().String()).Str("result", ret.Code.String()).Msg("block rejected")
		if p.events != nil {
			p.events.Emit(events.Event{
				Type: events.EventForkDetected,
				Hash: e.Block.Hash(),
				Data: map[string]any{"result": ret.Code.String()},
			})
		}
	}
}

// prepareForced rolls back any existing chain at b's root down to (but not
// past) confirmation height, so the forced block can take its place
// (§4.4 "forced path").
func (p *Processor) prepareForced(txn *ledger.Txn, b blocks.Block) error {
	root := b.Root(rootAccountHint(b))
	typ, row, found, err := txn.FindBlockAnyType(root)
	if err != nil || !found {
		return err
	}
	existing, _, err := blocks.DecodeRow(blocks.Type(typ), row)
	if err != nil {
		return err
	}
	if existing.Hash() == b.Hash() {
		return nil // already the same block, nothing to replace
	}
	return p.ledger.Rollback(txn, existing.Hash())
}

// rootAccountHint extracts the account embedded in b, if any, for Root's
// account fallback (only used when Previous is zero).
func rootAccountHint(b blocks.Block) crypto.PublicKey {
	switch v := b.(type) {
	case *blocks.StateBlock:
		return v.Account
	case *blocks.OpenBlock:
		return v.Account
	default:
		return nil
	}
}

// onProgress handles a successfully committed block: re-enqueues anything
// unchecked on its hash, and runs the live hook for recent-origin traffic.
func (p *Processor) onProgress(txn *ledger.Txn, ret ledger.ProcessReturn, e Entry) {
	hash := e.Block.Hash()
	unblocked, err := txn.TakeUnchecked(hash)
	if err != nil {
		p.log.Error().Err(err).Str("hash", hash.String()).Msg("take unchecked failed")
	} else if len(unblocked) > 0 {
		p.mu.Lock()
		for _, b := range unblocked {
			p.main = append([]Entry{{Block: b, Typ: byte(b.Type()), Origin: OriginBootstrap, Received: p.now(), Verified: true}}, p.main...)
		}
		p.mu.Unlock()
	}

	if p.events != nil {
		p.events.Emit(events.Event{Type: events.EventBlockProcessed, Account: ret.Account, Hash: hash})
	}

	if e.Origin == OriginLive || e.Forced {
		if time.Since(e.Received) <= livenessWindow && p.liveHook != nil {
			p.liveHook(ret, e.Block, e)
		}
	}
}

// quarantine stores e under the dependency hash code names, for re-delivery
// once that dependency commits (§4.4 "gap handling").
func (p *Processor) quarantine(txn *ledger.Txn, e Entry, code ledger.ProcessResult) {
	dep, ok := dependencyHash(e.Block, code)
	if !ok {
		p.log.Warn().Str("hash", e.Block.Hash().String()).Str("result", code.String()).Msg("could not determine dependency for quarantine")
		return
	}
	if err := txn.PutUnchecked(dep, e.Typ, e.Block); err != nil {
		p.log.Error().Err(err).Str("hash", e.Block.Hash().String()).Msg("put unchecked failed")
	}
}

// dependencyHash returns the hash the block is missing, given the gap code
// Process returned. GapSource is only ever returned for receive/open-shaped
// blocks, so Link/Source unambiguously names the missing source block.
func dependencyHash(b blocks.Block, code ledger.ProcessResult) (crypto.Hash, bool) {
	switch code {
	case ledger.GapPrevious:
		return b.Previous(), true
	case ledger.GapSource:
		switch v := b.(type) {
		case *blocks.ReceiveBlock:
			return v.Source, true
		case *blocks.OpenBlock:
			return v.Source, true
		case *blocks.StateBlock:
			return v.Link, true
		}
	}
	return crypto.Hash{}, false
}
