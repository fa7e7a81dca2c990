// Package blockproc implements the block processor (§4.4): a single-consumer
// pipeline that admits blocks from peers, the active engine's republish
// path, and operator force-replacement, batches them through one ledger
// write transaction at a time, quarantines blocks with unmet dependencies,
// and re-enqueues them once those dependencies commit.
package blockproc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/events"
	"github.com/tolelom/nanoledger/internal/logging"
	"github.com/tolelom/nanoledger/ledger"
)

// Status reports queue pressure to producers so they can back off (§4.4
// "back-pressure").
type Status int

const (
	Ok Status = iota
	HalfFull
	Full
)

func (s Status) String() string {
	switch s {
	case HalfFull:
		return "half_full"
	case Full:
		return "full"
	default:
		return "ok"
	}
}

// Origin distinguishes why a block was admitted, used to judge whether its
// timestamp counts as "recent" for the live hook (§4.4).
type Origin int

const (
	OriginLive Origin = iota
	OriginBootstrap
	OriginLocal
)

// Entry is one block moving through the pipeline's queues.
type Entry struct {
	Block    blocks.Block
	Typ      byte
	Forced   bool
	Origin   Origin
	Received time.Time
	Verified bool // signature already checked by the batch verifier
}

// LiveHook is invoked after a block commits with Progress and a recent
// origin timestamp: the active engine's insertion point, peer flood, and
// observability (§4.4 "live hook").
type LiveHook func(ledger.ProcessReturn, blocks.Block, Entry)

// DefaultMaxQueue is the combined main+forced length at which Status
// reports Full.
const DefaultMaxQueue = 4096

// livenessWindow bounds how old a block's admission can be and still be
// treated as "recent origin" for the live hook.
const livenessWindow = 15 * time.Second

// batchDeadline bounds how long one consumer pass holds its write
// transaction open, amortizing storage overhead across many blocks without
// starving the rest of the node (§4.4 "batching").
const batchDeadline = 50 * time.Millisecond

// maxBatch bounds how many entries one pass drains regardless of deadline.
const maxBatch = 256

// Processor is the C4 block processor.
type Processor struct {
	ledger *ledger.Ledger
	events *events.Emitter
	log    zerolog.Logger

	maxQueue   int
	sigWorkers int

	mu         sync.Mutex
	sigPending []Entry
	main       []Entry
	forced     []Entry
	notify     chan struct{}

	stopCh chan struct{}
	wg     sync.WaitGroup

	liveHook LiveHook

	dropped atomic.Uint64
}

// New builds a Processor over an already-constructed Ledger. sigWorkers
// controls the batch signature verification pool's concurrency.
func New(l *ledger.Ledger, em *events.Emitter, maxQueue, sigWorkers int) *Processor {
	if maxQueue <= 0 {
		maxQueue = DefaultMaxQueue
	}
	if sigWorkers <= 0 {
		sigWorkers = 4
	}
	return &Processor{
		ledger:     l,
		events:     em,
		log:        logging.Component("blockproc"),
		maxQueue:   maxQueue,
		sigWorkers: sigWorkers,
		notify:     make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
}

// SetLiveHook registers the callback run on freshly committed, recently
// originated blocks. Must be called before Start.
func (p *Processor) SetLiveHook(h LiveHook) {
	p.liveHook = h
}

// Start launches the signature-verification workers and the consumer loop.
func (p *Processor) Start() {
	p.wg.Add(1 + p.sigWorkers)
	for i := 0; i < p.sigWorkers; i++ {
		go p.sigVerifyWorker()
	}
	go p.consumeLoop()
}

// Stop signals every goroutine to exit and waits for them.
func (p *Processor) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// Status reports current back-pressure based on combined main+forced depth.
func (p *Processor) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *Processor) statusLocked() Status {
	depth := len(p.main) + len(p.forced)
	switch {
	case depth >= p.maxQueue:
		return Full
	case depth >= p.maxQueue/2:
		return HalfFull
	default:
		return Ok
	}
}

// needsBatchVerify reports whether typ is eligible for the batch signature
// verification fast path (§4.4: "State/open blocks with unknown
// verification status").
func needsBatchVerify(typ byte) bool {
	return typ == byte(blocks.State) || typ == byte(blocks.Open)
}

// Enqueue admits b from a peer, bootstrap, or the active engine's republish
// path. Returns the resulting back-pressure status; Full callers should
// defer producing.
func (p *Processor) Enqueue(b blocks.Block, origin Origin) Status {
	e := Entry{Block: b, Typ: byte(b.Type()), Origin: origin, Received: p.now()}

	p.mu.Lock()
	status := p.statusLocked()
	if status == Full {
		p.mu.Unlock()
		p.dropped.Add(1)
		return status
	}
	if needsBatchVerify(e.Typ) {
		p.sigPending = append(p.sigPending, e)
	} else {
		p.main = append(p.main, e)
	}
	p.mu.Unlock()
	p.wake()
	return status
}

// Force admits b on the forced path: an operator-driven replacement that,
// if a competing block sits at the same root, rolls that chain back to the
// root before inserting (§4.4 "forced path").
func (p *Processor) Force(b blocks.Block) Status {
	e := Entry{Block: b, Typ: byte(b.Type()), Forced: true, Origin: OriginLocal, Received: p.now(), Verified: true}
	p.mu.Lock()
	status := p.statusLocked()
	p.forced = append(p.forced, e)
	p.mu.Unlock()
	p.wake()
	return status
}

// DroppedCount returns the number of Enqueue calls rejected for Full
// back-pressure since the Processor was created (§4.4 "hit rate on drops is
// a metric").
func (p *Processor) DroppedCount() uint64 {
	return p.dropped.Load()
}

func (p *Processor) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Processor) now() time.Time {
	return time.Now()
}

// sigVerifyWorker drains the signature-pending queue in small groups and
// pre-verifies state/open blocks against their embedded account, falling
// back to the configured epoch signer when the block's link matches a
// configured epoch sentinel. Process still runs the authoritative check
// (§4.3 rule 2); this is a prefilter that lets obviously-forged blocks
// never occupy a write transaction.
func (p *Processor) sigVerifyWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.notify:
		case <-time.After(20 * time.Millisecond):
		}

		batch := p.drainSigPending(32)
		if len(batch) == 0 {
			continue
		}
		var toMain []Entry
		for _, e := range batch {
			if p.verifyOne(e) {
				e.Verified = true
				toMain = append(toMain, e)
			} else {
				p.log.Warn().Str("hash", e.Block.Hash().String()).Msg("dropping block with bad signature before queueing")
			}
		}
		if len(toMain) > 0 {
			p.mu.Lock()
			p.main = append(p.main, toMain...)
			p.mu.Unlock()
			p.wake()
		}
	}
}

func (p *Processor) drainSigPending(n int) []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sigPending) == 0 {
		return nil
	}
	if n > len(p.sigPending) {
		n = len(p.sigPending)
	}
	out := append([]Entry{}, p.sigPending[:n]...)
	p.sigPending = p.sigPending[n:]
	return out
}

func (p *Processor) verifyOne(e Entry) bool {
	var account crypto.PublicKey
	var link crypto.Hash
	switch v := e.Block.(type) {
	case *blocks.StateBlock:
		account, link = v.Account, v.Link
	case *blocks.OpenBlock:
		account = v.Account
	default:
		return true // shouldn't happen given needsBatchVerify, fail open to Process
	}

	hash := e.Block.Hash()
	if crypto.Verify(account, hash, e.Block.Signature()) == nil {
		return true
	}
	if !link.IsZero() && p.ledger.IsAnyEpochLink(link) {
		if crypto.Verify(p.ledger.Config.EpochSigner, hash, e.Block.Signature()) == nil {
			return true
		}
	}
	return false
}
