package vote

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/internal/logging"
)

// CanVoter reports whether hash's block is eligible to be voted on — every
// dependency confirmed (§4.7 "only hashes belonging to blocks currently
// can_vote"). Ledger.CanVote implements this.
type CanVoter interface {
	CanVote(hash crypto.Hash) (bool, error)
}

// Cache records a freshly produced vote so the request aggregator (C8) can
// answer a repeat request without re-signing (§4.5, §4.8).
type Cache interface {
	Insert(hash crypto.Hash, v *Vote) bool
}

// Publisher hands a generated vote to the network layer. The flood-to-
// principal-representatives-first, fan-out-2-to-the-rest policy (§4.7) is a
// transport concern that lives in whatever implements this interface;
// transport itself is out of scope for the core (§1).
type Publisher interface {
	Publish(v *Vote)
}

// voter is one local representative key this node signs votes with, plus
// its next outgoing sequence number.
type voter struct {
	priv crypto.PrivateKey
	seq  uint64
}

// GeneratorConfig bundles Generator's dependencies and tuning knobs.
type GeneratorConfig struct {
	Voters    []crypto.PrivateKey
	Ledger    CanVoter
	Cache     Cache
	Publisher Publisher
	Delay     time.Duration // vote_generator_delay, §6.4
	Now       func() time.Time
}

// Generator is the C7 vote generator: an in-memory deque of hashes waiting
// to be voted on, flushed by a dedicated worker whenever it reaches
// MaxHashes or the oldest entry has waited past Delay.
type Generator struct {
	ledger CanVoter
	cache  Cache
	pub    Publisher
	delay  time.Duration
	now    func() time.Time
	log    zerolog.Logger

	voters []*voter

	mu        sync.Mutex
	pending   []crypto.Hash
	pendingAt map[crypto.Hash]time.Time
	inDeque   map[crypto.Hash]struct{}

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewGenerator builds a Generator from cfg. Call Start to launch its
// background worker.
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Delay <= 0 {
		cfg.Delay = 500 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	voters := make([]*voter, len(cfg.Voters))
	for i, priv := range cfg.Voters {
		voters[i] = &voter{priv: priv, seq: uint64(cfg.Now().Unix())}
	}
	return &Generator{
		ledger:    cfg.Ledger,
		cache:     cfg.Cache,
		pub:       cfg.Publisher,
		delay:     cfg.Delay,
		now:       cfg.Now,
		log:       logging.Component("vote_generator"),
		voters:    voters,
		pendingAt: make(map[crypto.Hash]time.Time),
		inDeque:   make(map[crypto.Hash]struct{}),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}
}

// Add enqueues hash for the next vote batch if it is can_vote and not
// already pending (§4.7). A no-op if this Generator has no local
// representatives.
func (g *Generator) Add(hash crypto.Hash) {
	if len(g.voters) == 0 {
		return
	}
	if g.ledger != nil {
		ok, err := g.ledger.CanVote(hash)
		if err != nil {
			g.log.Warn().Err(err).Str("hash", hash.String()).Msg("can_vote check failed")
			return
		}
		if !ok {
			return
		}
	}

	g.mu.Lock()
	if _, dup := g.inDeque[hash]; dup {
		g.mu.Unlock()
		return
	}
	g.inDeque[hash] = struct{}{}
	g.pendingAt[hash] = g.now()
	g.pending = append(g.pending, hash)
	full := len(g.pending) >= MaxHashes
	g.mu.Unlock()

	if full {
		g.signalWake()
	}
}

func (g *Generator) signalWake() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// Start launches the background worker. Call Stop to shut it down.
func (g *Generator) Start() {
	g.wg.Add(1)
	go g.run()
}

// Stop signals the worker to exit and waits for it.
func (g *Generator) Stop() {
	close(g.stop)
	g.wg.Wait()
}

func (g *Generator) run() {
	defer g.wg.Done()
	timer := time.NewTimer(g.delay)
	defer timer.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-g.wake:
			g.flush()
			resetTimer(timer, g.delay)
		case <-timer.C:
			g.flush()
			resetTimer(timer, g.nextDelay())
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// nextDelay returns how long to wait before the timer should next fire: the
// remaining time until the oldest pending hash hits Delay, or Delay itself
// if the deque is empty.
func (g *Generator) nextDelay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.pending) == 0 {
		return g.delay
	}
	oldest := g.pendingAt[g.pending[0]]
	remaining := g.delay - g.now().Sub(oldest)
	if remaining <= 0 {
		return time.Millisecond
	}
	return remaining
}

// flush pulls up to MaxHashes pending hashes and, for every local
// representative, signs one vote covering them (§4.7).
func (g *Generator) flush() {
	g.mu.Lock()
	if len(g.pending) == 0 {
		g.mu.Unlock()
		return
	}
	n := len(g.pending)
	if n > MaxHashes {
		n = MaxHashes
	}
	hashes := append([]crypto.Hash{}, g.pending[:n]...)
	g.pending = g.pending[n:]
	for _, h := range hashes {
		delete(g.inDeque, h)
		delete(g.pendingAt, h)
	}
	g.mu.Unlock()

	for _, v := range g.voters {
		v.seq++
		vt, err := New(v.priv, v.seq, hashes)
		if err != nil {
			g.log.Error().Err(err).Msg("failed to build vote")
			continue
		}
		for _, h := range hashes {
			if g.cache != nil {
				g.cache.Insert(h, vt)
			}
		}
		if g.pub != nil {
			g.pub.Publish(vt)
		}
	}
}
