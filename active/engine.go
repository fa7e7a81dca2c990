package active

import (
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/events"
	"github.com/tolelom/nanoledger/internal/logging"
	"github.com/tolelom/nanoledger/ledger"
	"github.com/tolelom/nanoledger/vote"
)

// dependencyEpsilon is subtracted from a descendant election's multiplier
// per active ancestor, so an ancestor's multiplier always strictly exceeds
// its dependents' (§4.6 "adjusted multiplier").
const dependencyEpsilon = 1e-6

// DefaultMaxElections caps how many concurrent elections the engine holds
// before the request loop starts evicting the lowest-priority ones.
const DefaultMaxElections = 5000

// DefaultRecentlyFIFOCapacity bounds the recently_confirmed/cemented/dropped
// FIFOs (§4.6).
const DefaultRecentlyFIFOCapacity = 2048

// Engine is the C6 active engine: the set of ongoing elections, ordered by
// adjusted multiplier, plus the bookkeeping that suppresses re-electing a
// root that already settled.
type Engine struct {
	ledger     *ledger.Ledger
	repWeights *ledger.RepWeightCache
	onlineWt   *ledger.OnlineWeightTracker
	confHeight *ledger.ConfirmationHeightProcessor
	work       ledger.WorkVerifier
	events     *events.Emitter
	log        zerolog.Logger

	quorumFraction float64
	electionTTL    time.Duration
	maxElections   int
	now            func() time.Time

	mu                sync.Mutex
	roots             map[QualifiedRoot]*Election
	byBlock           map[crypto.Hash]*Election
	recentlyConfirmed *fifoRing[confirmedEntry]
	recentlyCemented  *fifoRing[confirmedEntry]
	recentlyDropped   *fifoRing[droppedEntry]
}

type confirmedEntry struct {
	Root   QualifiedRoot
	Winner crypto.Hash
}

type droppedEntry struct {
	Root QualifiedRoot
	At   time.Time
}

// Config bundles Engine's dependencies, injected rather than constructed
// internally so tests can swap in fakes for weight/work/confirmation.
type Config struct {
	Ledger         *ledger.Ledger
	RepWeights     *ledger.RepWeightCache
	OnlineWeight   *ledger.OnlineWeightTracker
	ConfHeight     *ledger.ConfirmationHeightProcessor
	Work           ledger.WorkVerifier
	Events         *events.Emitter
	QuorumFraction float64
	ElectionTTL    time.Duration
	MaxElections   int
	Now            func() time.Time
}

// New builds an Engine from cfg.
func New(cfg Config) *Engine {
	if cfg.QuorumFraction <= 0 {
		cfg.QuorumFraction = 0.67
	}
	if cfg.ElectionTTL <= 0 {
		cfg.ElectionTTL = 5 * time.Minute
	}
	if cfg.MaxElections <= 0 {
		cfg.MaxElections = DefaultMaxElections
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		ledger:            cfg.Ledger,
		repWeights:        cfg.RepWeights,
		onlineWt:          cfg.OnlineWeight,
		confHeight:        cfg.ConfHeight,
		work:              cfg.Work,
		events:            cfg.Events,
		log:               logging.Component("active"),
		quorumFraction:    cfg.QuorumFraction,
		electionTTL:       cfg.ElectionTTL,
		maxElections:      cfg.MaxElections,
		now:               cfg.Now,
		roots:             make(map[QualifiedRoot]*Election),
		byBlock:           make(map[crypto.Hash]*Election),
		recentlyConfirmed: newFIFORing[confirmedEntry](DefaultRecentlyFIFOCapacity),
		recentlyCemented:  newFIFORing[confirmedEntry](DefaultRecentlyFIFOCapacity),
		recentlyDropped:   newFIFORing[droppedEntry](DefaultRecentlyFIFOCapacity),
	}
}

// normalizedMultiplier expresses a block's work difficulty relative to its
// threshold: 1.0 sits exactly at threshold, higher values mean more work
// was ground, mirroring the reference node's to_multiplier (original_source
// lib/work.cpp-equivalent).
func normalizedMultiplier(difficulty, threshold uint64) float64 {
	if difficulty >= math.MaxUint64 {
		difficulty = math.MaxUint64 - 1
	}
	return float64(math.MaxUint64-threshold) / float64(math.MaxUint64-difficulty)
}

func (e *Engine) blockMultiplier(account crypto.PublicKey, b blocks.Block, details blocks.Details) float64 {
	if e.work == nil {
		return 1.0
	}
	root := b.Root(account)
	difficulty := e.work.Difficulty(root, b.Work())
	threshold := e.work.Threshold(0, details)
	return normalizedMultiplier(difficulty, threshold)
}

// Insert creates a new election for b (transitioning it straight to active,
// §4.6's "new -> active" via transition_passive is immediate here since the
// engine has no separate passive observation phase), or registers b as an
// additional competing candidate if its root already has one. Returns the
// election and whether it was newly created.
func (e *Engine) Insert(account crypto.PublicKey, b blocks.Block, details blocks.Details) (*Election, bool) {
	root := qualifiedRootOf(b, account)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.recentlyConfirmed.find(func(c confirmedEntry) bool { return c.Root == root }); ok {
		e.log.Debug().Str("root", root.Root.String()).Msg("suppressing re-election of recently confirmed root")
		return nil, false
	}

	if el, ok := e.roots[root]; ok {
		el.addCandidate(b)
		e.byBlock[b.Hash()] = el
		if m := e.blockMultiplier(account, b, details); m > el.adjustedMultiplier {
			el.adjustedMultiplier = m // §4.6 "difficulty updates"
		}
		return el, false
	}

	m := e.blockMultiplier(account, b, details)
	el := newElection(root, b, m, e.now())
	el.Status = StatusActive
	e.roots[root] = el
	e.byBlock[b.Hash()] = el
	e.recomputeDependenciesLocked(el)
	e.enforceCapacityLocked()
	return el, true
}

// recomputeDependenciesLocked marks every ancestor hash of el's blocks that
// is itself the subject of an active election as a dependency, and lowers
// el's multiplier below each such ancestor's (§4.6 "adjusted multiplier").
// Caller must hold e.mu.
func (e *Engine) recomputeDependenciesLocked(el *Election) {
	for _, b := range el.candidates {
		if b == nil {
			continue
		}
		prev := b.Previous()
		if prev.IsZero() {
			continue
		}
		if ancestor, ok := e.byBlock[prev]; ok && ancestor != el {
			el.dependencies[prev] = struct{}{}
			if el.adjustedMultiplier >= ancestor.adjustedMultiplier {
				el.adjustedMultiplier = ancestor.adjustedMultiplier - dependencyEpsilon
			}
		}
	}
}

// enforceCapacityLocked evicts the lowest-priority election once the
// engine holds more than maxElections (§4.6 request-scheduling loop
// "evicts elections above a capacity cut-off").
func (e *Engine) enforceCapacityLocked() {
	for len(e.roots) > e.maxElections {
		var worst *Election
		for _, el := range e.roots {
			if worst == nil || el.adjustedMultiplier < worst.adjustedMultiplier {
				worst = el
			}
		}
		if worst == nil {
			return
		}
		e.dropLocked(worst, "capacity")
	}
}

func (e *Engine) dropLocked(el *Election, reason string) {
	delete(e.roots, el.Root)
	for hash := range el.candidates {
		delete(e.byBlock, hash)
	}
	el.Status = StatusStopped
	e.recentlyDropped.push(droppedEntry{Root: el.Root, At: e.now()})
	e.log.Debug().Str("root", el.Root.Root.String()).Str("reason", reason).Msg("election dropped")
}

// Vote applies v to every election matching any of v.Hashes, tallying
// weighted support and confirming the election if one candidate clears
// quorum (§4.6 vote handling).
func (e *Engine) Vote(v *vote.Vote) {
	weight := e.repWeights.Weight(v.Account)
	if e.onlineWt != nil {
		e.onlineWt.Observe(v.Account)
	}
	if weight.Sign() <= 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	touched := make(map[*Election]struct{})
	for _, hash := range v.Hashes {
		el, ok := e.byBlock[hash]
		if !ok {
			continue
		}
		if el.vote(v.Account, v.Sequence, hash, weight) {
			touched[el] = struct{}{}
		}
	}
	for el := range touched {
		e.maybeConfirmLocked(el)
	}
}

func (e *Engine) quorumThreshold() *big.Int {
	var total *big.Int
	if e.onlineWt != nil {
		total = e.onlineWt.TrimmedTotal()
	} else {
		total = e.repWeights.Total()
	}
	frac := new(big.Float).Mul(new(big.Float).SetInt(total), big.NewFloat(e.quorumFraction))
	out, _ := frac.Int(nil)
	return out
}

// maybeConfirmLocked confirms el if its leading candidate's tally clears
// the quorum threshold (§4.6 vote handling rule 3). Caller must hold e.mu.
func (e *Engine) maybeConfirmLocked(el *Election) {
	if el.Status == StatusConfirmed {
		return
	}
	winner, tally := el.leadingTally()
	if tally.Cmp(e.quorumThreshold()) < 0 {
		return
	}
	el.winner = winner
	el.hasWon = true
	el.Status = StatusConfirmed
	el.confirmedAt = e.now()

	delete(e.roots, el.Root)
	for hash := range el.candidates {
		delete(e.byBlock, hash)
	}
	e.recentlyConfirmed.push(confirmedEntry{Root: el.Root, Winner: winner})

	if e.events != nil {
		e.events.Emit(events.Event{Type: events.EventElectionConfirmed, Hash: winner})
	}

	// A confirmed winner is removed from the dependency set of every
	// election still in progress that depended on it (§4.6 "dependency
	// tracking"). Their adjusted multipliers are not recomputed here.
	for _, other := range e.roots {
		if _, ok := other.dependencies[winner]; ok {
			delete(other.dependencies, winner)
		}
	}
}

// Expire marks every StatusActive election past its TTL as StatusExpired
// and evicts it, making its root eligible for re-election (§4.6 "expired").
// Intended to be called periodically by the request-scheduling loop.
func (e *Engine) Expire() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now()
	for _, el := range e.roots {
		if now.Sub(el.createdAt) >= e.electionTTL {
			e.dropLocked(el, "expired")
			el.Status = StatusExpired
		}
	}
}

// Stop removes the election owning hash (e.g. its dependency rolled back)
// without confirming it (§4.6 "stopped").
func (e *Engine) Stop(hash crypto.Hash) {
	e.mu.Lock()
	defer e.mu.Unlock()
	el, ok := e.byBlock[hash]
	if !ok {
		return
	}
	el.Status = StatusStopped
	e.dropLocked(el, "stopped")
}

// Election returns the election tracking hash, if any.
func (e *Engine) Election(hash crypto.Hash) (*Election, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	el, ok := e.byBlock[hash]
	return el, ok
}

// Len reports the number of ongoing elections.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.roots)
}

// PriorityOrder returns every active election's qualified root sorted by
// descending adjusted multiplier, for the request-scheduling loop's
// reprioritization pass (§4.6).
func (e *Engine) PriorityOrder() []QualifiedRoot {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]QualifiedRoot, 0, len(e.roots))
	for root := range e.roots {
		out = append(out, root)
	}
	sortByMultiplierDesc(out, e.roots)
	return out
}

func sortByMultiplierDesc(roots []QualifiedRoot, byRoot map[QualifiedRoot]*Election) {
	for i := 1; i < len(roots); i++ {
		for j := i; j > 0 && byRoot[roots[j-1]].adjustedMultiplier < byRoot[roots[j]].adjustedMultiplier; j-- {
			roots[j-1], roots[j] = roots[j], roots[j-1]
		}
	}
}
