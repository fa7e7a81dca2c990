// Package active implements the active engine (C6): the set of ongoing
// root elections, their vote tallies, quorum confirmation, and the
// adjusted-multiplier priority that decides which elections get requested
// first (§4.6).
package active

import (
	"math/big"
	"time"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
)

// Status is an election's position in its state machine (§4.6).
type Status int

const (
	StatusNew Status = iota
	StatusActive
	StatusConfirmed
	StatusExpired
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusConfirmed:
		return "confirmed"
	case StatusExpired:
		return "expired"
	case StatusStopped:
		return "stopped"
	default:
		return "new"
	}
}

// QualifiedRoot is (previous, root): the slot identifier an election owns
// (§3.2 "Qualified root"). Two forks sharing a root but diverging before it
// (e.g. one replacing an account's very first block) never collide.
type QualifiedRoot struct {
	Previous crypto.Hash
	Root     crypto.Hash
}

func qualifiedRootOf(b blocks.Block, account crypto.PublicKey) QualifiedRoot {
	return QualifiedRoot{Previous: b.Previous(), Root: b.Root(account)}
}

// Election tracks every competing block seen at one qualified root, the
// weighted tally for each, and the dependency/priority bookkeeping the
// request-scheduling loop reads (§4.6).
type Election struct {
	Root   QualifiedRoot
	Status Status

	candidates map[crypto.Hash]blocks.Block
	tally      map[crypto.Hash]*big.Int
	lastVote   map[string]voteRecord // voter account (raw bytes as string) -> last accepted vote

	winner crypto.Hash
	hasWon bool

	dependencies map[crypto.Hash]struct{} // unconfirmed ancestor hashes

	adjustedMultiplier float64

	createdAt   time.Time
	confirmedAt time.Time
}

// voteRecord is the last vote this election accepted from one representative,
// kept so a later vote at a higher sequence can remove exactly the weight it
// previously contributed before adding it to its new candidate (§3.2
// "at-most-one-winner", §8.2 vote ordering).
type voteRecord struct {
	seq       uint64
	candidate crypto.Hash
	weight    *big.Int
}

func newElection(root QualifiedRoot, b blocks.Block, multiplier float64, now time.Time) *Election {
	e := &Election{
		Root:               root,
		Status:             StatusNew,
		candidates:         make(map[crypto.Hash]blocks.Block),
		tally:              make(map[crypto.Hash]*big.Int),
		lastVote:           make(map[string]voteRecord),
		dependencies:       make(map[crypto.Hash]struct{}),
		adjustedMultiplier: multiplier,
		createdAt:          now,
	}
	e.candidates[b.Hash()] = b
	e.tally[b.Hash()] = new(big.Int)
	return e
}

// Winner returns the confirmed block and true, or (nil, false) before
// confirmation.
func (e *Election) Winner() (blocks.Block, bool) {
	if !e.hasWon {
		return nil, false
	}
	return e.candidates[e.winner], true
}

// Candidates returns every block currently competing at this root.
func (e *Election) Candidates() []blocks.Block {
	out := make([]blocks.Block, 0, len(e.candidates))
	for _, b := range e.candidates {
		out = append(out, b)
	}
	return out
}

// addCandidate registers a new competing block at this root (a fork), with
// zero initial tally. No-op if already present.
func (e *Election) addCandidate(b blocks.Block) {
	hash := b.Hash()
	if _, ok := e.candidates[hash]; ok {
		return
	}
	e.candidates[hash] = b
	e.tally[hash] = new(big.Int)
}

// vote applies one representative's weighted vote for candidate hash,
// rejecting non-increasing sequences (§4.6 vote handling rule 1). A later
// vote from the same representative, whether for the same or a different
// candidate, supersedes rather than adds to their earlier one: its previous
// contribution is removed from whichever candidate it last supported before
// the new weight is applied (§3.2 "at-most-one-winner", §8.2 vote ordering).
// Returns whether the tally changed.
func (e *Election) vote(voter crypto.PublicKey, sequence uint64, hash crypto.Hash, weight *big.Int) bool {
	key := string(voter)
	if prior, ok := e.lastVote[key]; ok {
		if sequence <= prior.seq {
			return false
		}
		if oldTally, found := e.tally[prior.candidate]; found {
			oldTally.Sub(oldTally, prior.weight)
		}
	}
	e.lastVote[key] = voteRecord{seq: sequence, candidate: hash, weight: new(big.Int).Set(weight)}

	tally, ok := e.tally[hash]
	if !ok {
		tally = new(big.Int)
		e.tally[hash] = tally
		if _, known := e.candidates[hash]; !known {
			// Vote arrived for a hash we haven't seen the block for yet;
			// tally it anyway so quorum can still be reached once the
			// block itself shows up.
			e.candidates[hash] = nil
		}
	}
	tally.Add(tally, weight)
	return true
}

// leadingTally returns the candidate hash with the highest accumulated
// weight and that weight.
func (e *Election) leadingTally() (crypto.Hash, *big.Int) {
	var best crypto.Hash
	bestWeight := new(big.Int)
	first := true
	for hash, weight := range e.tally {
		if first || weight.Cmp(bestWeight) > 0 {
			best, bestWeight, first = hash, weight, false
		}
	}
	return best, bestWeight
}
