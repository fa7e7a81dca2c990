package votecache

import (
	"sync"

	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/vote"
)

// DefaultRecentVotesCapacity is the ring's default size for a single local
// voting representative; callers running more than one should divide this
// by their local rep count (§4.5: "capacity scales inversely with the
// number of local voting reps").
const DefaultRecentVotesCapacity = 2048

// RecentVotes is a bounded ring of block_hash -> votes for it, replacing
// any prior vote from the same representative for the same hash (§4.5
// "recent vote cache"). In cmd/node the vote generator writes each vote it
// produces here and the request aggregator reads them back to answer
// repeat requests without re-signing; the active engine does not use it.
type RecentVotes struct {
	mu       sync.Mutex
	capacity int
	order    []crypto.Hash
	byHash   map[crypto.Hash]map[string]*vote.Vote
}

// NewRecentVotes builds a ring holding votes for at most capacity distinct
// block hashes.
func NewRecentVotes(capacity int) *RecentVotes {
	if capacity <= 0 {
		capacity = DefaultRecentVotesCapacity
	}
	return &RecentVotes{
		capacity: capacity,
		byHash:   make(map[crypto.Hash]map[string]*vote.Vote),
	}
}

// Insert records v as the latest vote from its account for hash, replacing
// any earlier vote from the same account for that hash. Returns true if
// this supersedes (by strictly greater sequence) or is the first vote seen
// from that account for hash; false if v is stale and was ignored.
func (r *RecentVotes) Insert(hash crypto.Hash, v *vote.Vote) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	voters, ok := r.byHash[hash]
	if !ok {
		voters = make(map[string]*vote.Vote)
		r.byHash[hash] = voters
		r.order = append(r.order, hash)
		r.evictLocked()
	}

	key := string(v.Account)
	if prior, exists := voters[key]; exists && prior.Sequence >= v.Sequence {
		return false
	}
	voters[key] = v
	return true
}

// Votes returns every currently retained vote for hash, in no particular
// order.
func (r *RecentVotes) Votes(hash crypto.Hash) []*vote.Vote {
	r.mu.Lock()
	defer r.mu.Unlock()
	voters, ok := r.byHash[hash]
	if !ok {
		return nil
	}
	out := make([]*vote.Vote, 0, len(voters))
	for _, v := range voters {
		out = append(out, v)
	}
	return out
}

// evictLocked drops the oldest hash once the ring exceeds capacity. Caller
// must hold r.mu.
func (r *RecentVotes) evictLocked() {
	for len(r.order) > r.capacity {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.byHash, oldest)
	}
}
