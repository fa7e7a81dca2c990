package votecache

import (
	"sync"
	"time"

	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/vote"
)

// DefaultInactiveVotesCapacity bounds the number of distinct not-yet-elected
// block hashes the inactive-votes cache retains.
const DefaultInactiveVotesCapacity = 8192

// InactiveVoteEntry is the vote history collected for a block hash before
// any election for it existed.
type InactiveVoteEntry struct {
	Hash    crypto.Hash
	Voters  map[string]*vote.Vote // keyed by hex-ish raw account bytes
	Arrival time.Time             // first time this hash was seen here
}

// InactiveVotesCache retains votes for blocks an operator hasn't started an
// election for yet, keyed by block hash (§4.5 "inactive-votes cache"). Take
// hands a caller the votes accumulated for a hash. The active engine does
// not construct this cache or call Take: its elections start without
// seeded votes, and nothing here short-circuits bootstrap.
type InactiveVotesCache struct {
	mu       sync.Mutex
	capacity int
	order    []crypto.Hash
	byHash   map[crypto.Hash]*InactiveVoteEntry
	now      func() time.Time
}

// NewInactiveVotesCache builds a cache holding at most capacity distinct
// block hashes. now is injectable for deterministic tests.
func NewInactiveVotesCache(capacity int, now func() time.Time) *InactiveVotesCache {
	if capacity <= 0 {
		capacity = DefaultInactiveVotesCapacity
	}
	if now == nil {
		now = time.Now
	}
	return &InactiveVotesCache{
		capacity: capacity,
		byHash:   make(map[crypto.Hash]*InactiveVoteEntry),
		now:      now,
	}
}

// Insert records v as having voted for hash.
func (c *InactiveVotesCache) Insert(hash crypto.Hash, v *vote.Vote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.byHash[hash]
	if !ok {
		entry = &InactiveVoteEntry{Hash: hash, Voters: make(map[string]*vote.Vote), Arrival: c.now()}
		c.byHash[hash] = entry
		c.order = append(c.order, hash)
		c.evictLocked()
	}
	entry.Voters[string(v.Account)] = v
}

// Take removes and returns the accumulated entry for hash, if any. It is
// one-shot: a second Take for the same hash finds nothing.
func (c *InactiveVotesCache) Take(hash crypto.Hash) (*InactiveVoteEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.byHash[hash]
	if !ok {
		return nil, false
	}
	delete(c.byHash, hash)
	for i, h := range c.order {
		if h == hash {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return entry, true
}

func (c *InactiveVotesCache) evictLocked() {
	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.byHash, oldest)
	}
}
