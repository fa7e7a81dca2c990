// Package votecache holds the block/vote uniquer, the recent-vote ring, and
// the inactive-votes cache (§4.5): the memory layer that sits between the
// wire and the active engine, so identical blocks and votes arriving from
// many peers collapse onto one shared instance.
package votecache

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/vote"
)

// DefaultUniquerCapacity bounds how many distinct hashes a uniquer holds
// before its LRU discipline starts evicting the least recently touched.
const DefaultUniquerCapacity = 50_000

// BlockUniquer maps a block's full hash to one canonical in-memory
// instance, so an election and a republish path referencing the same block
// share memory instead of each holding their own wire-decoded copy (§4.5).
type BlockUniquer struct {
	cache *lru.Cache[crypto.Hash, blocks.Block]
}

// NewBlockUniquer builds a uniquer holding at most capacity distinct blocks.
func NewBlockUniquer(capacity int) (*BlockUniquer, error) {
	if capacity <= 0 {
		capacity = DefaultUniquerCapacity
	}
	c, err := lru.New[crypto.Hash, blocks.Block](capacity)
	if err != nil {
		return nil, err
	}
	return &BlockUniquer{cache: c}, nil
}

// Unique returns the canonical instance for b's hash, registering b as that
// instance the first time its hash is seen. Insertion beyond capacity
// evicts the least recently used entry (§4.5 "bounded number of stale
// entries are swept per insertion").
func (u *BlockUniquer) Unique(b blocks.Block) blocks.Block {
	hash := b.Hash()
	if existing, ok := u.cache.Get(hash); ok {
		return existing
	}
	u.cache.Add(hash, b)
	return b
}

// Len reports how many distinct blocks are currently cached.
func (u *BlockUniquer) Len() int { return u.cache.Len() }

// VoteUniquer is BlockUniquer's counterpart over votes, keyed by each
// vote's signature hash (distinct per account/sequence/payload, §3.1).
type VoteUniquer struct {
	cache *lru.Cache[crypto.Hash, *vote.Vote]
}

// NewVoteUniquer builds a uniquer holding at most capacity distinct votes.
func NewVoteUniquer(capacity int) (*VoteUniquer, error) {
	if capacity <= 0 {
		capacity = DefaultUniquerCapacity
	}
	c, err := lru.New[crypto.Hash, *vote.Vote](capacity)
	if err != nil {
		return nil, err
	}
	return &VoteUniquer{cache: c}, nil
}

// Unique returns the canonical instance for v's signature hash.
func (u *VoteUniquer) Unique(v *vote.Vote) *vote.Vote {
	key := v.HashKey()
	if existing, ok := u.cache.Get(key); ok {
		return existing
	}
	u.cache.Add(key, v)
	return v
}

// Len reports how many distinct votes are currently cached.
func (u *VoteUniquer) Len() int { return u.cache.Len() }
