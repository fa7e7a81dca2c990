package ledger

import (
	"math/big"
	"sync"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
)

// RepWeightCache maintains weight(R) = Σ balance(A) over every account A
// whose representative is R (§3.2). A single RWMutex guards the whole map;
// reads (vote tallying, §4.6) take the read lock, so they never block one
// another and contend only with writers.
type RepWeightCache struct {
	mu      sync.RWMutex
	weights map[string]*big.Int
}

// NewRepWeightCache builds a cache from a full account-table scan, the only
// time the whole table needs to be read (subsequent updates are incremental,
// §4.3 rule 13).
func NewRepWeightCache(infos map[string]AccountInfo) *RepWeightCache {
	c := &RepWeightCache{weights: make(map[string]*big.Int)}
	for _, info := range infos {
		if info.Representative == nil {
			continue
		}
		c.add(string(info.Representative), info.Balance.BigInt())
	}
	return c
}

func (c *RepWeightCache) add(rep string, delta *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.weights[rep]
	if !ok {
		cur = new(big.Int)
		c.weights[rep] = cur
	}
	cur.Add(cur, delta)
}

// Adjust applies the rule-13 update: subtract the account's old balance
// from its old representative's weight, add the new balance to the new
// representative's weight. Either representative may be nil/zero (account
// not yet opened).
func (c *RepWeightCache) Adjust(oldRep crypto.PublicKey, oldBalance blocks.Amount, newRep crypto.PublicKey, newBalance blocks.Amount) {
	if oldRep != nil {
		c.add(string(oldRep), new(big.Int).Neg(oldBalance.BigInt()))
	}
	if newRep != nil {
		c.add(string(newRep), newBalance.BigInt())
	}
}

// SeedWeight adds delta to rep's cached weight directly, without an
// accompanying account balance change. Used to bootstrap a node joining a
// chain that already has history, before any of that history has been
// replayed into the account table (§6.4 "bootstrap representative
// weights").
func (c *RepWeightCache) SeedWeight(rep crypto.PublicKey, delta *big.Int) {
	c.add(string(rep), delta)
}

// Weight returns the current cached weight for rep (zero if unknown).
func (c *RepWeightCache) Weight(rep crypto.PublicKey) *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cur, ok := c.weights[string(rep)]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(cur)
}

// Total returns the sum of every cached representative's weight, the
// denominator candidate for quorum fractions before online-weight trimming
// (§4.6).
func (c *RepWeightCache) Total() *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := new(big.Int)
	for _, w := range c.weights {
		total.Add(total, w)
	}
	return total
}

// Verify recomputes the cache from infos and reports whether it still
// matches the live cache (§3.2 invariant: "cache must equal the recomputed
// sum at all times"). Intended for periodic auditing, not the hot path.
func (c *RepWeightCache) Verify(infos map[string]AccountInfo) bool {
	recomputed := NewRepWeightCache(infos)
	c.mu.RLock()
	defer c.mu.RUnlock()
	recomputed.mu.RLock()
	defer recomputed.mu.RUnlock()
	if len(c.weights) != len(recomputed.weights) {
		return false
	}
	for rep, w := range c.weights {
		other, ok := recomputed.weights[rep]
		if !ok || w.Cmp(other) != 0 {
			return false
		}
	}
	return true
}
