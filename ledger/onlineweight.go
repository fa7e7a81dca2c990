package ledger

import (
	"math/big"
	"sync"
	"time"

	"github.com/tolelom/nanoledger/crypto"
)

// onlineWeightWindow is how far back a representative's vote keeps it
// counted as online (§4.6: the trailing quorum window used to trim
// inactive representatives out of the weight total before a quorum
// fraction is applied).
const onlineWeightWindow = 5 * time.Minute

// OnlineWeightTracker records the most recent time each representative was
// observed voting, and reports the trimmed total weight (RepWeightCache's
// total minus any representative that hasn't voted inside the window).
type OnlineWeightTracker struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	weights *RepWeightCache
	now     func() time.Time
}

// NewOnlineWeightTracker wraps a RepWeightCache. now defaults to time.Now.
func NewOnlineWeightTracker(weights *RepWeightCache, now func() time.Time) *OnlineWeightTracker {
	if now == nil {
		now = time.Now
	}
	return &OnlineWeightTracker{
		seen:    make(map[string]time.Time),
		weights: weights,
		now:     now,
	}
}

// Observe records that rep was just seen voting.
func (o *OnlineWeightTracker) Observe(rep crypto.PublicKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen[string(rep)] = o.now()
}

// TrimmedTotal returns the sum of weight over representatives observed
// within the online window — the denominator §4.6 quorum math actually
// uses, distinct from RepWeightCache.Total's raw ledger-wide sum.
func (o *OnlineWeightTracker) TrimmedTotal() *big.Int {
	o.mu.Lock()
	cutoff := o.now().Add(-onlineWeightWindow)
	online := make([]string, 0, len(o.seen))
	for rep, t := range o.seen {
		if t.After(cutoff) {
			online = append(online, rep)
		}
	}
	o.mu.Unlock()

	total := new(big.Int)
	for _, rep := range online {
		total.Add(total, o.weights.Weight(crypto.PublicKey(rep)))
	}
	return total
}

// Prune discards tracked representatives that have fallen out of the
// window, bounding memory use on a long-running node.
func (o *OnlineWeightTracker) Prune() {
	o.mu.Lock()
	defer o.mu.Unlock()
	cutoff := o.now().Add(-onlineWeightWindow)
	for rep, t := range o.seen {
		if !t.After(cutoff) {
			delete(o.seen, rep)
		}
	}
}
