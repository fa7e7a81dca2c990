package votecache

import (
	"testing"
	"time"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/vote"
)

func TestBlockUniquerReturnsCanonicalInstance(t *testing.T) {
	u, err := NewBlockUniquer(4)
	if err != nil {
		t.Fatalf("NewBlockUniquer: %v", err)
	}
	_, pub, _ := crypto.GenerateKeyPair()
	b1 := &blocks.StateBlock{Account: pub, Representative: pub, Balance: blocks.AmountFromUint64(1)}
	b2 := &blocks.StateBlock{Account: pub, Representative: pub, Balance: blocks.AmountFromUint64(1)}

	first := u.Unique(b1)
	second := u.Unique(b2)
	if first != second {
		t.Fatalf("Unique returned distinct instances for identical blocks")
	}
	if u.Len() != 1 {
		t.Fatalf("Len = %d, want 1", u.Len())
	}
}

func TestVoteUniquerReturnsCanonicalInstance(t *testing.T) {
	u, err := NewVoteUniquer(4)
	if err != nil {
		t.Fatalf("NewVoteUniquer: %v", err)
	}
	priv, _, _ := crypto.GenerateKeyPair()
	v1, _ := vote.New(priv, 1, []crypto.Hash{crypto.BlockHash([]byte("a"))})
	v2 := *v1 // same signature, distinct pointer

	first := u.Unique(v1)
	second := u.Unique(&v2)
	if first != second {
		t.Fatalf("Unique returned distinct instances for the same signed vote")
	}
}

func TestRecentVotesReplacesStaleSequence(t *testing.T) {
	r := NewRecentVotes(4)
	priv, _, _ := crypto.GenerateKeyPair()
	hash := crypto.BlockHash([]byte("root"))
	v1, _ := vote.New(priv, 1, []crypto.Hash{hash})
	v2, _ := vote.New(priv, 2, []crypto.Hash{hash})
	vStale, _ := vote.New(priv, 1, []crypto.Hash{hash})

	if !r.Insert(hash, v1) {
		t.Fatalf("first insert should be accepted")
	}
	if !r.Insert(hash, v2) {
		t.Fatalf("higher sequence should be accepted")
	}
	if r.Insert(hash, vStale) {
		t.Fatalf("stale sequence should be rejected")
	}

	votes := r.Votes(hash)
	if len(votes) != 1 || votes[0].Sequence != 2 {
		t.Fatalf("votes = %+v, want single vote at sequence 2", votes)
	}
}

func TestRecentVotesEvictsOldestRing(t *testing.T) {
	r := NewRecentVotes(2)
	priv, _, _ := crypto.GenerateKeyPair()
	h1 := crypto.BlockHash([]byte("1"))
	h2 := crypto.BlockHash([]byte("2"))
	h3 := crypto.BlockHash([]byte("3"))

	v1, _ := vote.New(priv, 1, []crypto.Hash{h1})
	v2, _ := vote.New(priv, 1, []crypto.Hash{h2})
	v3, _ := vote.New(priv, 1, []crypto.Hash{h3})
	r.Insert(h1, v1)
	r.Insert(h2, v2)
	r.Insert(h3, v3)

	if votes := r.Votes(h1); len(votes) != 0 {
		t.Fatalf("h1 should have been evicted, got %v", votes)
	}
	if votes := r.Votes(h3); len(votes) != 1 {
		t.Fatalf("h3 should still be retained")
	}
}

func TestInactiveVotesCacheSeedsThenClears(t *testing.T) {
	clock := time.Unix(1000, 0)
	c := NewInactiveVotesCache(4, func() time.Time { return clock })
	priv1, _, _ := crypto.GenerateKeyPair()
	priv2, _, _ := crypto.GenerateKeyPair()
	hash := crypto.BlockHash([]byte("pending"))
	v1, _ := vote.New(priv1, 1, []crypto.Hash{hash})
	v2, _ := vote.New(priv2, 1, []crypto.Hash{hash})

	c.Insert(hash, v1)
	c.Insert(hash, v2)

	entry, ok := c.Take(hash)
	if !ok {
		t.Fatalf("expected entry for hash")
	}
	if len(entry.Voters) != 2 {
		t.Fatalf("voters = %d, want 2", len(entry.Voters))
	}
	if !entry.Arrival.Equal(clock) {
		t.Fatalf("arrival = %v, want %v", entry.Arrival, clock)
	}

	if _, ok := c.Take(hash); ok {
		t.Fatalf("Take should be one-shot")
	}
}
