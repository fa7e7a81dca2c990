package vote

import (
	"sync"
	"testing"
	"time"

	"github.com/tolelom/nanoledger/crypto"
)

type fakeCanVoter struct{ allow bool }

func (f fakeCanVoter) CanVote(crypto.Hash) (bool, error) { return f.allow, nil }

type fakeCache struct {
	mu     sync.Mutex
	byHash map[crypto.Hash][]*Vote
}

func newFakeCache() *fakeCache {
	return &fakeCache{byHash: make(map[crypto.Hash][]*Vote)}
}

func (c *fakeCache) Insert(hash crypto.Hash, v *Vote) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byHash[hash] = append(c.byHash[hash], v)
	return true
}

func (c *fakeCache) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byHash)
}

type fakePublisher struct {
	mu    sync.Mutex
	votes []*Vote
}

func (p *fakePublisher) Publish(v *Vote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.votes = append(p.votes, v)
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.votes)
}

func TestGeneratorFlushesOnMaxHashes(t *testing.T) {
	priv, _, _ := crypto.GenerateKeyPair()
	cache := newFakeCache()
	pub := &fakePublisher{}
	g := NewGenerator(GeneratorConfig{
		Voters:    []crypto.PrivateKey{priv},
		Ledger:    fakeCanVoter{allow: true},
		Cache:     cache,
		Publisher: pub,
		Delay:     time.Hour, // long enough that only the size trigger can fire
	})
	g.Start()
	defer g.Stop()

	for i := 0; i < MaxHashes; i++ {
		g.Add(crypto.BlockHash([]byte{byte(i)}))
	}

	deadline := time.Now().Add(2 * time.Second)
	for pub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if pub.count() != 1 {
		t.Fatalf("Publish called %d times, want 1", pub.count())
	}
	if cache.count() != MaxHashes {
		t.Fatalf("cache holds %d hashes, want %d", cache.count(), MaxHashes)
	}
}

func TestGeneratorFlushesOnDelay(t *testing.T) {
	priv, _, _ := crypto.GenerateKeyPair()
	pub := &fakePublisher{}
	g := NewGenerator(GeneratorConfig{
		Voters:    []crypto.PrivateKey{priv},
		Ledger:    fakeCanVoter{allow: true},
		Cache:     newFakeCache(),
		Publisher: pub,
		Delay:     30 * time.Millisecond,
	})
	g.Start()
	defer g.Stop()

	g.Add(crypto.BlockHash([]byte("only one")))

	deadline := time.Now().Add(2 * time.Second)
	for pub.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if pub.count() != 1 {
		t.Fatalf("Publish called %d times, want 1", pub.count())
	}
	if len(pub.votes[0].Hashes) != 1 {
		t.Fatalf("vote covers %d hashes, want 1", len(pub.votes[0].Hashes))
	}
}

func TestGeneratorSkipsBlocksThatCannotVote(t *testing.T) {
	priv, _, _ := crypto.GenerateKeyPair()
	pub := &fakePublisher{}
	g := NewGenerator(GeneratorConfig{
		Voters:    []crypto.PrivateKey{priv},
		Ledger:    fakeCanVoter{allow: false},
		Cache:     newFakeCache(),
		Publisher: pub,
		Delay:     20 * time.Millisecond,
	})
	g.Start()
	defer g.Stop()

	g.Add(crypto.BlockHash([]byte("not ready")))
	time.Sleep(80 * time.Millisecond)

	if pub.count() != 0 {
		t.Fatalf("Publish called %d times, want 0", pub.count())
	}
}

func TestGeneratorIncreasesSequenceAcrossFlushes(t *testing.T) {
	priv, _, _ := crypto.GenerateKeyPair()
	pub := &fakePublisher{}
	g := NewGenerator(GeneratorConfig{
		Voters:    []crypto.PrivateKey{priv},
		Ledger:    fakeCanVoter{allow: true},
		Cache:     newFakeCache(),
		Publisher: pub,
		Delay:     15 * time.Millisecond,
	})
	g.Start()
	defer g.Stop()

	g.Add(crypto.BlockHash([]byte("first")))
	time.Sleep(60 * time.Millisecond)
	g.Add(crypto.BlockHash([]byte("second")))
	time.Sleep(60 * time.Millisecond)

	if pub.count() != 2 {
		t.Fatalf("Publish called %d times, want 2", pub.count())
	}
	if pub.votes[1].Sequence <= pub.votes[0].Sequence {
		t.Fatalf("sequence did not increase: %d then %d", pub.votes[0].Sequence, pub.votes[1].Sequence)
	}
}
