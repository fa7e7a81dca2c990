package active

import (
	"sync"
	"testing"
	"time"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/ledger"
)

type fakeRequester struct {
	mu    sync.Mutex
	seen  []QualifiedRoot
	calls int
}

func (f *fakeRequester) RequestConfirmations(roots []QualifiedRoot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, roots...)
	f.calls++
}

func (f *fakeRequester) count() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen), f.calls
}

func TestRequestLoopBatchesAndExpires(t *testing.T) {
	weights := ledger.NewRepWeightCache(nil)
	eng := New(Config{
		RepWeights:   weights,
		QuorumFraction: 0.67,
		ElectionTTL:  20 * time.Millisecond,
	})

	_, acc, _ := crypto.GenerateKeyPair()
	b := &blocks.StateBlock{Account: acc, Representative: acc, Balance: blocks.AmountFromUint64(1)}
	eng.Insert(acc, b, blocks.Details{})

	req := &fakeRequester{}
	loop := NewRequestLoop(eng, req, 10*time.Millisecond, 7)
	loop.Start()
	defer loop.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for eng.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if eng.Len() != 0 {
		t.Fatalf("election was not expired and evicted by the request loop")
	}

	seen, calls := req.count()
	if calls == 0 {
		t.Fatal("Requester.RequestConfirmations was never called")
	}
	if seen == 0 {
		t.Fatal("no qualified roots were ever requested")
	}
}
