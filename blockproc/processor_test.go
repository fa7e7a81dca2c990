package blockproc

import (
	"testing"
	"time"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/events"
	"github.com/tolelom/nanoledger/internal/testutil"
	"github.com/tolelom/nanoledger/ledger"
)

type noopWork struct{}

func (noopWork) Difficulty(crypto.Hash, uint64) uint64  { return 1 }
func (noopWork) Threshold(uint8, blocks.Details) uint64 { return 0 }

func newTestProcessor(t *testing.T) (*Processor, *ledger.Ledger) {
	t.Helper()
	db := testutil.NewMemDB()
	store := ledger.NewStore(db)
	if err := store.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	l, err := ledger.New(store, noopWork{}, ledger.Config{Now: func() uint64 { return 1000 }})
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	p := New(l, events.NewEmitter(), DefaultMaxQueue, 2)
	return p, l
}

func signedStateOpen(priv crypto.PrivateKey, acc, rep crypto.PublicKey, balance blocks.Amount, source crypto.Hash) *blocks.StateBlock {
	b := &blocks.StateBlock{Account: acc, Representative: rep, Balance: balance, Link: source}
	b.Sig = crypto.Sign(priv, b.Hash())
	return b
}

func signedStateSend(priv crypto.PrivateKey, acc crypto.PublicKey, prevHash crypto.Hash, rep crypto.PublicKey, balance blocks.Amount, dest crypto.PublicKey) *blocks.StateBlock {
	b := &blocks.StateBlock{Account: acc, PreviousHash: prevHash, Representative: rep, Balance: balance, Link: dest.AsHash()}
	b.Sig = crypto.Sign(priv, b.Hash())
	return b
}

func seedGenesis(t *testing.T, l *ledger.Ledger, priv crypto.PrivateKey, pub crypto.PublicKey, balance blocks.Amount) *blocks.StateBlock {
	t.Helper()
	open := signedStateOpen(priv, pub, pub, balance, crypto.ZeroHash)
	txn := l.Store.Begin()
	if err := txn.PutAccountInfo(pub, ledger.AccountInfo{
		Head: open.Hash(), Representative: pub, OpenBlock: open.Hash(),
		Balance: balance, BlockCount: 1,
	}); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	row, err := blocks.EncodeRow(open, blocks.Sideband{Account: pub, Balance: balance, Height: 1, Timestamp: 1000})
	if err != nil {
		t.Fatalf("encode row: %v", err)
	}
	txn.PutBlockRow(byte(blocks.State), open.Hash(), row)
	l.RepWeights.Adjust(nil, blocks.ZeroAmount, pub, balance)
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit seed: %v", err)
	}
	return open
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

func TestEnqueueProcessesStateSendThroughBatchVerify(t *testing.T) {
	p, l := newTestProcessor(t)
	priv, pub, _ := crypto.GenerateKeyPair()
	seedGenesis(t, l, priv, pub, blocks.AmountFromUint64(1000))
	_, destPub, _ := crypto.GenerateKeyPair()

	genesisOpen := signedStateOpen(priv, pub, pub, blocks.AmountFromUint64(1000), crypto.ZeroHash)
	send := signedStateSend(priv, pub, genesisOpen.Hash(), pub, blocks.AmountFromUint64(600), destPub)

	p.Start()
	defer p.Stop()

	p.Enqueue(send, OriginLive)

	waitUntil(t, 2*time.Second, func() bool {
		return l.RepWeights.Weight(pub).Cmp(blocks.AmountFromUint64(600).BigInt()) == 0
	})
}

func TestEnqueueDropsBadSignature(t *testing.T) {
	p, l := newTestProcessor(t)
	priv, pub, _ := crypto.GenerateKeyPair()
	seedGenesis(t, l, priv, pub, blocks.AmountFromUint64(1000))
	_, destPub, _ := crypto.GenerateKeyPair()

	genesisOpen := signedStateOpen(priv, pub, pub, blocks.AmountFromUint64(1000), crypto.ZeroHash)
	send := signedStateSend(priv, pub, genesisOpen.Hash(), pub, blocks.AmountFromUint64(600), destPub)
	send.Sig[0] ^= 0xFF // corrupt after signing

	p.Start()
	defer p.Stop()
	p.Enqueue(send, OriginLive)

	time.Sleep(100 * time.Millisecond)
	if w := l.RepWeights.Weight(pub); w.Cmp(blocks.AmountFromUint64(1000).BigInt()) != 0 {
		t.Fatalf("weight changed despite bad signature: %v", w)
	}
}

func TestGapSourceQuarantinesAndReplaysOnDependencyCommit(t *testing.T) {
	p, l := newTestProcessor(t)
	genesisPriv, genesisPub, _ := crypto.GenerateKeyPair()
	seedGenesis(t, l, genesisPriv, genesisPub, blocks.AmountFromUint64(1000))
	genesisOpen := signedStateOpen(genesisPriv, genesisPub, genesisPub, blocks.AmountFromUint64(1000), crypto.ZeroHash)

	destPriv, destPub, _ := crypto.GenerateKeyPair()
	send := signedStateSend(genesisPriv, genesisPub, genesisOpen.Hash(), genesisPub, blocks.AmountFromUint64(600), destPub)
	open := signedStateOpen(destPriv, destPub, destPub, blocks.AmountFromUint64(400), send.Hash())

	p.Start()
	defer p.Stop()

	// The destination's open references a send that hasn't been processed
	// yet: gap_source should quarantine it under the send's hash.
	p.Enqueue(open, OriginLive)
	time.Sleep(50 * time.Millisecond)
	if w := l.RepWeights.Weight(destPub); w.Sign() != 0 {
		t.Fatalf("open should not have progressed yet, weight = %v", w)
	}

	// Committing the send should pull the quarantined open back off the
	// unchecked table and process it in the same pipeline.
	p.Enqueue(send, OriginLive)

	waitUntil(t, 2*time.Second, func() bool {
		return l.RepWeights.Weight(destPub).Cmp(blocks.AmountFromUint64(400).BigInt()) == 0
	})
}

func TestStatusReportsFullAtCapacity(t *testing.T) {
	p, _ := newTestProcessor(t)
	p.maxQueue = 2
	priv, pub, _ := crypto.GenerateKeyPair()
	b1 := signedStateOpen(priv, pub, pub, blocks.AmountFromUint64(1), crypto.ZeroHash)

	p.mu.Lock()
	p.main = append(p.main, Entry{Block: b1}, Entry{Block: b1})
	p.mu.Unlock()

	if s := p.Status(); s != Full {
		t.Fatalf("status = %v, want full", s)
	}
}
