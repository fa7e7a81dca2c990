package ledger

import (
	"testing"
	"time"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
)

func TestRollbackUndoesSend(t *testing.T) {
	l, _ := newTestLedger(t)
	priv, pub, _ := crypto.GenerateKeyPair()
	open := signedStateOpen(t, priv, pub, pub, blocks.AmountFromUint64(1000), crypto.ZeroHash)

	txn := l.Store.Begin()
	if err := txn.PutAccountInfo(pub, AccountInfo{Head: open.Hash(), Representative: pub, OpenBlock: open.Hash(), Balance: blocks.AmountFromUint64(1000), BlockCount: 1}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	row, _ := blocks.EncodeRow(open, blocks.Sideband{Account: pub, Balance: blocks.AmountFromUint64(1000), Height: 1})
	txn.PutBlockRow(byte(blocks.State), open.Hash(), row)
	l.RepWeights.Adjust(nil, blocks.ZeroAmount, pub, blocks.AmountFromUint64(1000))
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit seed: %v", err)
	}

	_, destPub, _ := crypto.GenerateKeyPair()
	send := signedStateSend(t, priv, pub, open.Hash(), pub, blocks.AmountFromUint64(600), destPub)

	txn = l.Store.Begin()
	ret, err := l.Process(txn, send)
	if err != nil || ret.Code != Progress {
		t.Fatalf("process send: ret=%v err=%v", ret, err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit send: %v", err)
	}

	if w := l.RepWeights.Weight(pub); w.Cmp(blocks.AmountFromUint64(600).BigInt()) != 0 {
		t.Fatalf("weight after send = %v, want 600", w)
	}

	txn = l.Store.Begin()
	if err := l.Rollback(txn, send.Hash()); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit rollback: %v", err)
	}

	txn = l.Store.Begin()
	info, found, err := txn.GetAccountInfo(pub)
	if err != nil {
		t.Fatalf("GetAccountInfo: %v", err)
	}
	if !found {
		t.Fatalf("account info missing after rollback")
	}
	if info.Head != open.Hash() {
		t.Fatalf("head after rollback = %s, want %s", info.Head, open.Hash())
	}
	if info.Balance.Cmp(blocks.AmountFromUint64(1000)) != 0 {
		t.Fatalf("balance after rollback = %v, want 1000", info.Balance)
	}
	if _, found, err := txn.GetPending(destPub, send.Hash()); err != nil {
		t.Fatalf("GetPending: %v", err)
	} else if found {
		t.Fatalf("pending entry should not survive a rolled-back send")
	}
	if w := l.RepWeights.Weight(pub); w.Cmp(blocks.AmountFromUint64(1000).BigInt()) != 0 {
		t.Fatalf("weight after rollback = %v, want 1000", w)
	}

	if _, found, err := txn.GetBlockRow(byte(blocks.State), send.Hash()); err != nil {
		t.Fatalf("GetBlockRow: %v", err)
	} else if found {
		t.Fatalf("send block row should be deleted after rollback")
	}
}

func TestRollbackRejectsConfirmedBlock(t *testing.T) {
	l, _ := newTestLedger(t)
	priv, pub, _ := crypto.GenerateKeyPair()
	open := signedStateOpen(t, priv, pub, pub, blocks.AmountFromUint64(1000), crypto.ZeroHash)

	txn := l.Store.Begin()
	if err := txn.PutAccountInfo(pub, AccountInfo{Head: open.Hash(), Representative: pub, OpenBlock: open.Hash(), Balance: blocks.AmountFromUint64(1000), BlockCount: 1}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	row, _ := blocks.EncodeRow(open, blocks.Sideband{Account: pub, Balance: blocks.AmountFromUint64(1000), Height: 1})
	txn.PutBlockRow(byte(blocks.State), open.Hash(), row)
	if err := txn.PutConfirmationHeight(pub, ConfirmationHeightInfo{Height: 1, FrontierHash: open.Hash()}); err != nil {
		t.Fatalf("seed conf height: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	txn = l.Store.Begin()
	err := l.Rollback(txn, open.Hash())
	if err == nil {
		t.Fatalf("rollback of confirmed block should fail")
	}
	t.Logf("rejected as expected: %v", err)
}

func TestConfirmationHeightCement(t *testing.T) {
	l, _ := newTestLedger(t)
	priv, pub, _ := crypto.GenerateKeyPair()
	open := signedStateOpen(t, priv, pub, pub, blocks.AmountFromUint64(1000), crypto.ZeroHash)

	txn := l.Store.Begin()
	row, _ := blocks.EncodeRow(open, blocks.Sideband{Account: pub, Balance: blocks.AmountFromUint64(1000), Height: 1})
	txn.PutBlockRow(byte(blocks.State), open.Hash(), row)
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	cp := NewConfirmationHeightProcessor(l.Store)
	txn = l.Store.Begin()
	if err := cp.Cement(txn, pub, open.Hash()); err != nil {
		t.Fatalf("cement: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	txn = l.Store.Begin()
	h, err := cp.Height(txn, pub)
	if err != nil {
		t.Fatalf("Height: %v", err)
	}
	if h != 1 {
		t.Fatalf("height = %d, want 1", h)
	}
}

func TestOnlineWeightTrimsInactiveRepresentatives(t *testing.T) {
	infos := map[string]AccountInfo{}
	cache := NewRepWeightCache(infos)
	_, repA, _ := crypto.GenerateKeyPair()
	_, repB, _ := crypto.GenerateKeyPair()
	cache.Adjust(nil, blocks.ZeroAmount, repA, blocks.AmountFromUint64(100))
	cache.Adjust(nil, blocks.ZeroAmount, repB, blocks.AmountFromUint64(50))

	clock := time.Now()
	tracker := NewOnlineWeightTracker(cache, func() time.Time { return clock })
	tracker.Observe(repA)

	total := tracker.TrimmedTotal()
	if total.Cmp(blocks.AmountFromUint64(100).BigInt()) != 0 {
		t.Fatalf("trimmed total = %v, want 100 (repB never observed)", total)
	}

	clock = clock.Add(10 * time.Minute)
	tracker.Observe(repB)
	total = tracker.TrimmedTotal()
	if total.Cmp(blocks.AmountFromUint64(50).BigInt()) != 0 {
		t.Fatalf("trimmed total after window slide = %v, want 50", total)
	}
}
