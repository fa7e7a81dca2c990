package wire

import (
	"testing"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/vote"
)

func signedState(t *testing.T) *blocks.StateBlock {
	t.Helper()
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	b := &blocks.StateBlock{
		Account:        pub,
		PreviousHash:   crypto.ZeroHash,
		Representative: pub,
		Balance:        blocks.AmountFromUint64(10),
		Link:           crypto.ZeroHash,
	}
	b.Sig = crypto.Sign(priv, b.Hash())
	return b
}

func TestPublishRoundtrip(t *testing.T) {
	b := signedState(t)
	raw, err := Publish{Block: b}.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	p, err := UnmarshalPublish(blocks.State, raw)
	if err != nil {
		t.Fatalf("UnmarshalPublish: %v", err)
	}
	if p.Block.Hash() != b.Hash() {
		t.Error("publish roundtrip: hash mismatch")
	}
}

func TestConfirmReqBatchedRoundtrip(t *testing.T) {
	req := ConfirmReq{Pairs: []HashRoot{
		{Hash: crypto.BlockHash([]byte("a")), Root: crypto.BlockHash([]byte("b"))},
		{Hash: crypto.BlockHash([]byte("c")), Root: crypto.BlockHash([]byte("d"))},
	}}
	raw, err := req.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	decoded, err := UnmarshalConfirmReq(0, 2, raw)
	if err != nil {
		t.Fatalf("UnmarshalConfirmReq: %v", err)
	}
	if len(decoded.Pairs) != 2 || decoded.Pairs[0].Hash != req.Pairs[0].Hash {
		t.Error("confirm_req roundtrip mismatch")
	}
}

func TestConfirmReqTooManyPairs(t *testing.T) {
	pairs := make([]HashRoot, MaxConfirmReqPairs+1)
	if _, err := (ConfirmReq{Pairs: pairs}).MarshalBinary(); err == nil {
		t.Fatal("expected error for too many pairs")
	}
}

func TestConfirmAckRoundtrip(t *testing.T) {
	priv, _, _ := crypto.GenerateKeyPair()
	v, err := vote.New(priv, 1, []crypto.Hash{crypto.BlockHash([]byte("x"))})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := ConfirmAck{Vote: v}.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	ack, err := UnmarshalConfirmAck(raw)
	if err != nil {
		t.Fatalf("UnmarshalConfirmAck: %v", err)
	}
	if err := ack.Vote.Verify(); err != nil {
		t.Fatalf("decoded vote should verify: %v", err)
	}
}

func TestBulkPullRoundtrip(t *testing.T) {
	p := BulkPull{Start: crypto.BlockHash([]byte("s")), End: crypto.ZeroHash}
	raw, _ := p.MarshalBinary()
	decoded, err := UnmarshalBulkPull(raw)
	if err != nil {
		t.Fatalf("UnmarshalBulkPull: %v", err)
	}
	if decoded.Start != p.Start {
		t.Error("bulk_pull roundtrip mismatch")
	}
}

func TestFrontierReqRoundtrip(t *testing.T) {
	_, pub, _ := crypto.GenerateKeyPair()
	f := FrontierReq{Start: pub, Count: 100, ModifiedSince: 42}
	raw, _ := f.MarshalBinary()
	decoded, err := UnmarshalFrontierReq(raw)
	if err != nil {
		t.Fatalf("UnmarshalFrontierReq: %v", err)
	}
	if decoded.Count != 100 || decoded.ModifiedSince != 42 {
		t.Error("frontier_req roundtrip mismatch")
	}
}

func TestNodeIDHandshakeRoundtrip(t *testing.T) {
	q := NodeIDHandshakeQuery{Cookie: [32]byte{1, 2, 3}}
	raw, _ := q.MarshalBinary()
	decodedQ, err := UnmarshalNodeIDHandshakeQuery(raw)
	if err != nil {
		t.Fatalf("UnmarshalNodeIDHandshakeQuery: %v", err)
	}
	if decodedQ.Cookie != q.Cookie {
		t.Error("handshake query roundtrip mismatch")
	}

	priv, pub, _ := crypto.GenerateKeyPair()
	resp := NodeIDHandshakeResponse{NodeID: pub, Sig: crypto.Sign(priv, crypto.BlockHash(q.Cookie[:]))}
	raw2, _ := resp.MarshalBinary()
	decodedR, err := UnmarshalNodeIDHandshakeResponse(raw2)
	if err != nil {
		t.Fatalf("UnmarshalNodeIDHandshakeResponse: %v", err)
	}
	if err := crypto.Verify(decodedR.NodeID, crypto.BlockHash(q.Cookie[:]), decodedR.Sig); err != nil {
		t.Fatalf("handshake response signature should verify: %v", err)
	}
}

func TestTelemetryAckRoundtrip(t *testing.T) {
	ta := TelemetryAck{
		BlockCount: 100, CementedCount: 90, UncheckedCount: 5, AccountCount: 20,
		BandwidthCapBps: 1024, PeerCount: 7, ProtocolVersion: 19, MajorVersion: 26, Uptime: 3600,
	}
	raw, err := ta.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	decoded, err := UnmarshalTelemetryAck(raw)
	if err != nil {
		t.Fatalf("UnmarshalTelemetryAck: %v", err)
	}
	if decoded != ta {
		t.Errorf("telemetry_ack roundtrip mismatch: got %+v want %+v", decoded, ta)
	}
}

func TestBulkPullAccountRoundtrip(t *testing.T) {
	_, pub, _ := crypto.GenerateKeyPair()
	p := BulkPullAccount{Account: pub, MinAmount: blocks.AmountFromUint64(500), Flags: 1}
	raw, err := p.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	decoded, err := UnmarshalBulkPullAccount(raw)
	if err != nil {
		t.Fatalf("UnmarshalBulkPullAccount: %v", err)
	}
	if decoded.MinAmount != p.MinAmount || decoded.Flags != p.Flags {
		t.Error("bulk_pull_account roundtrip mismatch")
	}
}
