package vote

import (
	"testing"

	"github.com/tolelom/nanoledger/crypto"
)

func TestVoteSignAndVerify(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	hashes := []crypto.Hash{crypto.BlockHash([]byte("a")), crypto.BlockHash([]byte("b"))}
	v, err := New(priv, 5, hashes)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := v.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVoteTamperedSequenceFailsVerify(t *testing.T) {
	priv, _, _ := crypto.GenerateKeyPair()
	v, err := New(priv, 1, []crypto.Hash{crypto.BlockHash([]byte("a"))})
	if err != nil {
		t.Fatal(err)
	}
	v.Sequence = 2
	if err := v.Verify(); err == nil {
		t.Fatal("expected verification failure after sequence tamper")
	}
}

func TestVoteTooManyHashes(t *testing.T) {
	priv, _, _ := crypto.GenerateKeyPair()
	hashes := make([]crypto.Hash, MaxHashes+1)
	if _, err := New(priv, 1, hashes); err != ErrTooManyHashes {
		t.Fatalf("expected ErrTooManyHashes, got %v", err)
	}
}

func TestVoteBinaryRoundtrip(t *testing.T) {
	priv, _, _ := crypto.GenerateKeyPair()
	hashes := []crypto.Hash{crypto.BlockHash([]byte("x")), crypto.BlockHash([]byte("y")), crypto.BlockHash([]byte("z"))}
	v, err := New(priv, 42, hashes)
	if err != nil {
		t.Fatal(err)
	}
	raw, err := v.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	decoded, err := UnmarshalVote(raw)
	if err != nil {
		t.Fatalf("UnmarshalVote: %v", err)
	}
	if err := decoded.Verify(); err != nil {
		t.Fatalf("decoded vote should verify: %v", err)
	}
	if decoded.Sequence != v.Sequence || len(decoded.Hashes) != len(v.Hashes) {
		t.Error("vote roundtrip mismatch")
	}
}

func TestVoteHashKeyStable(t *testing.T) {
	priv, _, _ := crypto.GenerateKeyPair()
	v, _ := New(priv, 1, []crypto.Hash{crypto.BlockHash([]byte("a"))})
	if v.HashKey() != v.HashKey() {
		t.Fatal("HashKey should be stable")
	}
}
