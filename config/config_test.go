package config

import (
	"path/filepath"
	"testing"

	"github.com/tolelom/nanoledger/crypto"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate(): %v", err)
	}
}

func TestValidateRejectsMissingNodeID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NodeID = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate with empty node_id should fail")
	}
}

func TestValidateRejectsBadBurnAccount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BurnAccount = "not hex"
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate with malformed burn_account should fail")
	}
}

func TestValidateRejectsQuorumFractionOutOfRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QuorumFraction = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate with quorum_fraction > 1 should fail")
	}
}

func TestValidateRejectsConfirmReqBatchSizeOverTwelve(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConfirmReqBatchSize = 13
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate with confirm_req_batch_size > 12 should fail")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NodeID = "round-trip"
	path := filepath.Join(t.TempDir(), "config.json")

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.NodeID != cfg.NodeID {
		t.Fatalf("NodeID = %q, want %q", got.NodeID, cfg.NodeID)
	}
}

func TestDecodeBootstrapWeights(t *testing.T) {
	_, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	weights := []BootstrapWeight{{Representative: pub.Hex(), Weight: "1000000"}}

	decoded, err := DecodeBootstrapWeights(weights)
	if err != nil {
		t.Fatalf("DecodeBootstrapWeights: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("len(decoded) = %d, want 1", len(decoded))
	}
	if decoded[0].Representative.Hex() != pub.Hex() {
		t.Fatalf("Representative = %s, want %s", decoded[0].Representative.Hex(), pub.Hex())
	}
	if decoded[0].Weight.String() != "1000000" {
		t.Fatalf("Weight = %s, want 1000000", decoded[0].Weight.String())
	}
}

func TestDecodeBootstrapWeightsRejectsBadAmount(t *testing.T) {
	_, pub, _ := crypto.GenerateKeyPair()
	weights := []BootstrapWeight{{Representative: pub.Hex(), Weight: "not a number"}}
	if _, err := DecodeBootstrapWeights(weights); err == nil {
		t.Fatal("DecodeBootstrapWeights with non-decimal weight should fail")
	}
}
