package repkeystore

import (
	"path/filepath"
	"testing"

	"github.com/tolelom/nanoledger/crypto"
)

func TestSaveAndLoadKeyRoundTrip(t *testing.T) {
	priv, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	path := filepath.Join(t.TempDir(), "rep0.key")

	if err := SaveKey(path, "correct horse", priv); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	got, err := LoadKey(path, "correct horse")
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	if got.Hex() != priv.Hex() {
		t.Fatalf("round-tripped key mismatch")
	}
}

func TestLoadKeyWrongPassword(t *testing.T) {
	priv, _, _ := crypto.GenerateKeyPair()
	path := filepath.Join(t.TempDir(), "rep0.key")
	if err := SaveKey(path, "correct horse", priv); err != nil {
		t.Fatalf("SaveKey: %v", err)
	}
	if _, err := LoadKey(path, "wrong password"); err == nil {
		t.Fatal("LoadKey with wrong password should fail")
	}
}

func TestLoadAllOrdersByFilename(t *testing.T) {
	dir := t.TempDir()
	priv1, _, _ := crypto.GenerateKeyPair()
	priv2, _, _ := crypto.GenerateKeyPair()
	if err := SaveKey(filepath.Join(dir, "a-rep.key"), "pw", priv1); err != nil {
		t.Fatal(err)
	}
	if err := SaveKey(filepath.Join(dir, "b-rep.key"), "pw", priv2); err != nil {
		t.Fatal(err)
	}

	keys, err := LoadAll(dir, "pw")
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("LoadAll returned %d keys, want 2", len(keys))
	}
	if keys[0].Hex() != priv1.Hex() || keys[1].Hex() != priv2.Hex() {
		t.Fatalf("LoadAll did not preserve filename order")
	}
}

func TestLoadAllEmptyDirYieldsNoVoters(t *testing.T) {
	keys, err := LoadAll("", "pw")
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if keys != nil {
		t.Fatalf("LoadAll(\"\", ...) = %v, want nil", keys)
	}
}
