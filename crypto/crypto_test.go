package crypto

import "testing"

func TestKeyGenAndSignVerify(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if derived := priv.Public(); derived.Hex() != pub.Hex() {
		t.Fatal("derived public key does not match")
	}

	h := BlockHash([]byte("hello nanoledger"))
	sig := Sign(priv, h)
	if err := Verify(pub, h, sig); err != nil {
		t.Errorf("valid signature failed: %v", err)
	}

	other := BlockHash([]byte("tampered"))
	if err := Verify(pub, other, sig); err == nil {
		t.Error("tampered hash should fail verification")
	}
}

func TestHashHexRoundtrip(t *testing.T) {
	h := BlockHash([]byte("abc"))
	s := h.String()
	back, err := HashFromHex(s)
	if err != nil {
		t.Fatalf("HashFromHex: %v", err)
	}
	if back != h {
		t.Error("hash hex roundtrip mismatch")
	}
}

func TestAddressRoundtrip(t *testing.T) {
	_, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	addr, err := EncodeAddress(pub)
	if err != nil {
		t.Fatalf("EncodeAddress: %v", err)
	}
	if len(addr) != len(addressPrefix)+60 {
		t.Fatalf("address length: got %d", len(addr))
	}
	decoded, err := DecodeAddress(addr)
	if err != nil {
		t.Fatalf("DecodeAddress: %v", err)
	}
	if decoded.Hex() != pub.Hex() {
		t.Error("decoded public key does not match original")
	}
}

func TestAddressBadChecksum(t *testing.T) {
	_, pub, _ := GenerateKeyPair()
	addr, _ := EncodeAddress(pub)
	tampered := []byte(addr)
	// Flip the last checksum character to something else in the alphabet.
	for i := byte(0); i < 32; i++ {
		if addressAlphabet[i] != tampered[len(tampered)-1] {
			tampered[len(tampered)-1] = addressAlphabet[i]
			break
		}
	}
	if _, err := DecodeAddress(string(tampered)); err == nil {
		t.Error("expected checksum mismatch error")
	}
}
