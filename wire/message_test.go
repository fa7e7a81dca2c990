package wire

import "testing"

func TestHeaderRoundtrip(t *testing.T) {
	h := Header{VersionMax: 19, VersionUsing: 19, VersionMin: 18, Type: TypeConfirmReq}
	h.SetBlockType(6)
	h.SetCount(3)

	raw, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if len(raw) != HeaderSize {
		t.Fatalf("header size: got %d want %d", len(raw), HeaderSize)
	}

	decoded, err := UnmarshalHeader(raw, 18)
	if err != nil {
		t.Fatalf("UnmarshalHeader: %v", err)
	}
	if decoded.Type != TypeConfirmReq {
		t.Errorf("type mismatch: got %v", decoded.Type)
	}
	if decoded.BlockType() != 6 {
		t.Errorf("block type mismatch: got %d", decoded.BlockType())
	}
	if decoded.Count() != 3 {
		t.Errorf("count mismatch: got %d", decoded.Count())
	}
}

func TestUnmarshalHeaderBadMagic(t *testing.T) {
	buf := make([]byte, HeaderSize)
	copy(buf, []byte{'X', 'X'})
	if _, err := UnmarshalHeader(buf, 0); err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestUnmarshalHeaderVersionTooOld(t *testing.T) {
	h := Header{VersionMax: 19, VersionUsing: 10, VersionMin: 1, Type: TypeKeepalive}
	raw, _ := h.MarshalBinary()
	if _, err := UnmarshalHeader(raw, 18); err != ErrVersionTooOld {
		t.Fatalf("expected ErrVersionTooOld, got %v", err)
	}
}
