package blocks

import "fmt"

// DecodeBody dispatches to the variant-specific unmarshaler for typ. This is
// the single point where a byte blob plus a type tag becomes a typed Block
// (§9 design note: one visitor over the enum, not virtual dispatch).
func DecodeBody(typ Type, body []byte) (Block, error) {
	switch typ {
	case Send:
		return UnmarshalSendBlock(body)
	case Receive:
		return UnmarshalReceiveBlock(body)
	case Open:
		return UnmarshalOpenBlock(body)
	case Change:
		return UnmarshalChangeBlock(body)
	case State:
		return UnmarshalStateBlock(body)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, typ)
	}
}

// EncodeRow encodes a committed block as body||sideband, the on-disk row
// format for every block table (§6.3).
func EncodeRow(b Block, sb Sideband) ([]byte, error) {
	body, err := b.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("blocks: marshal body: %w", err)
	}
	sbBytes, err := sb.MarshalBinary(b.Type())
	if err != nil {
		return nil, fmt.Errorf("blocks: marshal sideband: %w", err)
	}
	row := make([]byte, 0, len(body)+len(sbBytes))
	row = append(row, body...)
	row = append(row, sbBytes...)
	return row, nil
}

// bodyLen returns the fixed wire length of a block body for typ, used to
// split a row back into body||sideband.
func bodyLen(typ Type) (int, error) {
	switch typ {
	case Send:
		return 32 + 32 + AmountSize + 64 + 8, nil
	case Receive:
		return 32 + 32 + 64 + 8, nil
	case Open:
		return 32 + 32 + 32 + 64 + 8, nil
	case Change:
		return 32 + 32 + 64 + 8, nil
	case State:
		return 32 + 32 + 32 + AmountSize + 32 + 64 + 8, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownType, typ)
	}
}

// DecodeRow splits a stored body||sideband row and decodes both halves.
func DecodeRow(typ Type, row []byte) (Block, Sideband, error) {
	n, err := bodyLen(typ)
	if err != nil {
		return nil, Sideband{}, err
	}
	if len(row) < n {
		return nil, Sideband{}, fmt.Errorf("blocks: row shorter than body for type %s", typ)
	}
	blk, err := DecodeBody(typ, row[:n])
	if err != nil {
		return nil, Sideband{}, err
	}
	sb, err := UnmarshalSideband(row[n:], typ)
	if err != nil {
		return nil, Sideband{}, err
	}
	return blk, sb, nil
}
