// Package wire implements the peer protocol message header and payload
// encodings (§4.2, §6.2). It defines byte shapes only — transport (TCP/UDP
// sockets, peer discovery) is out of scope for the core (§1) and lives
// outside this package; callers hand wire.Header/payload bytes to whatever
// transport they have.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Magic identifies the protocol family on the wire.
var Magic = [2]byte{'N', 'L'}

// MessageType enumerates the message kinds (§4.2).
type MessageType byte

const (
	TypeInvalid          MessageType = 0
	TypeKeepalive         MessageType = 1
	TypePublish           MessageType = 2
	TypeConfirmReq        MessageType = 3
	TypeConfirmAck        MessageType = 4
	TypeBulkPull          MessageType = 5
	TypeBulkPush          MessageType = 6
	TypeFrontierReq       MessageType = 7
	TypeBulkPullAccount   MessageType = 8
	TypeNodeIDHandshake   MessageType = 9
	TypeTelemetryReq      MessageType = 10
	TypeTelemetryAck      MessageType = 11
)

func (t MessageType) String() string {
	switch t {
	case TypeKeepalive:
		return "keepalive"
	case TypePublish:
		return "publish"
	case TypeConfirmReq:
		return "confirm_req"
	case TypeConfirmAck:
		return "confirm_ack"
	case TypeBulkPull:
		return "bulk_pull"
	case TypeBulkPush:
		return "bulk_push"
	case TypeFrontierReq:
		return "frontier_req"
	case TypeBulkPullAccount:
		return "bulk_pull_account"
	case TypeNodeIDHandshake:
		return "node_id_handshake"
	case TypeTelemetryReq:
		return "telemetry_req"
	case TypeTelemetryAck:
		return "telemetry_ack"
	default:
		return "invalid"
	}
}

// HeaderSize is the fixed size of the message header in bytes (§4.2).
const HeaderSize = 8

// Extension bit layout within the 16-bit little-endian extensions field.
const (
	extBlockTypeShift = 8
	extBlockTypeMask  = 0x0F
	extCountShift     = 12
	extCountMask      = 0x0F
	extFlagsMask      = 0x00FF
)

// Header is the 8-byte envelope prefixing every message (§4.2).
type Header struct {
	VersionMax   uint8
	VersionUsing uint8
	VersionMin   uint8
	Type         MessageType
	Extensions   uint16
}

// BlockType returns the block-type nibble packed into bits 8-11.
func (h Header) BlockType() uint8 {
	return uint8((h.Extensions >> extBlockTypeShift) & extBlockTypeMask)
}

// SetBlockType packs t into bits 8-11.
func (h *Header) SetBlockType(t uint8) {
	h.Extensions = (h.Extensions &^ (extBlockTypeMask << extBlockTypeShift)) | (uint16(t&extBlockTypeMask) << extBlockTypeShift)
}

// Count returns the count nibble packed into bits 12-15 (e.g. number of
// (hash,root) pairs in a confirm_req, or hashes in a confirm_ack).
func (h Header) Count() uint8 {
	return uint8((h.Extensions >> extCountShift) & extCountMask)
}

// SetCount packs n into bits 12-15.
func (h *Header) SetCount(n uint8) {
	h.Extensions = (h.Extensions &^ (extCountMask << extCountShift)) | (uint16(n&extCountMask) << extCountShift)
}

// Flags returns the low byte (bits 0-7), used for type-specific flags:
// bulk-pull count-present, node-id-handshake query/response, or (when the
// message is telemetry_ack) combined with extra bits for the payload size.
func (h Header) Flags() uint8 {
	return uint8(h.Extensions & extFlagsMask)
}

func (h *Header) SetFlags(f uint8) {
	h.Extensions = (h.Extensions &^ extFlagsMask) | uint16(f)
}

// TelemetryPayloadSize returns the 11-bit payload-size field used only by
// telemetry messages, packed across the flags byte and the low three bits
// of the block-type nibble (bits 0-10).
func (h Header) TelemetryPayloadSize() uint16 {
	return h.Extensions & 0x07FF
}

func (h *Header) SetTelemetryPayloadSize(n uint16) {
	h.Extensions = (h.Extensions &^ 0x07FF) | (n & 0x07FF)
}

// MarshalBinary encodes the header (§4.2): magic(2) version_max(1)
// version_using(1) version_min(1) type(1) extensions(2, little-endian).
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	buf[0], buf[1] = Magic[0], Magic[1]
	buf[2] = h.VersionMax
	buf[3] = h.VersionUsing
	buf[4] = h.VersionMin
	buf[5] = byte(h.Type)
	binary.LittleEndian.PutUint16(buf[6:], h.Extensions)
	return buf, nil
}

// ErrBadMagic is returned by UnmarshalHeader when the magic bytes don't
// match; callers drop such messages and count them (§4.2).
var ErrBadMagic = fmt.Errorf("wire: bad magic bytes")

// ErrVersionTooOld is returned when version_using is below minVersion.
var ErrVersionTooOld = fmt.Errorf("wire: version_using below configured minimum")

// UnmarshalHeader decodes and validates a header against minVersion (the
// locally configured minimum accepted protocol version).
func UnmarshalHeader(buf []byte, minVersion uint8) (Header, error) {
	var h Header
	if len(buf) != HeaderSize {
		return h, fmt.Errorf("wire: header must be %d bytes, got %d", HeaderSize, len(buf))
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] {
		return h, ErrBadMagic
	}
	h.VersionMax = buf[2]
	h.VersionUsing = buf[3]
	h.VersionMin = buf[4]
	h.Type = MessageType(buf[5])
	h.Extensions = binary.LittleEndian.Uint16(buf[6:])
	if h.VersionUsing < minVersion {
		return h, ErrVersionTooOld
	}
	return h, nil
}
