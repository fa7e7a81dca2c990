package wire

import (
	"context"

	"github.com/tolelom/nanoledger/crypto"
)

// Channel is the minimal send/receive surface a peer connection offers to
// the rest of the node. It deliberately says nothing about sockets,
// framing retries, or peer discovery — TCP/UDP transport and bootstrap
// wiring are out of scope for the core (§1); callers supply a Channel
// backed by whatever transport they run.
type Channel interface {
	// Send writes one framed message (header + payload) to the peer.
	Send(ctx context.Context, header Header, payload []byte) error

	// RemoteNodeID is the peer's node id once the handshake (§6.2) has
	// completed, or the zero public key before that.
	RemoteNodeID() crypto.PublicKey

	// Close releases any resources backing the channel.
	Close() error
}

// Frame pairs a decoded header with its raw payload bytes, the unit a
// Channel reader hands upward for dispatch.
type Frame struct {
	Header  Header
	Payload []byte
}
