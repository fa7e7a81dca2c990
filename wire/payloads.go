package wire

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/vote"
)

// PeerAddr is a single UDP/TCP endpoint as carried in a keepalive payload.
type PeerAddr struct {
	IP   net.IP
	Port uint16
}

// KeepalivePeers is the fixed-size peer list a keepalive message carries.
// Peer discovery itself (which addresses to gossip, churn) is transport
// concern and out of scope here; this is only the wire shape.
const KeepalivePeers = 8

// Keepalive carries up to KeepalivePeers known peer addresses.
type Keepalive struct {
	Peers [KeepalivePeers]PeerAddr
}

func (k Keepalive) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, KeepalivePeers*18)
	for _, p := range k.Peers {
		ip16 := p.IP.To16()
		if ip16 == nil {
			ip16 = make([]byte, 16)
		}
		buf = append(buf, ip16...)
		var port [2]byte
		binary.LittleEndian.PutUint16(port[:], p.Port)
		buf = append(buf, port[:]...)
	}
	return buf, nil
}

func UnmarshalKeepalive(buf []byte) (Keepalive, error) {
	var k Keepalive
	if len(buf) != KeepalivePeers*18 {
		return k, fmt.Errorf("wire: keepalive must be %d bytes, got %d", KeepalivePeers*18, len(buf))
	}
	for i := 0; i < KeepalivePeers; i++ {
		off := i * 18
		ip := make(net.IP, 16)
		copy(ip, buf[off:off+16])
		k.Peers[i] = PeerAddr{
			IP:   ip,
			Port: binary.LittleEndian.Uint16(buf[off+16 : off+18]),
		}
	}
	return k, nil
}

// Publish carries one block, freshly produced or newly seen (§4.2).
type Publish struct {
	Block blocks.Block
}

func (p Publish) MarshalBinary() ([]byte, error) {
	return p.Block.MarshalBinary()
}

func UnmarshalPublish(typ blocks.Type, buf []byte) (Publish, error) {
	b, err := blocks.DecodeBody(typ, buf)
	if err != nil {
		return Publish{}, fmt.Errorf("wire: publish: %w", err)
	}
	return Publish{Block: b}, nil
}

// MaxConfirmReqPairs is the maximum number of (hash,root) pairs a batched
// confirm_req may carry (§4.2).
const MaxConfirmReqPairs = 7

// HashRoot is one election-identifying pair: the block hash under dispute
// and the root of its chain.
type HashRoot struct {
	Hash crypto.Hash
	Root crypto.Hash
}

// ConfirmReq carries either a single full block (when the requester doesn't
// yet know the root or wants the sender to also learn the body) or a batch
// of up to MaxConfirmReqPairs (hash,root) pairs (§4.2).
type ConfirmReq struct {
	Block *blocks.Block // non-nil for the single-block form
	Pairs []HashRoot    // non-empty for the batched form
}

func (c ConfirmReq) MarshalBinary() ([]byte, error) {
	if c.Block != nil {
		return (*c.Block).MarshalBinary()
	}
	if len(c.Pairs) == 0 || len(c.Pairs) > MaxConfirmReqPairs {
		return nil, fmt.Errorf("wire: confirm_req needs 1..%d pairs, got %d", MaxConfirmReqPairs, len(c.Pairs))
	}
	buf := make([]byte, 0, len(c.Pairs)*64)
	for _, p := range c.Pairs {
		buf = append(buf, p.Hash[:]...)
		buf = append(buf, p.Root[:]...)
	}
	return buf, nil
}

// UnmarshalConfirmReq decodes a confirm_req. When blockType is non-zero the
// payload is a single block body; otherwise it is count (hash,root) pairs,
// both read from the header extensions field (§4.2).
func UnmarshalConfirmReq(blockType uint8, count uint8, buf []byte) (ConfirmReq, error) {
	if blockType != 0 {
		b, err := blocks.DecodeBody(blocks.Type(blockType), buf)
		if err != nil {
			return ConfirmReq{}, fmt.Errorf("wire: confirm_req block: %w", err)
		}
		return ConfirmReq{Block: &b}, nil
	}
	if count == 0 || int(count) > MaxConfirmReqPairs {
		return ConfirmReq{}, fmt.Errorf("wire: confirm_req pair count %d out of range", count)
	}
	if len(buf) != int(count)*64 {
		return ConfirmReq{}, fmt.Errorf("wire: confirm_req length mismatch for %d pairs", count)
	}
	pairs := make([]HashRoot, count)
	for i := range pairs {
		off := i * 64
		copy(pairs[i].Hash[:], buf[off:off+32])
		copy(pairs[i].Root[:], buf[off+32:off+64])
	}
	return ConfirmReq{Pairs: pairs}, nil
}

// ConfirmAck carries a vote over 1 to vote.MaxHashes block hashes (§4.2,
// §4.7). A vote whose payload is a full block is not supported: vote.Vote
// holds hashes only.
type ConfirmAck struct {
	Vote *vote.Vote
}

func (c ConfirmAck) MarshalBinary() ([]byte, error) {
	return c.Vote.MarshalBinary()
}

func UnmarshalConfirmAck(buf []byte) (ConfirmAck, error) {
	v, err := vote.UnmarshalVote(buf)
	if err != nil {
		return ConfirmAck{}, fmt.Errorf("wire: confirm_ack: %w", err)
	}
	return ConfirmAck{Vote: v}, nil
}

// BulkPull requests every block from start (exclusive) down to end
// (inclusive), or down to the account's open block if end is the zero hash
// (§4.2). Bootstrap sync logic itself (how a responder walks and streams)
// is out of scope for the core (§1); this is only the wire shape.
type BulkPull struct {
	Start crypto.Hash // account or block hash
	End   crypto.Hash
}

func (p BulkPull) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, p.Start[:]...)
	buf = append(buf, p.End[:]...)
	return buf, nil
}

func UnmarshalBulkPull(buf []byte) (BulkPull, error) {
	if len(buf) != 64 {
		return BulkPull{}, fmt.Errorf("wire: bulk_pull must be 64 bytes, got %d", len(buf))
	}
	var p BulkPull
	copy(p.Start[:], buf[:32])
	copy(p.End[:], buf[32:64])
	return p, nil
}

// BulkPullAccount requests the pending (receivable) entries for account,
// optionally filtered to a minimum amount (§4.2).
type BulkPullAccount struct {
	Account   crypto.PublicKey
	MinAmount blocks.Amount
	Flags     uint8
}

func (p BulkPullAccount) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 32+blocks.AmountSize+1)
	buf = append(buf, p.Account...)
	buf = append(buf, p.MinAmount[:]...)
	buf = append(buf, p.Flags)
	return buf, nil
}

func UnmarshalBulkPullAccount(buf []byte) (BulkPullAccount, error) {
	if len(buf) != 32+blocks.AmountSize+1 {
		return BulkPullAccount{}, fmt.Errorf("wire: bulk_pull_account length mismatch")
	}
	var p BulkPullAccount
	p.Account = append(crypto.PublicKey{}, buf[:32]...)
	copy(p.MinAmount[:], buf[32:32+blocks.AmountSize])
	p.Flags = buf[32+blocks.AmountSize]
	return p, nil
}

// FrontierReq requests the (account, frontier-hash) pairs starting at
// start, at most count of them, optionally only those modified after
// modifiedSince (§4.2).
type FrontierReq struct {
	Start         crypto.PublicKey
	Count         uint32
	ModifiedSince uint64
}

func (f FrontierReq) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 32+4+8)
	buf = append(buf, f.Start...)
	var rest [12]byte
	binary.LittleEndian.PutUint32(rest[0:4], f.Count)
	binary.LittleEndian.PutUint64(rest[4:12], f.ModifiedSince)
	buf = append(buf, rest[:]...)
	return buf, nil
}

func UnmarshalFrontierReq(buf []byte) (FrontierReq, error) {
	if len(buf) != 32+12 {
		return FrontierReq{}, fmt.Errorf("wire: frontier_req length mismatch")
	}
	var f FrontierReq
	f.Start = append(crypto.PublicKey{}, buf[:32]...)
	f.Count = binary.LittleEndian.Uint32(buf[32:36])
	f.ModifiedSince = binary.LittleEndian.Uint64(buf[36:44])
	return f, nil
}

// NodeIDHandshakeQuery carries a random cookie the responder must sign to
// prove key ownership; NodeIDHandshakeResponse carries that signature. This
// is the only stateful-per-connection exchange in the protocol (§6.2).
type NodeIDHandshakeQuery struct {
	Cookie [32]byte
}

type NodeIDHandshakeResponse struct {
	NodeID crypto.PublicKey
	Sig    crypto.Signature
}

func (q NodeIDHandshakeQuery) MarshalBinary() ([]byte, error) {
	return q.Cookie[:], nil
}

func UnmarshalNodeIDHandshakeQuery(buf []byte) (NodeIDHandshakeQuery, error) {
	var q NodeIDHandshakeQuery
	if len(buf) != 32 {
		return q, fmt.Errorf("wire: node_id_handshake query must be 32 bytes")
	}
	copy(q.Cookie[:], buf)
	return q, nil
}

func (r NodeIDHandshakeResponse) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 32+64)
	buf = append(buf, r.NodeID...)
	buf = append(buf, r.Sig[:]...)
	return buf, nil
}

func UnmarshalNodeIDHandshakeResponse(buf []byte) (NodeIDHandshakeResponse, error) {
	var r NodeIDHandshakeResponse
	if len(buf) != 32+64 {
		return r, fmt.Errorf("wire: node_id_handshake response length mismatch")
	}
	r.NodeID = append(crypto.PublicKey{}, buf[:32]...)
	copy(r.Sig[:], buf[32:])
	return r, nil
}

// TelemetryReq has no payload; it is a bare request for a telemetry_ack.
type TelemetryReq struct{}

func (TelemetryReq) MarshalBinary() ([]byte, error) { return nil, nil }

// TelemetryAck carries a snapshot of node/network state used for diagnostics
// only, never for consensus decisions (§4.2).
type TelemetryAck struct {
	BlockCount       uint64
	CementedCount    uint64
	UncheckedCount   uint64
	AccountCount     uint64
	BandwidthCapBps  uint64
	PeerCount        uint32
	ProtocolVersion  uint8
	MajorVersion     uint8
	Uptime           uint64
}

func (t TelemetryAck) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 8*5+4+1+1+8)
	var u64 [8]byte
	put := func(v uint64) {
		binary.BigEndian.PutUint64(u64[:], v)
		buf = append(buf, u64[:]...)
	}
	put(t.BlockCount)
	put(t.CementedCount)
	put(t.UncheckedCount)
	put(t.AccountCount)
	put(t.BandwidthCapBps)
	var u32 [4]byte
	binary.BigEndian.PutUint32(u32[:], t.PeerCount)
	buf = append(buf, u32[:]...)
	buf = append(buf, t.ProtocolVersion, t.MajorVersion)
	put(t.Uptime)
	return buf, nil
}

func UnmarshalTelemetryAck(buf []byte) (TelemetryAck, error) {
	const want = 8*5 + 4 + 1 + 1 + 8
	if len(buf) != want {
		return TelemetryAck{}, fmt.Errorf("wire: telemetry_ack must be %d bytes, got %d", want, len(buf))
	}
	var t TelemetryAck
	off := 0
	next := func() uint64 {
		v := binary.BigEndian.Uint64(buf[off : off+8])
		off += 8
		return v
	}
	t.BlockCount = next()
	t.CementedCount = next()
	t.UncheckedCount = next()
	t.AccountCount = next()
	t.BandwidthCapBps = next()
	t.PeerCount = binary.BigEndian.Uint32(buf[off : off+4])
	off += 4
	t.ProtocolVersion = buf[off]
	t.MajorVersion = buf[off+1]
	off += 2
	t.Uptime = next()
	return t, nil
}
