// Package aggregator implements the request aggregator (C8): a bounded
// per-peer-endpoint queue of (hash, root) vote requests, served from the
// vote cache where possible and otherwise routed into the vote generator
// (§4.8).
package aggregator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/internal/logging"
	"github.com/tolelom/nanoledger/vote"
	"github.com/tolelom/nanoledger/wire"
)

// DefaultMaxQueuedRequests is the per-endpoint bound applied when Config
// doesn't override it (§6.4 "max queued requests").
const DefaultMaxQueuedRequests = 256

// Request is one (hash, root) pair a peer is asking votes for (§4.2
// confirm_req, §4.8).
type Request struct {
	Hash crypto.Hash
	Root crypto.Hash
}

// VoteCache answers "do we already have votes for this hash" without
// touching the generator (§4.5, §4.8). votecache.RecentVotes implements it.
type VoteCache interface {
	Votes(hash crypto.Hash) []*vote.Vote
}

// LedgerLookup is the subset of the ledger the aggregator needs to decide
// whether a request is unknown, cannot_vote, or generatable (§4.8).
type LedgerLookup interface {
	Exists(hash crypto.Hash) (bool, error)
	CanVote(hash crypto.Hash) (bool, error)
}

// GeneratorEnqueuer hands a hash to the vote generator (C7) to be signed.
type GeneratorEnqueuer interface {
	Add(hash crypto.Hash)
}

// Counters tallies aggregator outcomes, including the S6 scenario's
// "requests_cached_votes" metric.
type Counters struct {
	Dropped      atomic.Uint64 // admission rejected, queue over max_queued_requests
	CachedVotes  atomic.Uint64 // distinct cached votes served per pass, without generating
	Generated    atomic.Uint64 // enqueued into the vote generator
	Unknown      atomic.Uint64 // block not in the ledger
	CannotVote   atomic.Uint64 // block in ledger but dependencies unconfirmed
}

type endpointQueue struct {
	channel  wire.Channel
	requests []Request
}

// Aggregator is the C8 request aggregator.
type Aggregator struct {
	mu        sync.Mutex
	queues    map[string]*endpointQueue
	maxQueued int

	cache     VoteCache
	ledger    LedgerLookup
	generator GeneratorEnqueuer
	log       zerolog.Logger

	Counters Counters
}

// Config bundles Aggregator's dependencies and admission bound.
type Config struct {
	Cache         VoteCache
	Ledger        LedgerLookup
	Generator     GeneratorEnqueuer
	MaxQueued     int
}

// New builds an Aggregator from cfg.
func New(cfg Config) *Aggregator {
	if cfg.MaxQueued <= 0 {
		cfg.MaxQueued = DefaultMaxQueuedRequests
	}
	return &Aggregator{
		queues:    make(map[string]*endpointQueue),
		maxQueued: cfg.MaxQueued,
		cache:     cfg.Cache,
		ledger:    cfg.Ledger,
		generator: cfg.Generator,
		log:       logging.Component("aggregator"),
	}
}

// endpointKey stands in for whatever identifies a peer connection (address,
// node id); callers pass a stable string (§4.8 "per-endpoint").
type endpointKey = string

// Add admits reqs for endpoint, replacing the held channel reference
// (§4.8 "channel retention"). Rejects (and counts as dropped) anything that
// would push the endpoint's queue past MaxQueued; the accepted prefix of
// reqs, if any, is still queued.
func (a *Aggregator) Add(endpoint endpointKey, ch wire.Channel, reqs []Request) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	q, ok := a.queues[endpoint]
	if !ok {
		q = &endpointQueue{}
		a.queues[endpoint] = q
	}
	q.channel = ch // replacing an endpoint's queue replaces the channel reference

	if len(q.requests)+len(reqs) > a.maxQueued {
		room := a.maxQueued - len(q.requests)
		if room < 0 {
			room = 0
		}
		a.Counters.Dropped.Add(uint64(len(reqs) - room))
		q.requests = append(q.requests, reqs[:room]...)
		return room == len(reqs)
	}
	q.requests = append(q.requests, reqs...)
	return true
}

// Process drains every endpoint's queue, answering from the cache or
// routing into the vote generator. Each distinct cached vote found for an
// endpoint's requests is sent once to that endpoint's channel as a
// confirm_ack, exactly as cached; hashes are not regrouped across votes.
// Nothing is returned to the caller.
func (a *Aggregator) Process(ctx context.Context) {
	a.mu.Lock()
	endpoints := make([]string, 0, len(a.queues))
	for ep := range a.queues {
		endpoints = append(endpoints, ep)
	}
	a.mu.Unlock()

	for _, ep := range endpoints {
		a.processEndpoint(ctx, ep)
	}
}

func (a *Aggregator) processEndpoint(ctx context.Context, endpoint string) {
	a.mu.Lock()
	q, ok := a.queues[endpoint]
	if !ok || len(q.requests) == 0 {
		a.mu.Unlock()
		return
	}
	reqs := q.requests
	q.requests = nil
	ch := q.channel
	a.mu.Unlock()

	var toSend []*vote.Vote
	seen := make(map[crypto.Hash]struct{})

	for _, req := range reqs {
		if cached := a.cache.Votes(req.Hash); len(cached) > 0 {
			for _, v := range cached {
				if _, dup := seen[v.HashKey()]; dup {
					continue
				}
				seen[v.HashKey()] = struct{}{}
				a.Counters.CachedVotes.Add(1)
				toSend = append(toSend, v)
			}
			continue
		}

		exists, err := a.ledger.Exists(req.Hash)
		if err != nil {
			a.log.Warn().Err(err).Str("hash", req.Hash.String()).Msg("request lookup failed")
			continue
		}
		if !exists {
			a.Counters.Unknown.Add(1)
			continue
		}
		canVote, err := a.ledger.CanVote(req.Hash)
		if err != nil {
			a.log.Warn().Err(err).Str("hash", req.Hash.String()).Msg("can_vote lookup failed")
			continue
		}
		if !canVote {
			a.Counters.CannotVote.Add(1)
			continue
		}
		a.Counters.Generated.Add(1)
		a.generator.Add(req.Hash)
	}

	if ch == nil || len(toSend) == 0 {
		return
	}
	for _, v := range toSend {
		a.sendVote(ctx, ch, v)
	}
}

// sendVote frames v as a confirm_ack and writes it to ch. Transport errors
// are logged and dropped (§7 "transient errors"), never propagated.
func (a *Aggregator) sendVote(ctx context.Context, ch wire.Channel, v *vote.Vote) {
	payload, err := wire.ConfirmAck{Vote: v}.MarshalBinary()
	if err != nil {
		a.log.Warn().Err(err).Msg("failed to marshal confirm_ack")
		return
	}
	header := wire.Header{Type: wire.TypeConfirmAck}
	header.SetCount(uint8(len(v.Hashes)))
	if err := ch.Send(ctx, header, payload); err != nil {
		a.log.Warn().Err(err).Msg("failed to send confirm_ack")
	}
}

// QueueLen reports how many requests are currently queued for endpoint.
func (a *Aggregator) QueueLen(endpoint string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	q, ok := a.queues[endpoint]
	if !ok {
		return 0
	}
	return len(q.requests)
}
