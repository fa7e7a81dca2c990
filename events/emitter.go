// Package events broadcasts ledger and election lifecycle notifications to
// in-process subscribers (RPC subscriptions, telemetry, the vote
// generator's confirmation hook, §4.3/§4.5/§4.6).
package events

import (
	"sync"

	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/internal/logging"
)

// EventType labels what happened.
type EventType string

const (
	EventBlockProcessed    EventType = "block_processed"
	EventBlockRolledBack   EventType = "block_rolled_back"
	EventBlockConfirmed    EventType = "block_confirmed"
	EventElectionStarted   EventType = "election_started"
	EventElectionConfirmed EventType = "election_confirmed"
	EventElectionExpired   EventType = "election_expired"
	EventVoteReceived      EventType = "vote_received"
	EventForkDetected      EventType = "fork_detected"
)

// Event carries a typed payload emitted after a ledger or election state
// change.
type Event struct {
	Type    EventType      `json:"type"`
	Account crypto.PublicKey `json:"account,omitempty"`
	Hash    crypto.Hash    `json:"hash,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously. Each
// handler is guarded by panic recovery so a misbehaving subscriber cannot
// crash the node or stall block processing.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()

	log := logging.Component("events")
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("event", string(ev.Type)).Msg("subscriber panicked")
				}
			}()
			h(ev)
		}()
	}
}
