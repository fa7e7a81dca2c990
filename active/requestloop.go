package active

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tolelom/nanoledger/internal/logging"
)

// DefaultRequestInterval is how often the request-scheduling loop wakes to
// reprioritize, batch confirm_req messages, and sweep expired elections
// (§4.6).
const DefaultRequestInterval = time.Second

// DefaultRequestBatchSize caps how many qualified roots go into one
// RequestConfirmations call, matching wire.MaxConfirmReqPairs.
const DefaultRequestBatchSize = 7

// Requester sends a batched confirm_req covering roots to a sampled set of
// principal representatives plus a random sample of the general population
// (§4.6). Peer sampling and transport are out of scope for the core (§1);
// this is the seam the request loop drives.
type Requester interface {
	RequestConfirmations(roots []QualifiedRoot)
}

// RequestLoop is the active engine's background thread (§5 thread 3): on
// each tick it expires stale elections, then walks the engine's priority
// order in batches and asks Requester to solicit votes for each batch.
type RequestLoop struct {
	engine    *Engine
	requester Requester
	interval  time.Duration
	batchSize int
	log       zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewRequestLoop builds a RequestLoop. interval/batchSize <= 0 fall back to
// the package defaults.
func NewRequestLoop(engine *Engine, requester Requester, interval time.Duration, batchSize int) *RequestLoop {
	if interval <= 0 {
		interval = DefaultRequestInterval
	}
	if batchSize <= 0 {
		batchSize = DefaultRequestBatchSize
	}
	return &RequestLoop{
		engine:    engine,
		requester: requester,
		interval:  interval,
		batchSize: batchSize,
		log:       logging.Component("active_request_loop"),
		stop:      make(chan struct{}),
	}
}

// Start launches the background loop. Call Stop to shut it down.
func (r *RequestLoop) Start() {
	r.wg.Add(1)
	go r.run()
}

// Stop signals the loop to exit and waits for it.
func (r *RequestLoop) Stop() {
	close(r.stop)
	r.wg.Wait()
}

func (r *RequestLoop) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *RequestLoop) tick() {
	r.engine.Expire()

	order := r.engine.PriorityOrder()
	if len(order) == 0 || r.requester == nil {
		return
	}
	for i := 0; i < len(order); i += r.batchSize {
		end := i + r.batchSize
		if end > len(order) {
			end = len(order)
		}
		r.requester.RequestConfirmations(order[i:end])
	}
}
