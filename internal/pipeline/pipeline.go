// Package pipeline implements the aggregator's single-writer request
// pipeline: one goroutine dequeues PUT, GET, and sweep work items and is
// the sole mutator of the store and the clock registries, so every
// accepted request is applied in total enqueue order.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/wxagg/aggregator/internal/clock"
	"github.com/wxagg/aggregator/internal/store"
	"github.com/wxagg/aggregator/internal/weather"
)

// OverloadedBody is the short text every 503 response carries, ported
// verbatim from AggregationServer.java's
// sendResponse(out, 503, "Service Unavailable", "Server is overloaded, try
// again later.").
var OverloadedBody = []byte("Server is overloaded, try again later.")

// Kind distinguishes the three things the worker can be asked to do.
type Kind int

const (
	KindPut Kind = iota
	KindGet
	kindSweep
)

// Item is a unit of work enqueued by a connection handler (PUT/GET) or by
// the sweeper (sweep). Result is a one-shot completion slot: the handler
// blocks on it after enqueuing, the worker sends exactly once.
type Item struct {
	Kind Kind

	// Peer is the reader identity (remote socket endpoint string) for a
	// GET. It is unused for PUT: the publisher identity is the station
	// id inside Payload, known only once the worker decodes it.
	Peer string

	Clock   int64
	Payload []byte // PUT body
	Filter  string // GET station-id filter, empty means "all"

	Result chan Result
}

// Result is what the worker sends back on an Item's completion channel.
type Result struct {
	Status  int
	Body    []byte
	Removed []string // populated only for sweep results
}

// Worker is the single consumer of the request queue.
type Worker struct {
	store  *store.Store
	clocks *clock.Registry
	ttl    time.Duration
	queue  chan *Item
	log    *slog.Logger

	now func() time.Time
}

// New creates a Worker with the given queue depth and record TTL.
func New(st *store.Store, clocks *clock.Registry, queueDepth int, ttl time.Duration, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		store:  st,
		clocks: clocks,
		ttl:    ttl,
		queue:  make(chan *Item, queueDepth),
		log:    log,
		now:    time.Now,
	}
}

// Submit tries to enqueue item without blocking. It returns false if the
// queue is full, in which case the caller must respond 503.
func (w *Worker) Submit(item *Item) bool {
	select {
	case w.queue <- item:
		return true
	default:
		return false
	}
}

// Run drains the queue until ctx is cancelled. A panic inside request
// processing is caught, logged, and surfaced as a 500 to the caller; it
// never takes the worker down.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-w.queue:
			w.process(item)
		}
	}
}

// Drain empties any items left in the queue, answering each with a 503.
// Called during shutdown after the worker loop has already stopped.
func (w *Worker) Drain() {
	for {
		select {
		case item := <-w.queue:
			if item.Result != nil {
				item.Result <- Result{Status: 503, Body: OverloadedBody}
			}
		default:
			return
		}
	}
}

// Sweep triggers an expiry pass on the worker goroutine and blocks until it
// completes, returning the ids of stations removed. It goes through the
// same queue as client requests so the clock registry — owned solely by
// the worker goroutine — is never touched from any other goroutine; unlike
// Submit, it sends with a blocking queue push since it is internal
// maintenance traffic, not subject to the client-facing backpressure rule.
func (w *Worker) Sweep() []string {
	item := &Item{Kind: kindSweep, Result: make(chan Result, 1)}
	w.queue <- item
	res := <-item.Result
	return res.Removed
}

func (w *Worker) process(item *Item) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("pipeline worker recovered from panic", "panic", r)
			if item.Result != nil {
				item.Result <- Result{Status: 500}
			}
		}
	}()

	switch item.Kind {
	case KindPut:
		w.handlePut(item)
	case KindGet:
		w.handleGet(item)
	case kindSweep:
		w.handleSweep(item)
	}
}

// handlePut implements spec §4.4's numbered PUT steps.
func (w *Worker) handlePut(item *Item) {
	record, err := weather.Decode(item.Payload)
	if err != nil {
		w.log.Error("put: decode failed", "error", err)
		item.Result <- Result{Status: 500}
		return
	}

	if err := weather.Validate(record); err != nil {
		w.log.Info("put: rejected invalid record", "error", err)
		item.Result <- Result{Status: 400}
		return
	}

	last := w.clocks.PublisherLast(record.ID)
	if !w.clocks.AcceptPublisher(record.ID, item.Clock) {
		w.log.Info("put: rejected stale clock", "station", record.ID, "clock", item.Clock, "last", last)
		item.Result <- Result{Status: 400}
		return
	}

	record.ContentServerID = record.ID
	record.LastUpdated = w.now().Unix()

	w.store.Lock()
	err = w.mutateStoreLocked(func(records []weather.Record) []weather.Record {
		out := records[:0:0]
		for _, r := range records {
			if r.ID != record.ID {
				out = append(out, r)
			}
		}
		return append(out, record)
	})
	w.store.Unlock()

	if err != nil {
		w.log.Error("put: store mutation failed", "station", record.ID, "error", err)
		item.Result <- Result{Status: 500}
		return
	}

	status := 200
	if last == 0 {
		status = 201
	}
	w.log.Info("put: accepted", "station", record.ID, "clock", item.Clock, "status", status)
	item.Result <- Result{Status: status}
}

// handleGet implements spec §4.4's numbered GET steps.
func (w *Worker) handleGet(item *Item) {
	if !w.clocks.AcceptReader(item.Peer, item.Clock) {
		w.log.Info("get: rejected stale clock", "peer", item.Peer, "clock", item.Clock)
		item.Result <- Result{Status: 400}
		return
	}

	w.store.Lock()
	records, err := w.store.Load()
	if err != nil {
		w.log.Error("get: store load failed", "error", err)
		records = nil
	}
	w.store.Unlock()

	live := records[:0:0]
	cutoff := w.now().Unix() - int64(w.ttl.Seconds())
	for _, r := range records {
		if r.LastUpdated >= cutoff {
			live = append(live, r)
		}
	}

	if item.Filter != "" {
		filtered := live[:0:0]
		for _, r := range live {
			if r.ID == item.Filter {
				filtered = append(filtered, r)
			}
		}
		live = filtered
	}

	body, err := weather.EncodeList(live)
	if err != nil {
		w.log.Error("get: encode failed", "error", err)
		item.Result <- Result{Status: 500}
		return
	}

	item.Result <- Result{Status: 200, Body: body}
}

// handleSweep implements spec §4.6: remove records older than the TTL and
// drop their publisher-clock entries.
func (w *Worker) handleSweep(item *Item) {
	w.store.Lock()
	records, err := w.store.Load()
	if err != nil {
		w.log.Error("sweep: store load failed", "error", err)
		records = nil
	}

	cutoff := w.now().Unix() - int64(w.ttl.Seconds())
	var kept []weather.Record
	var expired []string
	for _, r := range records {
		if r.LastUpdated < cutoff {
			expired = append(expired, r.ID)
			continue
		}
		kept = append(kept, r)
	}

	if len(expired) > 0 {
		if err := w.store.Save(kept); err != nil {
			w.store.Unlock()
			w.log.Error("sweep: store save failed", "error", err)
			item.Result <- Result{Status: 500}
			return
		}
	}
	w.store.Unlock()

	for _, id := range expired {
		w.clocks.RemovePublisher(id)
	}
	if len(expired) > 0 {
		w.log.Info("sweep: removed expired stations", "stations", expired)
	}

	item.Result <- Result{Status: 200, Removed: expired}
}

// mutateStoreLocked loads, transforms, and saves the record list. Callers
// must hold the store lock.
func (w *Worker) mutateStoreLocked(mutate func([]weather.Record) []weather.Record) error {
	records, err := w.store.Load()
	if err != nil {
		w.log.Error("store load failed during mutation", "error", err)
		records = nil
	}
	return w.store.Save(mutate(records))
}
