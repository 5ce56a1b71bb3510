// Package clock tracks the per-peer Lamport clock state the aggregator
// enforces strict monotonicity against.
package clock

// Registry holds the last-accepted Lamport value for every publisher and
// every reader. It has no internal locking: it is owned exclusively by the
// pipeline's single worker goroutine, which is the only caller that ever
// touches it, so there is nothing to race.
type Registry struct {
	publishers map[string]int64
	readers    map[string]int64
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		publishers: make(map[string]int64),
		readers:    make(map[string]int64),
	}
}

// AcceptPublisher reports whether clock is strictly greater than the last
// value accepted for this station id, and if so records it. A station with
// no prior entry has an implicit last value of 0, so its first PUT must
// carry a clock of at least 1.
func (r *Registry) AcceptPublisher(id string, clock int64) bool {
	if clock <= r.publishers[id] {
		return false
	}
	r.publishers[id] = clock
	return true
}

// PublisherLast returns the last-accepted clock value for id, or 0 if the
// station has no entry yet.
func (r *Registry) PublisherLast(id string) int64 {
	return r.publishers[id]
}

// RemovePublisher drops a station's clock entry. Called when the expiry
// sweeper removes that station's record, so the station's next PUT is
// treated as first contact.
func (r *Registry) RemovePublisher(id string) {
	delete(r.publishers, id)
}

// AcceptReader reports whether clock is strictly greater than the last
// value accepted for this reader identity, and if so records it.
func (r *Registry) AcceptReader(id string, clock int64) bool {
	if clock <= r.readers[id] {
		return false
	}
	r.readers[id] = clock
	return true
}

// Clear empties both maps. Called on aggregator shutdown.
func (r *Registry) Clear() {
	r.publishers = make(map[string]int64)
	r.readers = make(map[string]int64)
}
