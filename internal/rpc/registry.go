package rpc

import (
	"sync"

	"objectstore/pkg/replication"
)

// Registry maps a live request ID to the coordinator inbox waiting for
// its remote outcomes. It is the concrete instantiation of spec.md
// §9's "wrap the coordinator's inbox behind an RPC-reachable handle":
// a peer's callback POST carries a req_id, and Deliver routes the
// outcome to whichever local coordinator is still listening — or drops
// it silently if that coordinator has already terminated, exactly as
// spec.md §5's cancellation section allows.
type Registry struct {
	mu      sync.Mutex
	waiting map[int64]chan<- replication.Outcome
}

func NewRegistry() *Registry {
	return &Registry{waiting: make(map[int64]chan<- replication.Outcome)}
}

// Register associates reqID with ch for the lifetime of one
// replication request. Callers must Unregister once the coordinator
// has stopped reading, even though Deliver tolerates a missing entry
// or a full inbox. The inbox must not be closed while registered:
// Deliver's send would panic.
func (r *Registry) Register(reqID int64, ch chan<- replication.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waiting[reqID] = ch
}

func (r *Registry) Unregister(reqID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.waiting, reqID)
}

// Deliver routes an inbound outcome to its coordinator's inbox. It
// reports false if no coordinator is registered for reqID (already
// timed out and drained, or a stale/duplicate callback).
func (r *Registry) Deliver(reqID int64, outcome replication.Outcome) bool {
	r.mu.Lock()
	ch, ok := r.waiting[reqID]
	r.mu.Unlock()
	if !ok {
		return false
	}

	// The inbox is buffered to hold exactly N outcomes (one per
	// target), so this send never blocks for a well-behaved caller;
	// a full or gone channel just means we raced Unregister.
	select {
	case ch <- outcome:
		return true
	default:
		return false
	}
}
