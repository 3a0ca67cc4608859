package replication

import (
	"objectstore/pkg/object"
)

// ErrorKind is the taxonomy of repair reasons the coordinator hands to
// the repair queue. Any other kind is a silent no-op there (spec.md
// §4.4).
type ErrorKind string

const (
	ErrReplicate ErrorKind = "ERR_REPLICATE"
	ErrDelete    ErrorKind = "ERR_DELETE"
)

func errorKindFor(method object.Method) ErrorKind {
	if method == object.Delete {
		return ErrDelete
	}
	return ErrReplicate
}

// Outcome is a single replica's result, posted once by every endpoint
// to the coordinator's inbox.
type Outcome struct {
	Node     string
	Ack      bool
	Checksum []byte
	Cause    string
}

// Result is what the facade hands to the caller's completion callback,
// exactly once (spec.md §4.1, §7).
type Result struct {
	OK       bool
	Method   object.Method
	Checksum []byte

	Timeout bool
	Errors  []FailedReplica
}

// FailedReplica is one entry of a quorum-failure reply, ordered
// most-recent-first (spec.md §9).
type FailedReplica struct {
	Node  string
	Cause string
}

// RepairEnqueuer is the coordinator's only dependency on the repair
// queue (spec.md §4.4). Enqueue is best-effort: an error here is
// logged by the implementation and never surfaces to the coordinator's
// caller.
type RepairEnqueuer interface {
	Enqueue(kind ErrorKind, partitionID int, key []byte) error
}

// LocalStore is the coordinator's dependency on spec.md §4.2's local
// object store, scoped to just what the local endpoint needs.
type LocalStore interface {
	Put(o object.Object, token string) ([]byte, error)
	Delete(o object.Object, token string) error
}

// RemoteCaster is the coordinator's dependency on spec.md §4.2's
// remote endpoint: a fire-and-forget cast to a peer's object handler.
// A non-nil return from Cast means the transport failed before
// handoff, and the caller must synthesize Fail(node, nodedown) itself
// (spec.md §6). Release lets the caller forget reqID once this
// coordinator is done listening for it (spec.md §9's registry).
type RemoteCaster interface {
	Cast(node string, method object.Method, o object.Object, reqID int64, replyTo chan<- Outcome) error
	Release(reqID int64)
}
