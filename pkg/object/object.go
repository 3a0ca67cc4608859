// Package object defines the payload replicated by pkg/replication and
// the small set of value types the coordinator and its endpoints agree
// on: the object itself, the replica targets it is sent to, and the
// method being applied.
package object

import "time"

// Method is the write operation being replicated.
type Method string

const (
	Put    Method = "put"
	Delete Method = "delete"
)

// Object is the immutable unit of replication. PartitionID and Key
// together identify where the object lives. ReqID is caller-supplied
// but not read by pkg/replication: the facade assigns its own
// process-unique request ID for logging and RPC correlation.
type Object struct {
	PartitionID int
	Key         []byte
	ReqID       int64
	Data        []byte

	// ContentType and CreatedAt are consumed only by pkg/gateway; the
	// coordinator never reads them.
	ContentType string
	CreatedAt   time.Time
}

// ReplicaTarget is one node designated to hold a copy of an object.
// Order is preserved from the redundancy map for deterministic tests
// but carries no semantic weight.
type ReplicaTarget struct {
	Node      string
	Reachable bool
}

// KeyString renders Key for logging without assuming it's valid UTF-8.
func (o Object) KeyString() string {
	return string(o.Key)
}
