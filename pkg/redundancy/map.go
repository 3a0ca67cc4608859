// Package redundancy assigns each (partition, key) to an ordered set
// of node identities and reports whether a given node is currently
// reachable, adapted from the modulo-based server selection the
// teacher's distributed storage layer used to fan a chunk out across a
// fixed server list.
package redundancy

import (
	"hash/fnv"
	"sort"

	"objectstore/pkg/object"
)

// Reachability is the redundancy map's only external dependency: a
// live reachability signal per node, backed in production by
// internal/rpc.ClientManager.Reachable (circuit-breaker state).
type Reachability interface {
	Reachable(node string) bool
}

// Map deterministically assigns replica targets from a fixed ring of
// node identities. The ring is set once at construction; membership
// changes (a node joining or leaving the cluster) require a new Map,
// matching this node's static peer configuration.
type Map struct {
	selfNode string
	ring     []string // sorted for a deterministic, reproducible order
	reach    Reachability
	factor   int // default replication factor, used by HasChargeOf
}

// New builds a redundancy map over nodes (which must include selfNode).
// factor is the default replication factor HasChargeOf checks
// ownership against; it is independent of the per-call n passed to
// Targets.
func New(selfNode string, nodes []string, factor int, reach Reachability) *Map {
	ring := append([]string(nil), nodes...)
	sort.Strings(ring)
	if factor <= 0 || factor > len(ring) {
		factor = len(ring)
	}
	return &Map{selfNode: selfNode, ring: ring, reach: reach, factor: factor}
}

// Targets returns n node identities for partitionID, starting at a
// hash-of-partition offset into the ring and walking forward. Every
// key within the same partition maps to the same replica set, so
// key is accepted (per this map's contract) but does not influence
// placement. Order is stable across calls with the same partition and
// n so tests can rely on it, but carries no other semantic weight
// (spec.md §5's "no ordering is required among replica writes").
func (m *Map) Targets(partitionID int, key []byte, n int) []object.ReplicaTarget {
	_ = key
	if len(m.ring) == 0 || n <= 0 {
		return nil
	}
	if n > len(m.ring) {
		n = len(m.ring)
	}

	start := m.ringIndex(partitionID)
	targets := make([]object.ReplicaTarget, 0, n)
	for i := 0; i < n; i++ {
		node := m.ring[(start+i)%len(m.ring)]
		reachable := node == m.selfNode || m.reach.Reachable(node)
		targets = append(targets, object.ReplicaTarget{Node: node, Reachable: reachable})
	}
	return targets
}

// HasChargeOf reports whether node is one of the current owners of
// partitionID, for use by the repair drain loop rather than by the
// coordinator itself (spec.md §6).
func (m *Map) HasChargeOf(node string, partitionID int) bool {
	for _, t := range m.Targets(partitionID, nil, m.factor) {
		if t.Node == node {
			return true
		}
	}
	return false
}

func (m *Map) ringIndex(partitionID int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte{
		byte(partitionID), byte(partitionID >> 8), byte(partitionID >> 16), byte(partitionID >> 24),
	})
	return int(h.Sum32() % uint32(len(m.ring)))
}
