package redundancy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReachability struct {
	down map[string]bool
}

func (f fakeReachability) Reachable(node string) bool {
	return !f.down[node]
}

func TestTargets_Deterministic(t *testing.T) {
	m := New("n1", []string{"n1", "n2", "n3"}, 2, fakeReachability{})

	a := m.Targets(7, []byte("k"), 2)
	b := m.Targets(7, []byte("k"), 2)
	require.Equal(t, a, b)
	assert.Len(t, a, 2)
}

func TestTargets_SamePartitionSameOwners(t *testing.T) {
	m := New("n1", []string{"n1", "n2", "n3"}, 2, fakeReachability{})

	a := m.Targets(3, []byte("key-a"), 2)
	b := m.Targets(3, []byte("key-b"), 2)
	assert.Equal(t, a, b, "keys in the same partition share an owner set")
}

func TestTargets_ReachabilityReflectsBreakerState(t *testing.T) {
	m := New("n1", []string{"n1", "n2", "n3"}, 3, fakeReachability{down: map[string]bool{"n2": true}})

	targets := m.Targets(1, []byte("k"), 3)
	require.Len(t, targets, 3)
	for _, target := range targets {
		if target.Node == "n2" {
			assert.False(t, target.Reachable)
		} else {
			assert.True(t, target.Reachable)
		}
	}
}

func TestTargets_SelfAlwaysReachable(t *testing.T) {
	m := New("n1", []string{"n1", "n2"}, 2, fakeReachability{down: map[string]bool{"n1": true}})
	targets := m.Targets(0, []byte("k"), 2)
	for _, target := range targets {
		if target.Node == "n1" {
			assert.True(t, target.Reachable, "the local node is always reachable to itself")
		}
	}
}

func TestHasChargeOf(t *testing.T) {
	m := New("n1", []string{"n1", "n2", "n3"}, 2, fakeReachability{})
	targets := m.Targets(9, nil, 2)
	require.Len(t, targets, 2)
	assert.True(t, m.HasChargeOf(targets[0].Node, 9))
	assert.True(t, m.HasChargeOf(targets[1].Node, 9))
}

func TestTargets_NMoreThanRingSize(t *testing.T) {
	m := New("n1", []string{"n1", "n2"}, 2, fakeReachability{})
	targets := m.Targets(0, []byte("k"), 5)
	assert.Len(t, targets, 2)
}
