package repairqueue

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objectstore/pkg/logging"
	"objectstore/pkg/replication"
)

func openTestQueue(t *testing.T) *Queue {
	t.Helper()
	log := logging.MustGet(logging.Config{Service: "repairqueue_test", Level: "error", OutputPaths: []string{"stdout"}})
	q, err := Open(filepath.Join(t.TempDir(), "repair.db"), "n1", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestEnqueue_UnrecognizedKindIsNoOp(t *testing.T) {
	q := openTestQueue(t)
	require.NoError(t, q.Enqueue(replication.ErrorKind("bogus"), 1, []byte("k")))

	partitions, err := q.Partitions()
	require.NoError(t, err)
	assert.Empty(t, partitions)
}

func TestEnqueueAndDrain_ArrivalOrder(t *testing.T) {
	q := openTestQueue(t)
	require.NoError(t, q.Enqueue(replication.ErrReplicate, 1, []byte("a")))
	require.NoError(t, q.Enqueue(replication.ErrDelete, 1, []byte("b")))
	require.NoError(t, q.Enqueue(replication.ErrReplicate, 1, []byte("c")))

	entries, err := q.DrainBatch(1, 100)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []byte("a"), entries[0].Key)
	assert.Equal(t, []byte("b"), entries[1].Key)
	assert.Equal(t, []byte("c"), entries[2].Key)
}

func TestDrainBatch_Bounded(t *testing.T) {
	q := openTestQueue(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(replication.ErrReplicate, 2, []byte{byte(i)}))
	}

	first, err := q.DrainBatch(2, 3)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	second, err := q.DrainBatch(2, 3)
	require.NoError(t, err)
	assert.Len(t, second, 2)

	third, err := q.DrainBatch(2, 3)
	require.NoError(t, err)
	assert.Empty(t, third)
}

func TestPartitions_OnlyNonEmptyBuckets(t *testing.T) {
	q := openTestQueue(t)
	require.NoError(t, q.Enqueue(replication.ErrReplicate, 5, []byte("k")))

	partitions, err := q.Partitions()
	require.NoError(t, err)
	assert.Equal(t, []int{5}, partitions)

	_, err = q.DrainBatch(5, 100)
	require.NoError(t, err)

	partitions, err = q.Partitions()
	require.NoError(t, err)
	assert.Empty(t, partitions)
}

type fakeOwner struct {
	owned map[int]bool
}

func (f fakeOwner) HasChargeOf(_ string, partitionID int) bool {
	return f.owned[partitionID]
}

func TestRunDrainLoop_OnlyDrainsOwnedPartitions(t *testing.T) {
	q := openTestQueue(t)
	require.NoError(t, q.Enqueue(replication.ErrReplicate, 1, []byte("owned")))
	require.NoError(t, q.Enqueue(replication.ErrReplicate, 2, []byte("not-owned")))

	log := logging.MustGet(logging.Config{Service: "repairqueue_test", Level: "error", OutputPaths: []string{"stdout"}})
	owner := fakeOwner{owned: map[int]bool{1: true}}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	cfg := DrainConfig{BatchSize: 10, Interval: 10 * time.Millisecond}
	RunDrainLoop(ctx, q, "n1", owner, cfg, log)

	entriesP1, err := q.DrainBatch(1, 10)
	require.NoError(t, err)
	assert.Empty(t, entriesP1, "owned partition should already be drained")

	entriesP2, err := q.DrainBatch(2, 10)
	require.NoError(t, err)
	assert.Len(t, entriesP2, 1, "unowned partition must be left alone")
}
