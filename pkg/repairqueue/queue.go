// Package repairqueue is the durable, embedded repair queue backing
// spec.md §4.4's Repair Enqueuer: a single-file, per-node, append-only
// store (one bbolt bucket per partition) recording failed-replica
// tuples for later reconciliation. No message-queue library appears
// anywhere in this codebase's lineage, so this package reaches outside
// it for go.etcd.io/bbolt, the same embedded-KV role bbolt plays in
// every other Go service that needs a durable local queue without
// standing up a broker.
package repairqueue

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"objectstore/pkg/logging"
	"objectstore/pkg/replication"
)

// Entry is one durable repair tuple.
type Entry struct {
	Kind        replication.ErrorKind `json:"kind"`
	PartitionID int                   `json:"partition_id"`
	Key         []byte                `json:"key"`
	EnqueuedAt  time.Time             `json:"enqueued_at"`
}

// Owner answers ownership questions for the drain loop; satisfied by
// *pkg/redundancy.Map in production.
type Owner interface {
	HasChargeOf(node string, partitionID int) bool
}

// Queue is a *bbolt.DB-backed implementation of replication.RepairEnqueuer.
type Queue struct {
	db     *bbolt.DB
	nodeID string
	log    *logging.Logger
}

// Open opens (creating if absent) the bbolt file at path.
func Open(path, nodeID string, log *logging.Logger) (*Queue, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open repair queue %s: %w", path, err)
	}
	return &Queue{db: db, nodeID: nodeID, log: log}, nil
}

func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue implements replication.RepairEnqueuer. Any kind other than
// ErrReplicate/ErrDelete is a silent no-op, per spec.md §4.4.
func (q *Queue) Enqueue(kind replication.ErrorKind, partitionID int, key []byte) error {
	if kind != replication.ErrReplicate && kind != replication.ErrDelete {
		return nil
	}

	entry := Entry{
		Kind:        kind,
		PartitionID: partitionID,
		Key:         append([]byte(nil), key...),
		EnqueuedAt:  time.Now(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal repair entry: %w", err)
	}

	return q.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(partitionBucket(partitionID))
		if err != nil {
			return fmt.Errorf("create bucket for partition %d: %w", partitionID, err)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("allocate sequence: %w", err)
		}
		return b.Put(seqKey(seq), data)
	})
}

// DrainBatch lists and removes up to batchSize of the oldest entries
// in partitionID's bucket, returning what it consumed. Entries drain
// in arrival order because the key is a monotonically increasing
// sequence.
func (q *Queue) DrainBatch(partitionID, batchSize int) ([]Entry, error) {
	var drained []Entry

	err := q.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(partitionBucket(partitionID))
		if b == nil {
			return nil
		}

		c := b.Cursor()
		var keysToDelete [][]byte
		for k, v := c.First(); k != nil && len(drained) < batchSize; k, v = c.Next() {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				q.log.Warn("dropping malformed repair entry", zap.Int("partition", partitionID), zap.Error(err))
				keysToDelete = append(keysToDelete, append([]byte(nil), k...))
				continue
			}
			drained = append(drained, entry)
			keysToDelete = append(keysToDelete, append([]byte(nil), k...))
		}
		for _, k := range keysToDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("delete drained entry: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drain partition %d: %w", partitionID, err)
	}
	return drained, nil
}

// Partitions lists every partition with a non-empty bucket.
func (q *Queue) Partitions() ([]int, error) {
	var partitions []int
	err := q.db.View(func(tx *bbolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bbolt.Bucket) error {
			if b.Stats().KeyN == 0 {
				return nil
			}
			var id int
			if _, err := fmt.Sscanf(string(name), bucketPrefix+"%d", &id); err != nil {
				return nil
			}
			partitions = append(partitions, id)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list repair partitions: %w", err)
	}
	return partitions, nil
}

const bucketPrefix = "partition-"

func partitionBucket(partitionID int) []byte {
	return []byte(fmt.Sprintf("%s%d", bucketPrefix, partitionID))
}

func seqKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}
