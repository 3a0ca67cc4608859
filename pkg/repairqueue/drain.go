package repairqueue

import (
	"context"
	"time"

	"go.uber.org/zap"

	"objectstore/pkg/logging"
	"objectstore/pkg/metrics"
)

// DrainConfig controls the background drain loop's pacing. These are
// the load-aware throttle's batch-size/interval knobs from spec.md §1,
// carried here as plain config rather than as an implemented adaptive
// controller (see Non-goals).
type DrainConfig struct {
	BatchSize int
	Interval  time.Duration
}

func DefaultDrainConfig() DrainConfig {
	return DrainConfig{BatchSize: 100, Interval: 30 * time.Second}
}

// RunDrainLoop periodically drains a bounded batch of repair entries
// from every partition nodeID has charge of, logging each as a
// reconciliation candidate. Actually re-driving repair traffic against
// the owning replicas is out of scope (spec.md §1); this loop's job
// ends at observably consuming the entry. It blocks until ctx is
// cancelled.
func RunDrainLoop(ctx context.Context, q *Queue, nodeID string, owner Owner, cfg DrainConfig, log *logging.Logger) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			drainOnce(q, nodeID, owner, cfg, log)
		}
	}
}

func drainOnce(q *Queue, nodeID string, owner Owner, cfg DrainConfig, log *logging.Logger) {
	partitions, err := q.Partitions()
	if err != nil {
		log.Warn("repair drain: could not list partitions", zap.Error(err))
		return
	}

	for _, partitionID := range partitions {
		if !owner.HasChargeOf(nodeID, partitionID) {
			continue
		}

		entries, err := q.DrainBatch(partitionID, cfg.BatchSize)
		if err != nil {
			log.Warn("repair drain: batch failed", zap.Int("partition", partitionID), zap.Error(err))
			continue
		}
		if len(entries) == 0 {
			continue
		}

		for _, e := range entries {
			log.Info("reconciliation candidate",
				zap.String("kind", string(e.Kind)),
				zap.Int("partition", e.PartitionID),
				zap.ByteString("key", e.Key),
				zap.Time("enqueued_at", e.EnqueuedAt))
			metrics.RepairDrainedTotal.WithLabelValues(string(e.Kind)).Inc()
		}
	}
}
