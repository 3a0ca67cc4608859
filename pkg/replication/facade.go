// Package replication implements the per-request replication
// coordinator: fan-out of one write to N replicas, an early-success
// rule keyed on a write-quorum W, a total deadline, per-replica outcome
// classification, and best-effort background repair enqueue.
package replication

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"objectstore/pkg/logging"
	"objectstore/pkg/metrics"
	"objectstore/pkg/object"
)

// reqIDSeq hands out the process-unique request IDs the reply registry
// correlates remote outcomes against and the logs carry.
var reqIDSeq int64

func nextReqID() int64 {
	return atomic.AddInt64(&reqIDSeq, 1)
}

// Facade is the synchronous, caller-facing entrypoint of spec.md §4.1.
// One Facade is constructed per node and shared across every request.
type Facade struct {
	selfNode   string
	reqTimeout time.Duration
	local      LocalStore
	remote     RemoteCaster
	repair     RepairEnqueuer
	log        *logging.Logger
}

// Config wires a Facade's fixed dependencies and its per-request
// deadline.
type Config struct {
	SelfNode   string
	ReqTimeout time.Duration
	Local      LocalStore
	Remote     RemoteCaster
	Repair     RepairEnqueuer
	Log        *logging.Logger
}

func NewFacade(cfg Config) *Facade {
	return &Facade{
		selfNode:   cfg.SelfNode,
		reqTimeout: cfg.ReqTimeout,
		local:      cfg.Local,
		remote:     cfg.Remote,
		repair:     cfg.Repair,
		log:        cfg.Log,
	}
}

// Replicate dispatches method against o to every target in parallel,
// blocks for at most ReqTimeout, and invokes onComplete exactly once
// with the outcome. It returns once onComplete has been invoked.
//
// Degenerate inputs need no special-casing here: the coordinator's
// initial evaluate() pass at the top of loop() already resolves W > N (including the empty
// target list, N=0) to an immediate quorum-failure. W == 0 with N == 0
// resolves the same way, since success still requires at least one
// observed Ack; W == 0 with N > 0 waits for that first Ack like any
// other quorum, just with nothing left to wait for after it lands.
func (f *Facade) Replicate(method object.Method, w int, targets []object.ReplicaTarget, o object.Object, onComplete func(Result)) {
	reqID := nextReqID()
	start := time.Now()

	n := len(targets)
	coord := newCoordinator(method, o.PartitionID, o.Key, reqID, n, w, f.repair, f.remote, f.log)
	go coord.loop(f.reqTimeout)

	if n > 0 {
		dispatch(f.selfNode, method, o, reqID, targets, f.local, f.remote, coord.inbox, f.log)
	}

	var result Result
	select {
	case result = <-coord.reply:
	case <-time.After(f.reqTimeout + hardDeadlineFactor*f.reqTimeout):
		// Backstop only: the coordinator's own reqTimeout fires first
		// in every normal path. This only trips if the coordinator
		// goroutine itself never scheduled.
		metrics.ReplicationTimeoutsTotal.Inc()
		result = Result{Timeout: true, Method: method}
	}

	// coord.loop() releases reqID itself, once it actually stops
	// listening on inbox; it keeps draining past this reply to enqueue
	// repairs for outcomes that arrive late.

	outcome := "ok"
	switch {
	case result.Timeout:
		outcome = "timeout"
	case !result.OK:
		outcome = "error"
	}
	metrics.ReplicationDuration.WithLabelValues(string(method), outcome).Observe(time.Since(start).Seconds())

	f.log.Info("replication request completed",
		zap.Int64("reqID", reqID),
		zap.String("method", string(method)),
		zap.Int("targets", n),
		zap.Int("w", w),
		zap.String("outcome", outcome),
		zap.Duration("elapsed", time.Since(start)))

	onComplete(result)
}
