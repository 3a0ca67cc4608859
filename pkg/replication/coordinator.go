package replication

import (
	"time"

	"go.uber.org/zap"

	"objectstore/pkg/logging"
	"objectstore/pkg/metrics"
	"objectstore/pkg/object"
)

// hardDeadlineFactor bounds how long a coordinator keeps draining
// outstanding outcomes after it has already replied (or after its
// REQ_TIMEOUT has fired). spec.md §9 leaves this open ("the source
// does not explicitly bound this"); two REQ_TIMEOUT windows is enough
// slack for every in-flight endpoint to post its one required outcome
// while still guaranteeing the coordinator goroutine terminates.
const hardDeadlineFactor = 2

// coordinator is the request-scoped state machine of spec.md §3–§4.3.
// It is created fresh per replication request, owns its inbox
// exclusively, and is never touched by any goroutine other than the
// one running loop().
type coordinator struct {
	method      object.Method
	partitionID int
	key         []byte
	reqID       int64

	n         int
	remaining int
	needed    int
	acks      [][]byte        // prepended, so acks[0] is the most recent
	errors    []FailedReplica // prepended, so errors[0] is the most recent
	replied   bool

	inbox  chan Outcome
	reply  chan Result
	repair RepairEnqueuer
	remote RemoteCaster
	log    *logging.Logger
}

func newCoordinator(method object.Method, partitionID int, key []byte, reqID int64, n, w int, repair RepairEnqueuer, remote RemoteCaster, log *logging.Logger) *coordinator {
	return &coordinator{
		method:      method,
		partitionID: partitionID,
		key:         key,
		reqID:       reqID,
		n:           n,
		remaining:   n,
		needed:      w,
		inbox:       make(chan Outcome, n),
		reply:       make(chan Result, 1),
		repair:      repair,
		remote:      remote,
		log:         log,
	}
}

// loop drains the inbox until the reply has been sent and every
// outcome has been accounted for, or until the hard deadline forces an
// exit. It must run in its own goroutine; run() (below) starts it.
//
// remote.Release(reqID) is deferred here rather than called by the
// facade on first reply: this goroutine keeps listening on inbox past
// that point specifically to enqueue repairs for late outcomes, so the
// registry entry routing those outcomes to inbox must outlive the
// facade's reply.
func (c *coordinator) loop(reqTimeout time.Duration) {
	defer c.remote.Release(c.reqID)

	reqTimer := time.NewTimer(reqTimeout)
	hardTimer := time.NewTimer(hardDeadlineFactor * reqTimeout)
	defer reqTimer.Stop()
	defer hardTimer.Stop()

	// Covers W > N (including N==0): quorum is already impossible before
	// any outcome arrives, so run evaluate() once up front against the
	// initial state.
	c.evaluate()

	for {
		if c.remaining == 0 {
			c.evaluate() // fallback branch, see spec.md §4.3 step 3
			return
		}

		select {
		case out := <-c.inbox:
			c.handle(out)
			c.evaluate()

		case <-reqTimer.C:
			c.onTimeout()

		case <-hardTimer.C:
			if c.remaining > 0 {
				c.log.Warn("coordinator exiting with outcomes still outstanding",
					zap.Int64("reqID", c.reqID),
					zap.Int("remaining", c.remaining))
			}
			return
		}
	}
}

func (c *coordinator) handle(out Outcome) {
	c.remaining--

	if out.Ack {
		c.acks = append([][]byte{out.Checksum}, c.acks...)
		c.needed--
		metrics.ReplicationAcksTotal.Inc()
		return
	}

	c.errors = append([]FailedReplica{{Node: out.Node, Cause: out.Cause}}, c.errors...)
	metrics.ReplicationFailuresTotal.WithLabelValues(out.Cause).Inc()

	if err := c.repair.Enqueue(errorKindFor(c.method), c.partitionID, c.key); err != nil {
		c.log.Warn("repair enqueue failed",
			zap.Int64("reqID", c.reqID),
			zap.String("node", out.Node),
			zap.Error(err))
	} else {
		metrics.RepairEnqueuedTotal.WithLabelValues(string(errorKindFor(c.method))).Inc()
	}
}

// evaluate applies spec.md §4.3's three transitions in precedence
// order. It is idempotent once replied is set, so it is safe to call
// after every state change including the N==0 bootstrap.
func (c *coordinator) evaluate() {
	// 1. Quorum-failure: not enough replies remain to ever reach needed.
	// This is remaining < needed directly: if every outcome still in
	// flight came back an Ack, would that be enough? (Algebraically
	// this reduces to len(errors) > N-W regardless of how many acks
	// have already landed, which is what makes scenario tables built
	// from a fixed N and W easy to reason about by inspection.)
	if !c.replied && c.remaining < c.needed {
		c.replied = true
		metrics.ReplicationQuorumFailuresTotal.Inc()
		c.send(Result{
			Method: c.method,
			Errors: append([]FailedReplica(nil), c.errors...),
		})
		return
	}

	// 2. Quorum-success. needed <= 0 alone isn't enough: with W == 0 that
	// is already true before any outcome has arrived, and spec.md §8's
	// "no phantom replies" invariant requires at least one observed Ack
	// even when the quorum itself is zero (success comes on the first
	// ack, not before any endpoint has answered).
	if !c.replied && c.needed <= 0 && len(c.acks) > 0 {
		c.replied = true
		c.send(Result{OK: true, Method: c.method, Checksum: c.acks[0]})
		return
	}

	// 3. Drain fallback: every outcome is in and neither branch above
	// fired, which only happens when W <= 0 and no Ack arrived (for
	// example N == 0 with W == 0).
	if c.remaining == 0 && !c.replied {
		c.replied = true
		if len(c.acks) > 0 {
			c.send(Result{OK: true, Method: c.method, Checksum: c.acks[0]})
			return
		}
		metrics.ReplicationQuorumFailuresTotal.Inc()
		c.send(Result{Method: c.method, Errors: append([]FailedReplica(nil), c.errors...)})
	}
}

func (c *coordinator) onTimeout() {
	if c.replied {
		return
	}
	c.replied = true
	metrics.ReplicationTimeoutsTotal.Inc()
	c.send(Result{Timeout: true, Method: c.method})
}

func (c *coordinator) send(r Result) {
	c.reply <- r
}
