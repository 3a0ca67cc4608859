package replication

import (
	"crypto/rand"
	"encoding/hex"

	"go.uber.org/zap"

	"objectstore/pkg/logging"
	"objectstore/pkg/object"
)

// dispatch runs the two endpoint variants of spec.md §4.2, one
// goroutine per target, each guaranteed to post exactly one Outcome to
// inbox. Unreachable targets never spawn a goroutine at all: the
// synthetic Fail is posted synchronously, matching the "coordinator
// treats it as having already produced Fail(node, nodedown) without
// issuing any RPC" wording.
func dispatch(selfNode string, method object.Method, o object.Object, reqID int64, targets []object.ReplicaTarget, local LocalStore, remote RemoteCaster, inbox chan<- Outcome, log *logging.Logger) {
	for _, t := range targets {
		t := t
		if !t.Reachable {
			inbox <- Outcome{Node: t.Node, Ack: false, Cause: "nodedown"}
			continue
		}

		if t.Node == selfNode {
			go runLocal(method, o, reqID, local, inbox, log)
			continue
		}

		go runRemote(t.Node, method, o, reqID, remote, inbox, log)
	}
}

func runLocal(method object.Method, o object.Object, reqID int64, local LocalStore, inbox chan<- Outcome, log *logging.Logger) {
	token := correlationToken()

	var (
		checksum []byte
		err      error
	)
	if method == object.Delete {
		err = local.Delete(o, token)
	} else {
		checksum, err = local.Put(o, token)
	}

	if err != nil {
		log.Warn("local replica write failed",
			zap.ByteString("key", o.Key),
			zap.String("node", "local"),
			zap.Int64("reqID", reqID),
			zap.Error(err))
		inbox <- Outcome{Node: "local", Ack: false, Cause: classifyStoreError(err)}
		return
	}

	inbox <- Outcome{Node: "local", Ack: true, Checksum: checksum}
}

func runRemote(node string, method object.Method, o object.Object, reqID int64, remote RemoteCaster, inbox chan<- Outcome, log *logging.Logger) {
	if err := remote.Cast(node, method, o, reqID, inbox); err != nil {
		log.Warn("remote cast failed before handoff",
			zap.String("node", node),
			zap.Int64("reqID", reqID),
			zap.Error(err))
		inbox <- Outcome{Node: node, Ack: false, Cause: "nodedown"}
	}
	// On success the remote node posts the real outcome asynchronously
	// through the reply registry; this goroutine's job ends here.
}

// classifyStoreError turns a local store error into the coarse cause
// string carried on a Fail outcome. The store layer wraps os-level
// errors rather than a closed taxonomy, so this stays a single bucket;
// pkg/store callers that need finer detail read the wrapped error
// directly via errors.Is/As.
func classifyStoreError(err error) string {
	if err == nil {
		return ""
	}
	return "store_error"
}

func correlationToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
