package replication_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objectstore/internal/rpc"
	"objectstore/pkg/logging"
	"objectstore/pkg/object"
	. "objectstore/pkg/replication"
)

func testLog(t *testing.T) *logging.Logger {
	t.Helper()
	return logging.MustGet(logging.Config{Service: "replication_test", Level: "error", OutputPaths: []string{"stdout"}})
}

type fakeLocal struct {
	checksum []byte
	err      error
	calls    int32
}

func (f *fakeLocal) Put(object.Object, string) ([]byte, error) {
	f.calls++
	return f.checksum, f.err
}

func (f *fakeLocal) Delete(object.Object, string) error {
	f.calls++
	return f.err
}

// fakeRemote simulates the peer side of internal/rpc.Caster: each
// node's registered behavior runs in its own goroutine and posts
// directly to the coordinator's inbox, exactly the way a real
// callback POST would arrive through internal/rpc.Registry.Deliver.
type fakeRemote struct {
	mu        sync.Mutex
	behaviors map[string]func(chan<- Outcome)
	casts     int32
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{behaviors: make(map[string]func(chan<- Outcome))}
}

func (f *fakeRemote) on(node string, behavior func(chan<- Outcome)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[node] = behavior
}

func (f *fakeRemote) Cast(node string, _ object.Method, _ object.Object, _ int64, ch chan<- Outcome) error {
	f.mu.Lock()
	b, ok := f.behaviors[node]
	f.mu.Unlock()
	f.casts++
	if !ok {
		return fmt.Errorf("fakeRemote: no behavior registered for %s", node)
	}
	go b(ch)
	return nil
}

func (f *fakeRemote) Release(int64) {}

type fakeRepair struct {
	mu    sync.Mutex
	kinds []ErrorKind
}

func (f *fakeRepair) Enqueue(kind ErrorKind, _ int, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	return nil
}

func (f *fakeRepair) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.kinds)
}

func newTestFacade(t *testing.T, local *fakeLocal, remote RemoteCaster, repair *fakeRepair, reqTimeout time.Duration) *Facade {
	return NewFacade(Config{
		SelfNode:   "local",
		ReqTimeout: reqTimeout,
		Local:      local,
		Remote:     remote,
		Repair:     repair,
		Log:        testLog(t),
	})
}

func replicateSync(f *Facade, method object.Method, w int, targets []object.ReplicaTarget, o object.Object) Result {
	var (
		result Result
		calls  int
		mu     sync.Mutex
	)
	f.Replicate(method, w, targets, o, func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		result = r
		calls++
	})
	if calls != 1 {
		panic(fmt.Sprintf("onComplete invoked %d times, want 1", calls))
	}
	return result
}

func ackAfter(d time.Duration, checksum []byte) func(chan<- Outcome) {
	return func(ch chan<- Outcome) {
		time.Sleep(d)
		ch <- Outcome{Ack: true, Checksum: checksum}
	}
}

func failAfter(d time.Duration, node, cause string) func(chan<- Outcome) {
	return func(ch chan<- Outcome) {
		time.Sleep(d)
		ch <- Outcome{Node: node, Ack: false, Cause: cause}
	}
}

func TestReplicate_AllSuccess(t *testing.T) {
	local := &fakeLocal{checksum: []byte("cA")}
	remote := newFakeRemote()
	remote.on("B", ackAfter(0, []byte("cB")))
	remote.on("C", ackAfter(0, []byte("cC")))
	repair := &fakeRepair{}
	f := newTestFacade(t, local, remote, repair, time.Second)

	targets := []object.ReplicaTarget{
		{Node: "local", Reachable: true},
		{Node: "B", Reachable: true},
		{Node: "C", Reachable: true},
	}
	result := replicateSync(f, object.Put, 2, targets, object.Object{PartitionID: 1, Key: []byte("k")})

	require.True(t, result.OK)
	assert.Equal(t, object.Put, result.Method)
	assert.Contains(t, [][]byte{[]byte("cA"), []byte("cB"), []byte("cC")}, result.Checksum)
	assert.Equal(t, 0, repair.count())
}

func TestReplicate_OneFailure(t *testing.T) {
	local := &fakeLocal{checksum: []byte("cA")}
	remote := newFakeRemote()
	remote.on("B", failAfter(0, "B", "io_error"))
	remote.on("C", ackAfter(0, []byte("cC")))
	repair := &fakeRepair{}
	f := newTestFacade(t, local, remote, repair, time.Second)

	targets := []object.ReplicaTarget{
		{Node: "local", Reachable: true},
		{Node: "B", Reachable: true},
		{Node: "C", Reachable: true},
	}
	result := replicateSync(f, object.Put, 2, targets, object.Object{PartitionID: 1, Key: []byte("k")})

	require.True(t, result.OK)
	assert.Contains(t, [][]byte{[]byte("cA"), []byte("cC")}, result.Checksum)
	// B's Fail may land after the two acks have already produced the
	// reply; the coordinator still drains it and enqueues the repair.
	require.Eventually(t, func() bool { return repair.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []ErrorKind{ErrReplicate}, repair.kinds)
}

func TestReplicate_TwoFailures_ErrorsMostRecentFirst(t *testing.T) {
	local := &fakeLocal{checksum: []byte("cA")}
	remote := newFakeRemote()
	// C's failure is made to arrive after B's synthesized nodedown,
	// which posts synchronously inside dispatch() before C's goroutine
	// is started, so the expected order is deterministic: C then B.
	remote.on("C", failAfter(15*time.Millisecond, "C", "disk_full"))
	repair := &fakeRepair{}
	f := newTestFacade(t, local, remote, repair, time.Second)

	targets := []object.ReplicaTarget{
		{Node: "local", Reachable: true},
		{Node: "B", Reachable: false},
		{Node: "C", Reachable: true},
	}
	result := replicateSync(f, object.Put, 2, targets, object.Object{PartitionID: 1, Key: []byte("k")})

	require.False(t, result.OK)
	require.False(t, result.Timeout)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, FailedReplica{Node: "C", Cause: "disk_full"}, result.Errors[0])
	assert.Equal(t, FailedReplica{Node: "B", Cause: "nodedown"}, result.Errors[1])
	assert.Equal(t, 2, repair.count())
}

func TestReplicate_AllUnreachable(t *testing.T) {
	local := &fakeLocal{}
	remote := newFakeRemote()
	repair := &fakeRepair{}
	f := newTestFacade(t, local, remote, repair, time.Second)

	targets := []object.ReplicaTarget{
		{Node: "local", Reachable: false},
		{Node: "B", Reachable: false},
		{Node: "C", Reachable: false},
	}
	result := replicateSync(f, object.Put, 1, targets, object.Object{PartitionID: 1, Key: []byte("k")})

	require.False(t, result.OK)
	require.Len(t, result.Errors, 3)
	for _, e := range result.Errors {
		assert.Equal(t, "nodedown", e.Cause)
	}
	assert.Equal(t, 3, repair.count())
	assert.EqualValues(t, 0, remote.casts, "no RPC should be issued for unreachable targets")
	assert.EqualValues(t, 0, local.calls, "unreachable local target must not touch the store")
}

func TestReplicate_Timeout(t *testing.T) {
	local := &fakeLocal{checksum: []byte("cA")}
	remote := newFakeRemote()
	// B and C answer well after REQ_TIMEOUT but before the hard drain
	// deadline (2x REQ_TIMEOUT), so their late Fail outcomes must still
	// enqueue repair even though the caller already got {error, timeout}.
	remote.on("B", failAfter(40*time.Millisecond, "B", "io_error"))
	remote.on("C", failAfter(40*time.Millisecond, "C", "io_error"))
	repair := &fakeRepair{}
	f := newTestFacade(t, local, remote, repair, 30*time.Millisecond)

	targets := []object.ReplicaTarget{
		{Node: "local", Reachable: true},
		{Node: "B", Reachable: true},
		{Node: "C", Reachable: true},
	}
	result := replicateSync(f, object.Put, 2, targets, object.Object{PartitionID: 1, Key: []byte("k")})

	require.True(t, result.Timeout)
	assert.False(t, result.OK)

	require.Eventually(t, func() bool { return repair.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestReplicate_DeleteMethod(t *testing.T) {
	local := &fakeLocal{}
	remote := newFakeRemote()
	remote.on("B", ackAfter(0, []byte("cB")))
	remote.on("C", ackAfter(0, []byte("cC")))
	repair := &fakeRepair{}
	f := newTestFacade(t, local, remote, repair, time.Second)

	targets := []object.ReplicaTarget{
		{Node: "local", Reachable: true},
		{Node: "B", Reachable: true},
		{Node: "C", Reachable: true},
	}
	result := replicateSync(f, object.Delete, 2, targets, object.Object{PartitionID: 1, Key: []byte("k")})

	require.True(t, result.OK)
	assert.Equal(t, object.Delete, result.Method)
	assert.Equal(t, 0, repair.count())
}

func TestReplicate_EmptyTargets_ImmediateFailure(t *testing.T) {
	local := &fakeLocal{}
	remote := newFakeRemote()
	repair := &fakeRepair{}
	f := newTestFacade(t, local, remote, repair, time.Second)

	start := time.Now()
	result := replicateSync(f, object.Put, 2, nil, object.Object{PartitionID: 1, Key: []byte("k")})
	elapsed := time.Since(start)

	require.False(t, result.OK)
	assert.Empty(t, result.Errors)
	assert.Less(t, elapsed, 50*time.Millisecond, "empty target list must not wait for REQ_TIMEOUT")
}

func TestReplicate_WGreaterThanN_QuorumImpossible(t *testing.T) {
	local := &fakeLocal{checksum: []byte("cA")}
	remote := newFakeRemote()
	remote.on("B", ackAfter(0, []byte("cB")))
	repair := &fakeRepair{}
	f := newTestFacade(t, local, remote, repair, time.Second)

	targets := []object.ReplicaTarget{
		{Node: "local", Reachable: true},
		{Node: "B", Reachable: true},
	}
	result := replicateSync(f, object.Put, 5, targets, object.Object{PartitionID: 1, Key: []byte("k")})

	require.False(t, result.OK)
	require.False(t, result.Timeout)
}

func TestReplicate_WZero_ImmediateSuccess(t *testing.T) {
	local := &fakeLocal{}
	remote := newFakeRemote()
	repair := &fakeRepair{}
	f := newTestFacade(t, local, remote, repair, time.Second)

	start := time.Now()
	result := replicateSync(f, object.Put, 0, []object.ReplicaTarget{{Node: "local", Reachable: true}}, object.Object{PartitionID: 1, Key: []byte("k")})
	elapsed := time.Since(start)

	require.True(t, result.OK)
	assert.Less(t, elapsed, 50*time.Millisecond)
}

// TestReplicate_LateFailThroughRealRegistry drives one target through
// an actual internal/rpc.Caster + internal/rpc.Registry pair instead of
// fakeRemote, which bypasses the registry entirely. It reproduces a
// callback that lands after REQ_TIMEOUT has already produced a reply:
// if reqID were unregistered on that reply instead of when the
// coordinator goroutine actually exits, Registry.Deliver would return
// false here and the repair enqueue below would never happen.
func TestReplicate_LateFailThroughRealRegistry(t *testing.T) {
	registry := rpc.NewRegistry()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload rpc.CastPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode cast payload: %v", err)
			return
		}
		w.WriteHeader(http.StatusAccepted)

		go func() {
			time.Sleep(40 * time.Millisecond)
			registry.Deliver(payload.ReqID, Outcome{Node: "B", Ack: false, Cause: "io_error"})
		}()
	}))
	defer srv.Close()

	clients := rpc.NewClientManager(map[string]string{"B": srv.URL}, rpc.DefaultClientConfig())
	caster := rpc.NewCaster(clients, registry, "http://local.test")

	local := &fakeLocal{checksum: []byte("cA")}
	repair := &fakeRepair{}
	f := newTestFacade(t, local, caster, repair, 30*time.Millisecond)

	targets := []object.ReplicaTarget{
		{Node: "local", Reachable: true},
		{Node: "B", Reachable: true},
	}
	result := replicateSync(f, object.Put, 2, targets, object.Object{PartitionID: 1, Key: []byte("k")})

	require.True(t, result.Timeout)
	require.Eventually(t, func() bool { return repair.count() == 1 }, time.Second, 5*time.Millisecond)
}
