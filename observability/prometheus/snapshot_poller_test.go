package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-fibers/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type runtimeStub struct {
	stats core.RuntimeStats
}

func (s runtimeStub) Stats() core.RuntimeStats { return s.stats }

type runtimeWithWorkersStub struct {
	runtimeStub
	workers []core.WorkerStats
}

func (s runtimeWithWorkersStub) WorkerStats() []core.WorkerStats { return s.workers }

func TestSnapshotPoller_CollectsRuntimeStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddRuntime("rt-a", runtimeWithWorkersStub{
		runtimeStub: runtimeStub{stats: core.RuntimeStats{
			Running:  true,
			Live:     3,
			Injected: 4,
			Parked:   1,
			Finished: 10,
			Stacks: core.StackPoolStats{Classes: []core.StackClassStats{
				{Size: 65536, Allocated: 8, InUse: 3, Waiters: 2},
			}},
		}},
		workers: []core.WorkerStats{{ID: 0, Queued: 5, Executed: 42, Parked: true}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		live := testutil.ToFloat64(poller.liveTasks.WithLabelValues("rt-a"))
		inUse := testutil.ToFloat64(poller.stacksInUse.WithLabelValues("rt-a", "65536"))
		return live == 3 && inUse == 3
	})

	if got := testutil.ToFloat64(poller.running.WithLabelValues("rt-a")); got != 1 {
		t.Fatalf("running gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.stackWaiters.WithLabelValues("rt-a", "65536")); got != 2 {
		t.Fatalf("stack waiters gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.workerExecuted.WithLabelValues("rt-a", "0")); got != 42 {
		t.Fatalf("worker executed gauge = %v, want 42", got)
	}
	if got := testutil.ToFloat64(poller.workerParked.WithLabelValues("rt-a", "0")); got != 1 {
		t.Fatalf("worker parked gauge = %v, want 1", got)
	}
}

func TestSnapshotPoller_LiveRuntime(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}
	cfg := core.DefaultRuntimeConfig()
	cfg.Workers = 2
	rt, err := core.NewRuntime(cfg)
	if err != nil {
		t.Fatalf("NewRuntime failed: %v", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer rt.Shutdown()

	poller.AddRuntime("live", rt)
	poller.collectOnce()

	if got := testutil.ToFloat64(poller.running.WithLabelValues("live")); got != 1 {
		t.Fatalf("running gauge = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(poller.workerQueued); got != 2 {
		t.Fatalf("worker series = %d, want 2", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller(reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
