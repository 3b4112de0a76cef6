package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestSequence_FIFOAndExclusive tests ordering and mutual exclusion
// Given: a sequence on a 4-worker runtime
// When: 200 items are posted, each yielding in the middle
// Then: they run in post order and never overlap
func TestSequence_FIFOAndExclusive(t *testing.T) {
	// Arrange
	rt := newStartedRuntime(t, newTestConfig(4))
	ctx := testContext(t)
	seq := NewSequence(rt, "ordered")

	var active atomic.Int32
	var overlap atomic.Bool
	var order []int

	// Act
	for i := range 200 {
		err := seq.Post(func(ctx context.Context) {
			if active.Add(1) > 1 {
				overlap.Store(true)
			}
			_ = Yield(ctx)
			order = append(order, i)
			active.Add(-1)
		})
		if err != nil {
			t.Fatalf("Post error = %v", err)
		}
	}
	if err := seq.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle error = %v", err)
	}

	// Assert
	if overlap.Load() {
		t.Error("sequence items overlapped")
	}
	if len(order) != 200 {
		t.Fatalf("ran %d items, want 200", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("order[%d] = %d, want %d", i, v, i)
		}
	}
	if got := seq.Executed(); got != 201 {
		t.Errorf("Executed = %d, want 201", got)
	}
}

// TestSequence_CurrentSequence tests the sequence context value
func TestSequence_CurrentSequence(t *testing.T) {
	rt := newStartedRuntime(t, newTestConfig(1))
	ctx := testContext(t)
	seq := NewSequence(rt, "")

	var got *Sequence
	var inTask bool
	_ = seq.Post(func(ctx context.Context) {
		got = CurrentSequence(ctx)
		inTask = InTask(ctx)
	})
	_ = seq.WaitIdle(ctx)

	if got != seq {
		t.Error("CurrentSequence did not return the sequence")
	}
	if !inTask {
		t.Error("sequence item does not run in a task")
	}
	if seq.Name() != "sequence" {
		t.Errorf("Name = %q, want sequence", seq.Name())
	}
	if CurrentSequence(context.Background()) != nil {
		t.Error("CurrentSequence outside a sequence is not nil")
	}
}

// TestSequence_PanicIsContained tests panic recovery in items
// Given: a sequence whose second item panics
// When: three items run
// Then: the panic is reported and the third item still runs
func TestSequence_PanicIsContained(t *testing.T) {
	cfg := newTestConfig(2)
	handler := NewTestPanicHandler()
	cfg.PanicHandler = handler
	rt := newStartedRuntime(t, cfg)
	ctx := testContext(t)
	seq := NewSequence(rt, "panicky")

	ran := 0
	_ = seq.Post(func(context.Context) { ran++ })
	_ = seq.Post(func(context.Context) { panic("item failed") })
	_ = seq.Post(func(context.Context) { ran++ })
	_ = seq.WaitIdle(ctx)

	if ran != 2 {
		t.Errorf("ran = %d, want 2", ran)
	}
	if seq.Panics() != 1 || handler.CallCount() != 1 {
		t.Errorf("panics = %d, handler calls = %d, want 1 and 1", seq.Panics(), handler.CallCount())
	}
	if calls := handler.GetCalls(); calls[0].WorkerID != -1 || !calls[0].HasTrace {
		t.Errorf("panic call = %+v", calls[0])
	}
}

// TestSequence_PostDelayed tests delayed posting
func TestSequence_PostDelayed(t *testing.T) {
	rt := newStartedRuntime(t, newTestConfig(2))
	seq := NewSequence(rt, "delayed")
	start := time.Now()
	done := make(chan time.Duration, 1)

	if err := seq.PostDelayed(func(context.Context) { done <- time.Since(start) }, 20*time.Millisecond); err != nil {
		t.Fatalf("PostDelayed error = %v", err)
	}

	select {
	case elapsed := <-done:
		if elapsed < 20*time.Millisecond {
			t.Errorf("ran after %v, want >= 20ms", elapsed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("delayed item did not run")
	}
}

// TestSequence_PostRepeating tests repeating posts and Stop
// Given: an item repeating every 5ms
// When: it has run three times and the handle is stopped
// Then: it stops running
func TestSequence_PostRepeating(t *testing.T) {
	rt := newStartedRuntime(t, newTestConfig(2))
	ctx := testContext(t)
	seq := NewSequence(rt, "ticker")

	var runs atomic.Int32
	h, err := seq.PostRepeating(func(context.Context) { runs.Add(1) }, 0, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("PostRepeating error = %v", err)
	}
	assertEventually(t, 2*time.Second, func() bool { return runs.Load() >= 3 })

	h.Stop()
	if _, err := h.task.Join(ctx); err != nil {
		t.Fatalf("repeating task Join error = %v", err)
	}
	_ = seq.WaitIdle(ctx)
	settled := runs.Load()
	time.Sleep(30 * time.Millisecond)

	if !h.IsStopped() {
		t.Error("IsStopped = false after Stop")
	}
	if got := runs.Load(); got != settled {
		t.Errorf("runs went from %d to %d after Stop", settled, got)
	}
	if _, err := seq.PostRepeating(func(context.Context) {}, 0, 0); err == nil {
		t.Error("PostRepeating with zero interval error = nil")
	}
}

// TestSequence_Shutdown tests closing a sequence
// Given: a sequence blocked on a running item with more queued behind it
// When: it shuts down
// Then: the queued items are dropped and new posts fail
func TestSequence_Shutdown(t *testing.T) {
	rt := newStartedRuntime(t, newTestConfig(2))
	ctx := testContext(t)
	seq := NewSequence(rt, "closing")

	gate := NewMutex()
	gate.Lock(ctx)
	var ran atomic.Int32
	_ = seq.Post(func(ctx context.Context) {
		gate.Lock(ctx)
		gate.Unlock()
		ran.Add(1)
	})
	for range 5 {
		_ = seq.Post(func(context.Context) { ran.Add(1) })
	}
	assertEventually(t, time.Second, func() bool { return seq.Pending() == 5 })

	seq.Shutdown()
	gate.Unlock()

	if !seq.IsClosed() {
		t.Error("IsClosed = false")
	}
	if err := seq.Post(func(context.Context) {}); !errors.Is(err, ErrSequenceClosed) {
		t.Errorf("Post after Shutdown error = %v, want ErrSequenceClosed", err)
	}
	if err := seq.WaitIdle(ctx); !errors.Is(err, ErrSequenceClosed) {
		t.Errorf("WaitIdle after Shutdown error = %v, want ErrSequenceClosed", err)
	}
	assertEventually(t, time.Second, func() bool { return ran.Load() == 1 })
	if seq.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", seq.Pending())
	}
}

// TestSequence_ShutdownUnwindsSuspendedItem tests abandoning a sequence
// Given: a sequence whose first item sleeps for an hour and whose second
// item is queued behind it
// When: the runtime shuts down
// Then: the first item unwinds, the second never runs, and no panic is
// reported
func TestSequence_ShutdownUnwindsSuspendedItem(t *testing.T) {
	// Arrange
	cfg := newTestConfig(2)
	handler := NewTestPanicHandler()
	cfg.PanicHandler = handler
	rt := newStartedRuntime(t, cfg)
	seq := NewSequence(rt, "abandoned")

	var unwound, resumed, secondRan atomic.Bool
	_ = seq.Post(func(ctx context.Context) {
		defer unwound.Store(true)
		_ = Sleep(ctx, time.Hour)
		resumed.Store(true)
	})
	_ = seq.Post(func(ctx context.Context) {
		secondRan.Store(true)
		_ = Sleep(ctx, 2*time.Second)
	})
	assertEventually(t, time.Second, func() bool { return rt.Stats().Sleeping == 1 })

	// Act
	start := time.Now()
	if err := rt.Shutdown(); err != nil {
		t.Fatalf("Shutdown error = %v", err)
	}
	elapsed := time.Since(start)

	// Assert
	if !unwound.Load() {
		t.Error("deferred call of the suspended item did not run")
	}
	if resumed.Load() {
		t.Error("suspended item ran past its Sleep")
	}
	if secondRan.Load() {
		t.Error("queued item ran during Shutdown")
	}
	if elapsed > time.Second {
		t.Errorf("Shutdown took %v, want well under a second", elapsed)
	}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.calls) != 0 {
		t.Errorf("panic handler calls = %+v, want none", handler.calls)
	}
}

// TestSequence_ConcurrentPosters tests posting from many goroutines
func TestSequence_ConcurrentPosters(t *testing.T) {
	rt := newStartedRuntime(t, newTestConfig(4))
	ctx := testContext(t)
	seq := NewSequence(rt, "shared")
	count := 0

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 500 {
				_ = seq.Post(func(context.Context) { count++ })
			}
		}()
	}
	wg.Wait()
	_ = seq.WaitIdle(ctx)

	if count != 4000 {
		t.Errorf("count = %d, want 4000", count)
	}
}

func TestSequenceQueue_CompactsAndClears(t *testing.T) {
	q := newSequenceQueue()
	noop := func(context.Context) {}
	for range 200 {
		q.Push(noop)
	}
	for range 190 {
		if _, ok := q.Pop(); !ok {
			t.Fatal("Pop failed")
		}
	}
	if q.Len() != 10 {
		t.Errorf("Len = %d, want 10", q.Len())
	}
	if n := q.Clear(); n != 10 {
		t.Errorf("Clear = %d, want 10", n)
	}
	if _, ok := q.Pop(); ok {
		t.Error("Pop after Clear succeeded")
	}
}
