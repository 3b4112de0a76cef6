package core

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type runtimeState int32

const (
	stateCreated runtimeState = iota
	stateRunning
	stateDraining
	stateStopped
)

// Runtime schedules tasks onto a fixed set of workers.
type Runtime struct {
	id     string
	name   string
	cfg    *RuntimeConfig
	logger Logger

	panicHandler        PanicHandler
	metrics             Metrics
	rejectedTaskHandler RejectedTaskHandler

	arena    *arena
	pool     *StackPool
	injector *injector
	workers  []*worker
	sleeps   *sleepManager
	history  *executionHistory

	defaultClass int

	baseCtx    context.Context
	baseCancel context.CancelFunc

	idleMu  sync.Mutex
	idle    []*worker
	nparked atomic.Int32

	lifecycleMu sync.Mutex
	state       atomic.Int32
	stopCh      chan struct{}
	wg          sync.WaitGroup
	inflight    atomic.Int64

	spawned  atomic.Int64
	finished atomic.Int64
	failed   atomic.Int64
	rejected atomic.Int64
	steals   atomic.Int64
}

// NewRuntime validates cfg and builds a runtime. Stacks are pre-warmed here;
// workers start with Start. A nil cfg uses DefaultRuntimeConfig.
func NewRuntime(cfg *RuntimeConfig) (*Runtime, error) {
	if cfg == nil {
		cfg = DefaultRuntimeConfig()
	}
	c := *cfg
	c.StackClasses = append([]StackClass(nil), cfg.StackClasses...)
	if err := c.Validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := WithFields(c.Logger, F("runtime", c.Name))

	pool, err := NewStackPool(c.StackClasses, logger)
	if err != nil {
		return nil, err
	}
	defaultClass, err := pool.ClassFor(c.DefaultStackSize)
	if err != nil {
		pool.Close()
		return nil, err
	}

	rt := &Runtime{
		id:                  id,
		name:                c.Name,
		cfg:                 &c,
		logger:              logger,
		panicHandler:        c.PanicHandler,
		metrics:             c.Metrics,
		rejectedTaskHandler: c.RejectedTaskHandler,
		arena:               newArena(),
		pool:                pool,
		injector:            newInjector(),
		history:             newExecutionHistory(c.HistoryCapacity),
		defaultClass:        defaultClass,
		stopCh:              make(chan struct{}),
	}
	rt.baseCtx, rt.baseCancel = context.WithCancel(context.Background())
	rt.workers = make([]*worker, c.Workers)
	for i := range rt.workers {
		rt.workers[i] = newWorker(rt, i)
	}
	rt.sleeps = newSleepManager(rt.wake)
	return rt, nil
}

// ID returns the unique instance id of the runtime.
func (rt *Runtime) ID() string { return rt.id }

// Name returns the configured name.
func (rt *Runtime) Name() string { return rt.name }

// WorkerCount returns the number of workers.
func (rt *Runtime) WorkerCount() int { return len(rt.workers) }

// Config returns a copy of the effective configuration.
func (rt *Runtime) Config() RuntimeConfig { return *rt.cfg }

// IsRunning reports whether workers are running and accepting tasks.
func (rt *Runtime) IsRunning() bool {
	return runtimeState(rt.state.Load()) == stateRunning
}

func (rt *Runtime) stopping() bool {
	select {
	case <-rt.stopCh:
		return true
	default:
		return false
	}
}

// Start launches the workers. Tasks spawned before Start run once it is
// called. Calling Start on a running runtime does nothing.
func (rt *Runtime) Start() error {
	rt.lifecycleMu.Lock()
	defer rt.lifecycleMu.Unlock()

	switch runtimeState(rt.state.Load()) {
	case stateRunning:
		return nil
	case stateDraining, stateStopped:
		return ErrRuntimeClosed
	}

	rt.state.Store(int32(stateRunning))
	for _, w := range rt.workers {
		rt.wg.Add(1)
		go w.run()
	}
	rt.logger.Info("runtime started", F("id", rt.id), F("workers", len(rt.workers)))
	return nil
}

// =============================================================================
// Spawning
// =============================================================================

type spawnOptions struct {
	name      string
	stackSize int
}

// SpawnOption configures a single Spawn.
type SpawnOption func(*spawnOptions)

// WithName names the task in logs, history and failures.
func WithName(name string) SpawnOption {
	return func(o *spawnOptions) { o.name = name }
}

// WithStackSize selects the smallest stack class holding size bytes.
func WithStackSize(size int) SpawnOption {
	return func(o *spawnOptions) { o.stackSize = size }
}

// Spawn creates a task running fn. Called with the context of a task running
// on rt, the new task goes to the front of that worker's local queue;
// otherwise it goes to the global injector.
func (rt *Runtime) Spawn(ctx context.Context, fn TaskFunc, opts ...SpawnOption) (TaskHandle, error) {
	if fn == nil {
		return TaskHandle{}, ErrNilTask
	}

	rt.inflight.Add(1)
	defer rt.inflight.Add(-1)

	ref := taskFrom(ctx)
	local := ref != nil && ref.rt == rt
	switch runtimeState(rt.state.Load()) {
	case stateDraining:
		if !local {
			return TaskHandle{}, rt.reject(ErrRuntimeClosed, "shutting down")
		}
	case stateStopped:
		return TaskHandle{}, rt.reject(ErrRuntimeClosed, "shut down")
	}

	var o spawnOptions
	for _, opt := range opts {
		opt(&o)
	}
	class := rt.defaultClass
	if o.stackSize > 0 {
		c, err := rt.pool.ClassFor(o.stackSize)
		if err != nil {
			return TaskHandle{}, rt.reject(err, "invalid stack size")
		}
		class = c
	}
	if rt.cfg.Exhaustion == ExhaustionFail && rt.pool.Exhausted(class) {
		rt.metrics.RecordStackExhausted(rt.name, rt.pool.ClassSize(class))
		return TaskHandle{}, rt.reject(ErrStackExhausted, "stack pool exhausted")
	}

	t, id, ok := rt.arena.alloc()
	if !ok {
		return TaskHandle{}, rt.reject(errors.New("fibers: task arena full"), "arena full")
	}

	taskCtx, cancel := context.WithCancel(rt.baseCtx)
	t.name = o.name
	t.fn = fn
	t.class = class
	t.spawnedAt = time.Now()
	t.taskCtx = context.WithValue(taskCtx, taskKey, &taskRef{rt: rt, t: t, id: id})
	t.join = newJoinState(rt, id, o.name, cancel)
	h := TaskHandle{js: t.join}

	rt.spawned.Add(1)
	t.setState(TaskRunnable)
	if local {
		ref.t.home.pushLocal(id)
	} else {
		rt.injector.Push(id)
	}
	rt.wakeOne()
	return h, nil
}

func (rt *Runtime) reject(err error, reason string) error {
	rt.rejected.Add(1)
	rt.rejectedTaskHandler.HandleRejectedTask(rt.name, reason)
	rt.metrics.RecordTaskRejected(rt.name, reason)
	return err
}

// entry is the stack entry of t: it runs the body and leaves the outcome on
// the tcb for the worker to publish.
func (rt *Runtime) entry(t *tcb) Entry {
	return func(*Context, any) any {
		t.value, t.err = t.fn(t.taskCtx)
		return nil
	}
}

// =============================================================================
// Waking and parking
// =============================================================================

// wake makes a blocked task runnable again on its home worker.
func (rt *Runtime) wake(id TaskID) {
	t := rt.arena.get(id)
	if t == nil || !t.transition(TaskBlocked, TaskRunnable) {
		return
	}
	w := t.home
	if w == nil {
		rt.injector.Push(id)
		rt.wakeOne()
		return
	}
	w.inbox.Push(id)
	if w.parked.Load() {
		w.unpark()
	} else {
		rt.wakeOne()
	}
}

// wakeOne unparks one idle worker, if any.
func (rt *Runtime) wakeOne() {
	if rt.nparked.Load() == 0 {
		return
	}
	rt.idleMu.Lock()
	n := len(rt.idle)
	if n == 0 {
		rt.idleMu.Unlock()
		return
	}
	w := rt.idle[n-1]
	rt.idle[n-1] = nil
	rt.idle = rt.idle[:n-1]
	w.listed = false
	rt.nparked.Add(-1)
	rt.idleMu.Unlock()

	w.unpark()
}

func (rt *Runtime) addIdle(w *worker) {
	rt.idleMu.Lock()
	if !w.listed {
		w.listed = true
		rt.idle = append(rt.idle, w)
		rt.nparked.Add(1)
	}
	rt.idleMu.Unlock()
}

func (rt *Runtime) removeIdle(w *worker) {
	rt.idleMu.Lock()
	defer rt.idleMu.Unlock()
	if !w.listed {
		return
	}
	for i, v := range rt.idle {
		if v == w {
			last := len(rt.idle) - 1
			rt.idle[i] = rt.idle[last]
			rt.idle[last] = nil
			rt.idle = rt.idle[:last]
			break
		}
	}
	w.listed = false
	rt.nparked.Add(-1)
}

// cancelTask cancels the task's context and cuts a pending sleep short.
func (rt *Runtime) cancelTask(js *joinState) {
	js.cancel()
	if rt.sleeps.Remove(js.id) {
		rt.wake(js.id)
	}
}

// =============================================================================
// Task-facing operations
// =============================================================================

// Yield gives up the worker so other runnable tasks can run; the task is
// queued behind them. Outside a task it yields the goroutine. It returns
// ctx.Err() once resumed.
func Yield(ctx context.Context) error {
	if ref := taskFrom(ctx); ref != nil {
		ref.switchOut(reqYield)
		return ctx.Err()
	}
	runtime.Gosched()
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

// Sleep suspends the task for at least d, or blocks the goroutine when ctx
// is not a task context. It returns early with ctx.Err() if ctx is done; for
// a task that means the task was canceled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return Yield(ctx)
	}
	ref := taskFrom(ctx)
	if ref == nil {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	wakeAt := time.Now().Add(d)
	sleeps := ref.rt.sleeps
	ref.suspend(func(id TaskID) bool {
		sleeps.Add(id, wakeAt)
		if ctx.Err() != nil && sleeps.Remove(id) {
			return false
		}
		return true
	})
	return ctx.Err()
}

// Join waits for the task behind h; see TaskHandle.Join.
func Join(ctx context.Context, h TaskHandle) (any, error) {
	return h.Join(ctx)
}

// IsCanceled reports whether ctx is done. Long-running task bodies poll it
// between units of work.
func IsCanceled(ctx context.Context) bool {
	return ctx != nil && ctx.Err() != nil
}

// =============================================================================
// Shutdown
// =============================================================================

// Shutdown stops the runtime without waiting for tasks. Workers finish the
// switch they are in and exit; tasks that have not finished are abandoned:
// suspended ones are unwound so their deferred calls run, and every joiner
// receives ErrTaskAbandoned. It implements the Shutdown() error contract of
// github.com/samber/do.
func (rt *Runtime) Shutdown() error {
	rt.lifecycleMu.Lock()
	defer rt.lifecycleMu.Unlock()

	if runtimeState(rt.state.Load()) == stateStopped {
		return nil
	}
	rt.state.Store(int32(stateStopped))
	close(rt.stopCh)
	rt.wg.Wait()
	for rt.inflight.Load() > 0 {
		runtime.Gosched()
	}

	rt.sleeps.Stop()
	abandoned := rt.abandonAll()
	rt.pool.Close()
	rt.baseCancel()

	rt.logger.Info("runtime stopped",
		F("spawned", rt.spawned.Load()),
		F("finished", rt.finished.Load()),
		F("abandoned", abandoned))
	return nil
}

// ShutdownGraceful stops accepting tasks from outside the runtime and waits
// for every live task to finish, then shuts down. Tasks may still spawn
// children while draining. It returns an error if timeout passes first; the
// remaining tasks are abandoned.
func (rt *Runtime) ShutdownGraceful(timeout time.Duration) error {
	rt.lifecycleMu.Lock()
	switch runtimeState(rt.state.Load()) {
	case stateStopped:
		rt.lifecycleMu.Unlock()
		return nil
	case stateCreated:
		rt.lifecycleMu.Unlock()
		return rt.Shutdown()
	}
	rt.state.Store(int32(stateDraining))
	rt.lifecycleMu.Unlock()
	rt.logger.Info("runtime draining", F("live", rt.arena.Live()))

	deadline := time.After(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if rt.inflight.Load() == 0 && rt.arena.Live() == 0 {
			return rt.Shutdown()
		}
		select {
		case <-deadline:
			live := rt.arena.Live()
			_ = rt.Shutdown()
			return fmt.Errorf("shutdown graceful timeout after %v, abandoned %d tasks", timeout, live)
		case <-ticker.C:
		}
	}
}

// abandonAll finishes every live task with ErrTaskAbandoned. Workers must
// have exited.
func (rt *Runtime) abandonAll() int {
	rt.injector.Clear()
	for _, w := range rt.workers {
		w.inbox.Clear()
		for {
			if _, ok := w.local.PopHead(); !ok {
				break
			}
		}
	}

	rt.arena.mu.Lock()
	n := rt.arena.next
	rt.arena.mu.Unlock()

	abandoned := 0
	for i := range n {
		t := rt.arena.slot(i)
		if t == nil || t.id == 0 || t.getState() == TaskFinished {
			continue
		}
		abandoned++
		js := t.join
		js.cancel()
		t.setState(TaskFinished)
		if t.stack != nil {
			rt.pool.discard(t.stack)
		}
		rt.arena.release(t)
		js.finish(nil, ErrTaskAbandoned)
	}
	return abandoned
}

// =============================================================================
// Observability
// =============================================================================

// Stats returns a snapshot of the runtime.
func (rt *Runtime) Stats() RuntimeStats {
	state := runtimeState(rt.state.Load())
	return RuntimeStats{
		ID:       rt.id,
		Name:     rt.name,
		Workers:  len(rt.workers),
		Running:  state == stateRunning,
		Live:     rt.arena.Live(),
		Injected: rt.injector.Len(),
		Parked:   int(rt.nparked.Load()),
		Sleeping: rt.sleeps.Len(),
		Spawned:  rt.spawned.Load(),
		Finished: rt.finished.Load(),
		Failed:   rt.failed.Load(),
		Rejected: rt.rejected.Load(),
		Steals:   rt.steals.Load(),
		Stacks:   rt.pool.Stats(),
	}
}

// WorkerStats returns a snapshot of every worker.
func (rt *Runtime) WorkerStats() []WorkerStats {
	out := make([]WorkerStats, 0, len(rt.workers))
	for _, w := range rt.workers {
		var last time.Time
		if ns := w.lastRun.Load(); ns != 0 {
			last = time.Unix(0, ns)
		}
		out = append(out, WorkerStats{
			ID:         w.id,
			ThreadID:   int(w.threadID.Load()),
			Queued:     w.local.Len(),
			Inbox:      w.inbox.Len(),
			Parked:     w.parked.Load(),
			Executed:   w.executed.Load(),
			Stolen:     w.stolen.Load(),
			Parks:      w.parks.Load(),
			LastTaskAt: last,
		})
	}
	return out
}

// StackPoolStats returns a snapshot of the stack pool.
func (rt *Runtime) StackPoolStats() StackPoolStats {
	return rt.pool.Stats()
}

// RecentTasks returns up to limit finished tasks, newest first.
func (rt *Runtime) RecentTasks(limit int) []TaskExecutionRecord {
	return rt.history.Recent(limit)
}

// LastTask returns the most recently finished task.
func (rt *Runtime) LastTask() (TaskExecutionRecord, bool) {
	return rt.history.Last()
}
