package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// TaskFunc is the body of a task. The context it receives identifies the
// task: passing it to Yield, Sleep, Join or a synchronization primitive
// suspends the task instead of blocking the worker thread.
type TaskFunc func(ctx context.Context) (any, error)

// TaskState is the lifecycle state of a task.
type TaskState int32

const (
	TaskCreated TaskState = iota
	TaskRunnable
	TaskRunning
	TaskBlocked
	TaskFinished
)

func (s TaskState) String() string {
	switch s {
	case TaskCreated:
		return "created"
	case TaskRunnable:
		return "runnable"
	case TaskRunning:
		return "running"
	case TaskBlocked:
		return "blocked"
	case TaskFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// TaskID is the stable handle of a task: the arena slot in the low 32 bits
// (offset by one so the zero value is never valid) and the slot generation
// in the high 32 bits.
type TaskID uint64

func makeTaskID(slot, gen uint32) TaskID {
	return TaskID(uint64(gen)<<32 | uint64(slot+1))
}

func (id TaskID) slot() uint32 { return uint32(id) - 1 }
func (id TaskID) gen() uint32  { return uint32(id >> 32) }

// String renders the id as slot.generation.
func (id TaskID) String() string {
	if id == 0 {
		return "task-none"
	}
	return fmt.Sprintf("task-%d.%d", id.slot(), id.gen())
}

// requestKind is what a task hands to its worker when it switches out.
type requestKind uint8

const (
	reqYield requestKind = iota + 1
	reqPark
)

// tcb is the task control block. Outside of its atomics a tcb is touched only
// by whoever currently owns the task: the spawner before it is queued, the
// worker running it, or the waker that moves it back to a queue.
type tcb struct {
	gen   atomic.Uint32
	state atomic.Int32

	id      TaskID
	name    string
	fn      TaskFunc
	class   int
	stack   *Stack
	ctx     *Context
	home    *worker
	taskCtx context.Context
	join    *joinState
	park    func(TaskID) bool
	value   any
	err     error

	spawnedAt time.Time
	startedAt time.Time
	switches  int
}

func (t *tcb) setState(s TaskState) { t.state.Store(int32(s)) }
func (t *tcb) getState() TaskState  { return TaskState(t.state.Load()) }

func (t *tcb) transition(from, to TaskState) bool {
	return t.state.CompareAndSwap(int32(from), int32(to))
}

// reset clears everything but the generation before the slot is reused.
func (t *tcb) reset() {
	t.id = 0
	t.name = ""
	t.fn = nil
	t.class = 0
	t.stack = nil
	t.ctx = nil
	t.home = nil
	t.taskCtx = nil
	t.join = nil
	t.park = nil
	t.value = nil
	t.err = nil
	t.switches = 0
}

// joinState outlives the arena slot: it holds the published result for as
// long as any handle refers to it.
type joinState struct {
	rt     *Runtime
	id     TaskID
	name   string
	cancel context.CancelFunc

	mu       sync.Mutex
	finished bool
	value    any
	err      error
	waiters  waitQueue
	done     chan struct{}
}

func newJoinState(rt *Runtime, id TaskID, name string, cancel context.CancelFunc) *joinState {
	return &joinState{rt: rt, id: id, name: name, cancel: cancel, done: make(chan struct{})}
}

// finish publishes the result once and wakes every joiner.
func (j *joinState) finish(value any, err error) {
	j.mu.Lock()
	if j.finished {
		j.mu.Unlock()
		return
	}
	j.finished = true
	j.value, j.err = value, err
	waiters := j.waiters.drain()
	j.mu.Unlock()

	close(j.done)
	for _, w := range waiters {
		w.wake()
	}
}

func (j *joinState) result() (any, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.value, j.err
}

// TaskHandle refers to a spawned task. The zero TaskHandle refers to no
// task.
type TaskHandle struct {
	js *joinState
}

// ID returns the task's stable id.
func (h TaskHandle) ID() TaskID {
	if h.js == nil {
		return 0
	}
	return h.js.id
}

// Name returns the name the task was spawned with.
func (h TaskHandle) Name() string {
	if h.js == nil {
		return ""
	}
	return h.js.name
}

// Valid reports whether h refers to a task.
func (h TaskHandle) Valid() bool {
	return h.js != nil
}

// Done is closed once the task has finished.
func (h TaskHandle) Done() <-chan struct{} {
	if h.js == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return h.js.done
}

// State returns the current lifecycle state of the task.
func (h TaskHandle) State() TaskState {
	if h.js == nil {
		return TaskFinished
	}
	select {
	case <-h.js.done:
		return TaskFinished
	default:
	}
	if t := h.js.rt.arena.get(h.js.id); t != nil {
		return t.getState()
	}
	return TaskFinished
}

// Join waits for the task to finish and returns its result. A failed task
// yields a *TaskFailure. Called from inside a task with that task's
// context, Join suspends the task; otherwise it blocks the caller until the
// task finishes or ctx is done.
func (h TaskHandle) Join(ctx context.Context) (any, error) {
	if h.js == nil {
		return nil, fmt.Errorf("join: %w", ErrNilTask)
	}
	return join(ctx, h.js)
}

// Cancel cancels the task's context and wakes it if it is sleeping.
// Cancellation is cooperative: a task that never yields or checks its
// context runs to completion.
func (h TaskHandle) Cancel() {
	if h.js == nil {
		return
	}
	h.js.rt.cancelTask(h.js)
}

func (h TaskHandle) String() string {
	return h.ID().String()
}

func join(ctx context.Context, j *joinState) (any, error) {
	if ref := taskFrom(ctx); ref != nil {
		ref.suspend(func(id TaskID) bool {
			j.mu.Lock()
			defer j.mu.Unlock()
			if j.finished {
				return false
			}
			j.waiters.push(&waiter{rt: ref.rt, task: id})
			return true
		})
		return j.result()
	}

	select {
	case <-j.done:
		return j.result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// =============================================================================
// Context helpers
// =============================================================================

type taskKeyType struct{}

var taskKey taskKeyType

// taskRef is stored in the context handed to a task body.
type taskRef struct {
	rt *Runtime
	t  *tcb
	id TaskID
}

// taskFrom returns the task ctx belongs to if that task is the one running
// right now. Any other context, including the context of a finished task,
// selects thread mode.
func taskFrom(ctx context.Context) *taskRef {
	if ctx == nil {
		return nil
	}
	ref, ok := ctx.Value(taskKey).(*taskRef)
	if !ok {
		return nil
	}
	if ref.t.gen.Load() != ref.id.gen() || ref.t.getState() != TaskRunning {
		return nil
	}
	return ref
}

// suspend switches the running task out and has its worker run park once
// the switch completed. park returns false when the task must be resumed
// right away.
func (r *taskRef) suspend(park func(TaskID) bool) {
	r.t.park = park
	r.switchOut(reqPark)
}

func (r *taskRef) switchOut(kind requestKind) {
	t := r.t
	if t.home == nil {
		panic(ErrContextMismatch)
	}
	Switch(t.ctx, t.home.root, kind)
}

// CurrentTask returns the id of the task ctx belongs to, if that task is
// running.
func CurrentTask(ctx context.Context) (TaskID, bool) {
	if ref := taskFrom(ctx); ref != nil {
		return ref.id, true
	}
	return 0, false
}

// InTask reports whether ctx belongs to the running task.
func InTask(ctx context.Context) bool {
	return taskFrom(ctx) != nil
}

// CurrentRuntime returns the runtime running the task ctx belongs to.
func CurrentRuntime(ctx context.Context) *Runtime {
	if ref := taskFrom(ctx); ref != nil {
		return ref.rt
	}
	return nil
}
