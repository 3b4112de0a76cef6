package core

import (
	"errors"
	"math/rand/v2"
	"runtime"
	"sync/atomic"
	"time"
)

// injectorCheckInterval makes a busy worker look at its inbox and the
// injector now and then, so tasks that keep yielding or respawning locally
// cannot starve woken or injected tasks.
const injectorCheckInterval = 61

// worker runs tasks on one goroutine, switching into each task's stack and
// back.
type worker struct {
	id     int
	rt     *Runtime
	local  *localQueue
	inbox  *injector
	root   *Context
	wakeup chan struct{}
	rng    *rand.Rand
	buf    []TaskID
	tick   uint32

	// guarded by rt.idleMu
	listed bool

	parked   atomic.Bool
	threadID atomic.Int64
	executed atomic.Int64
	stolen   atomic.Int64
	parks    atomic.Int64
	lastRun  atomic.Int64
}

func newWorker(rt *Runtime, id int) *worker {
	return &worker{
		id:     id,
		rt:     rt,
		local:  newLocalQueue(rt.cfg.LocalQueueCapacity),
		inbox:  newInjector(),
		root:   NewRootContext(),
		wakeup: make(chan struct{}, 1),
		rng:    rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(id))),
		buf:    make([]TaskID, 0, rt.cfg.LocalQueueCapacity),
	}
}

func (w *worker) run() {
	rt := w.rt
	defer rt.wg.Done()

	if rt.cfg.LockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		w.threadID.Store(int64(threadID()))
		if rt.cfg.PinWorkers {
			cpu, err := pinThread(w.id)
			if err != nil {
				rt.logger.Warn("worker pinning failed", F("worker", w.id), F("error", err))
			} else {
				rt.logger.Debug("worker pinned", F("worker", w.id), F("cpu", cpu))
			}
		}
	}
	rt.logger.Debug("worker started", F("worker", w.id), F("thread", w.threadID.Load()))

	for !rt.stopping() {
		id, ok := w.findRunnable()
		if !ok {
			if !w.park() {
				break
			}
			continue
		}
		w.execute(id)
	}
	rt.logger.Debug("worker stopped", F("worker", w.id), F("executed", w.executed.Load()))
}

// findRunnable looks for work in order: local queue, own inbox, peers, then
// the injector. Every injectorCheckInterval ticks the inbox and the injector
// go first.
func (w *worker) findRunnable() (TaskID, bool) {
	rt := w.rt
	w.tick++
	if w.tick%injectorCheckInterval == 0 {
		if id, ok := w.inbox.Pop(); ok {
			return id, true
		}
		if id, ok := rt.injector.Pop(); ok {
			return id, true
		}
	}
	if id, ok := w.local.PopHead(); ok {
		return id, true
	}
	if w.inbox.Len() > 0 {
		w.drainInbox()
		if id, ok := w.local.PopHead(); ok {
			return id, true
		}
	}
	if id, ok := w.steal(); ok {
		return id, true
	}
	return w.takeInjected()
}

func (w *worker) drainInbox() {
	room := w.local.Cap() - w.local.Len()
	if room <= 0 {
		return
	}
	batch := w.inbox.PopBatch(w.buf[:0], room)
	for _, id := range batch {
		w.pushLocal(id)
	}
}

// steal tries up to StealRetries random peers, taking the oldest entry of
// their local queue or, failing that, of their inbox.
func (w *worker) steal() (TaskID, bool) {
	rt := w.rt
	n := len(rt.workers)
	if n < 2 {
		return 0, false
	}
	for range rt.cfg.StealRetries {
		v := rt.workers[w.rng.IntN(n)]
		if v == w {
			continue
		}
		id, ok := v.local.Steal()
		if !ok {
			id, ok = v.inbox.Pop()
		}
		if ok {
			w.stolen.Add(1)
			rt.steals.Add(1)
			rt.metrics.RecordSteal(rt.name, w.id)
			return id, true
		}
	}
	return 0, false
}

// takeInjected moves a batch from the injector to the local queue and
// returns the oldest task of the batch.
func (w *worker) takeInjected() (TaskID, bool) {
	rt := w.rt
	batch := rt.injector.PopBatch(w.buf[:0], rt.cfg.InjectorBatch)
	if len(batch) == 0 {
		return 0, false
	}
	// Newest first so PopHead hands them out oldest first.
	for i := len(batch) - 1; i > 0; i-- {
		w.pushLocal(batch[i])
	}
	rt.metrics.RecordQueueDepth(rt.name, rt.injector.Len())
	if len(batch) > 1 {
		rt.wakeOne()
	}
	return batch[0], true
}

// pushLocal queues id on the local queue, spilling half of a full queue to
// the injector.
func (w *worker) pushLocal(id TaskID) {
	if w.local.PushHead(id) {
		return
	}
	spill := make([]TaskID, 0, w.local.Cap()/2+1)
	for range w.local.Cap() / 2 {
		sid, ok := w.local.Steal()
		if !ok {
			break
		}
		spill = append(spill, sid)
	}
	if !w.local.PushHead(id) {
		spill = append(spill, id)
	}
	w.rt.injector.PushBatch(spill)
	w.rt.wakeOne()
}

// pushYielded queues id behind everything already queued locally.
func (w *worker) pushYielded(id TaskID) {
	if w.local.PushTail(id) {
		return
	}
	w.rt.injector.Push(id)
}

// hasWork reports whether any queue this worker could take from is
// non-empty.
func (w *worker) hasWork() bool {
	rt := w.rt
	if w.local.Len() > 0 || w.inbox.Len() > 0 || rt.injector.Len() > 0 {
		return true
	}
	for _, v := range rt.workers {
		if v != w && (v.local.Len() > 0 || v.inbox.Len() > 0) {
			return true
		}
	}
	return false
}

// park blocks until this worker is woken. It returns false when the runtime
// is stopping.
func (w *worker) park() bool {
	rt := w.rt
	rt.addIdle(w)
	w.parked.Store(true)

	if w.hasWork() || rt.stopping() {
		w.parked.Store(false)
		rt.removeIdle(w)
		return !rt.stopping()
	}

	w.parks.Add(1)
	rt.metrics.RecordWorkerPark(rt.name, w.id)
	select {
	case <-w.wakeup:
	case <-rt.stopCh:
	}
	w.parked.Store(false)
	rt.removeIdle(w)
	return !rt.stopping()
}

func (w *worker) unpark() {
	select {
	case w.wakeup <- struct{}{}:
	default:
	}
}

// execute runs id until it completes, yields or blocks.
func (w *worker) execute(id TaskID) {
	rt := w.rt
	t := rt.arena.get(id)
	if t == nil || !t.transition(TaskRunnable, TaskRunning) {
		rt.logger.Warn("dropping stale task", F("task", id), F("worker", w.id))
		return
	}
	if t.stack == nil && !w.bindStack(t, id) {
		return
	}

	t.home = w
	now := time.Now()
	if t.startedAt.IsZero() {
		t.startedAt = now
	}
	t.switches++
	w.executed.Add(1)
	w.lastRun.Store(now.UnixNano())

	out := Switch(w.root, t.ctx, nil)

	switch v := out.(type) {
	case Exit:
		w.complete(t, v)
	case requestKind:
		switch v {
		case reqYield:
			t.setState(TaskRunnable)
			w.pushYielded(id)
		case reqPark:
			park := t.park
			t.park = nil
			t.setState(TaskBlocked)
			if !park(id) && t.transition(TaskBlocked, TaskRunnable) {
				w.pushLocal(id)
			}
		}
	default:
		panic(ErrContextMismatch)
	}
}

// bindStack gives t its stack on first run. It returns false when the task
// cannot run now: it either waits for a stack or has been failed.
func (w *worker) bindStack(t *tcb, id TaskID) bool {
	rt := w.rt
	class := t.class
	var s *Stack
	var err error
	if rt.cfg.Exhaustion == ExhaustionWait {
		// Blocked before queueing as a waiter, so a release racing with us
		// finds it wakeable.
		t.setState(TaskBlocked)
		s, err = rt.pool.AcquireOrWait(class, id)
		if err == nil {
			t.setState(TaskRunning)
		}
	} else {
		s, err = rt.pool.Acquire(class)
	}

	switch {
	case err == nil:
		t.stack = s
		t.ctx = s.Bind(rt.entry(t))
		return true
	case errors.Is(err, ErrStackExhausted):
		rt.metrics.RecordStackExhausted(rt.name, rt.pool.ClassSize(class))
		if rt.cfg.Exhaustion == ExhaustionWait {
			rt.logger.Debug("task waiting for stack", F("task", id))
			return false
		}
		rt.logger.Warn("stack pool exhausted", F("task", id))
	}
	t.setState(TaskRunning)
	t.err = err
	w.complete(t, Exit{})
	return false
}

// complete publishes the outcome of t and retires it.
func (w *worker) complete(t *tcb, exit Exit) {
	rt := w.rt
	id := t.id
	name := resolveTaskName(t.fn, t.name)
	finishedAt := time.Now()

	var value any
	var err error
	panicked := false
	switch {
	case exit.Panic == errStackStopped:
		err = ErrTaskAbandoned
	case exit.Panic != nil:
		panicked = true
		rt.panicHandler.HandlePanic(t.taskCtx, rt.name, w.id, exit.Panic, exit.Trace)
		err = &TaskFailure{Task: id, Name: name, Panic: exit.Panic, Trace: exit.Trace}
	case t.err != nil:
		err = &TaskFailure{Task: id, Name: name, Err: t.err}
	default:
		value = t.value
	}

	t.setState(TaskFinished)
	js := t.join
	js.cancel()

	var waiter TaskID
	var hasWaiter bool
	if t.stack != nil {
		waiter, hasWaiter = rt.pool.Release(t.stack)
	}

	startedAt := t.startedAt
	if startedAt.IsZero() {
		startedAt = finishedAt
	}
	rt.history.Add(TaskExecutionRecord{
		TaskID:      id,
		Name:        name,
		RuntimeName: rt.name,
		WorkerID:    w.id,
		SpawnedAt:   t.spawnedAt,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
		Duration:    finishedAt.Sub(startedAt),
		Switches:    t.switches,
		Failed:      err != nil,
		Panicked:    panicked,
	})
	rt.metrics.RecordTaskDuration(rt.name, finishedAt.Sub(startedAt))
	if err != nil {
		rt.failed.Add(1)
		rt.metrics.RecordTaskFailure(rt.name, panicked)
		rt.logger.Debug("task failed", F("task", id), F("name", name), F("error", err))
	}
	rt.finished.Add(1)

	rt.arena.release(t)
	js.finish(value, err)
	if hasWaiter {
		rt.wake(waiter)
	}
}
