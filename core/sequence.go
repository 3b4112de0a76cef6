package core

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// SequenceFunc is a unit of work posted to a Sequence. Its context is the
// context of the task running the sequence, so it may suspend on Yield,
// Sleep and the synchronization primitives.
type SequenceFunc func(ctx context.Context)

// ErrSequenceClosed is returned when posting to a shut down Sequence.
var ErrSequenceClosed = errors.New("fibers: sequence closed")

// Sequence runs posted work one item at a time in FIFO order on a
// Runtime. Items of one Sequence never run concurrently, so state owned by
// the sequence needs no locking. A single drain task runs while the queue
// is non-empty and yields to the scheduler between items.
type Sequence struct {
	rt    *Runtime
	name  string
	queue *sequenceQueue

	mu        sync.Mutex
	isRunning bool

	activeRunners atomic.Int32 // guard for the one-drain-task assertion
	closed        atomic.Bool
	executed      atomic.Int64
	panics        atomic.Int64
}

// NewSequence returns a sequence running on rt.
func NewSequence(rt *Runtime, name string) *Sequence {
	if name == "" {
		name = "sequence"
	}
	return &Sequence{rt: rt, name: name, queue: newSequenceQueue()}
}

// Name returns the sequence name.
func (s *Sequence) Name() string { return s.name }

type sequenceKeyType struct{}

var sequenceKey sequenceKeyType

// CurrentSequence returns the sequence whose item is running with ctx.
func CurrentSequence(ctx context.Context) *Sequence {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(sequenceKey).(*Sequence)
	return s
}

// Post queues fn behind everything already posted.
func (s *Sequence) Post(fn SequenceFunc) error {
	if fn == nil {
		return ErrNilTask
	}
	if s.closed.Load() {
		return ErrSequenceClosed
	}
	s.queue.Push(fn)
	return s.scheduleRunLoop()
}

// scheduleRunLoop spawns the drain task unless it is already running.
func (s *Sequence) scheduleRunLoop() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	if _, err := s.rt.Spawn(context.Background(), s.runLoop, WithName(s.name)); err != nil {
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return fmt.Errorf("sequence %s: %w", s.name, err)
	}
	return nil
}

func (s *Sequence) runLoop(ctx context.Context) (any, error) {
	if n := s.activeRunners.Add(1); n > 1 {
		panic(fmt.Sprintf("Sequence: concurrent runLoop detected (count=%d)", n))
	}

	runCtx := context.WithValue(ctx, sequenceKey, s)
	for {
		fn, ok := s.queue.Pop()
		if !ok {
			s.mu.Lock()
			if s.queue.Len() == 0 {
				// Leave before isRunning drops so the next drain task
				// never overlaps this one.
				s.activeRunners.Add(-1)
				s.isRunning = false
				s.mu.Unlock()
				return nil, nil
			}
			s.mu.Unlock()
			continue
		}

		s.runItem(runCtx, fn)
		_ = Yield(ctx)
	}
}

func (s *Sequence) runItem(ctx context.Context, fn SequenceFunc) {
	defer func() {
		if r := recover(); r != nil {
			if IsUnwind(r) {
				panic(r)
			}
			s.panics.Add(1)
			s.rt.panicHandler.HandlePanic(ctx, s.rt.name, -1, r, debug.Stack())
		}
	}()
	fn(ctx)
	s.executed.Add(1)
}

// PostDelayed posts fn once delay has passed.
func (s *Sequence) PostDelayed(fn SequenceFunc, delay time.Duration) error {
	if fn == nil {
		return ErrNilTask
	}
	if s.closed.Load() {
		return ErrSequenceClosed
	}
	_, err := s.rt.Spawn(context.Background(), func(ctx context.Context) (any, error) {
		if err := Sleep(ctx, delay); err != nil {
			return nil, err
		}
		if s.closed.Load() {
			return nil, nil
		}
		return nil, s.Post(fn)
	}, WithName(s.name+":delayed"))
	return err
}

// RepeatingHandle controls a repeating post.
type RepeatingHandle struct {
	stopped atomic.Bool
	task    TaskHandle
}

// Stop ends the repetition. An item already posted still runs.
func (h *RepeatingHandle) Stop() {
	if h.stopped.CompareAndSwap(false, true) {
		h.task.Cancel()
	}
}

// IsStopped reports whether Stop has been called.
func (h *RepeatingHandle) IsStopped() bool { return h.stopped.Load() }

// PostRepeating posts fn after initialDelay and then every interval until
// the handle is stopped or the sequence shuts down.
func (s *Sequence) PostRepeating(fn SequenceFunc, initialDelay, interval time.Duration) (*RepeatingHandle, error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	if interval <= 0 {
		return nil, fmt.Errorf("sequence %s: repeating interval must be positive", s.name)
	}
	if s.closed.Load() {
		return nil, ErrSequenceClosed
	}

	h := &RepeatingHandle{}
	task, err := s.rt.Spawn(context.Background(), func(ctx context.Context) (any, error) {
		delay := initialDelay
		for {
			if err := Sleep(ctx, delay); err != nil {
				return nil, nil
			}
			if h.IsStopped() || s.closed.Load() {
				return nil, nil
			}
			if err := s.Post(fn); err != nil {
				return nil, nil
			}
			delay = interval
		}
	}, WithName(s.name+":repeating"))
	if err != nil {
		return nil, err
	}
	h.task = task
	return h, nil
}

// WaitIdle waits until everything posted before the call has run. From a
// task it suspends the task; otherwise it blocks until done or ctx ends.
// Calling it from an item of s deadlocks.
func (s *Sequence) WaitIdle(ctx context.Context) error {
	if s.closed.Load() {
		return ErrSequenceClosed
	}
	js := newJoinState(s.rt, 0, s.name+":idle", func() {})
	if err := s.Post(func(context.Context) { js.finish(nil, nil) }); err != nil {
		return err
	}
	_, err := join(ctx, js)
	return err
}

// Pending returns the number of queued items.
func (s *Sequence) Pending() int { return s.queue.Len() }

// Executed returns the number of items that ran to completion.
func (s *Sequence) Executed() int64 { return s.executed.Load() }

// Panics returns the number of items that panicked.
func (s *Sequence) Panics() int64 { return s.panics.Load() }

// Shutdown stops accepting work and drops queued items. An item already
// running finishes; repeating posts stop at their next tick.
func (s *Sequence) Shutdown() {
	s.closed.Store(true)
	if n := s.queue.Clear(); n > 0 {
		s.rt.logger.Debug("sequence dropped pending items", F("sequence", s.name), F("dropped", n))
	}
}

// IsClosed reports whether Shutdown has been called.
func (s *Sequence) IsClosed() bool { return s.closed.Load() }
