package core

import (
	"errors"
	"iter"
	"runtime/debug"
)

// Entry is the function a fresh Context starts in. first is the value passed
// to the Switch that resumed it for the first time. Its return value travels
// back to the resumer inside an Exit.
type Entry func(ctx *Context, first any) any

// Exit is the completion signal a Switch returns once the entry of the
// resumed context has returned or panicked.
type Exit struct {
	Value any
	Panic any
	Trace []byte
}

// Context is a suspended execution context. A root context belongs to a
// worker; every other context is bound to a pooled Stack.
type Context struct {
	stack *Stack
	root  bool
}

// NewRootContext returns the context a worker switches from.
func NewRootContext() *Context {
	return &Context{root: true}
}

// IsRoot reports whether c is a worker root context.
func (c *Context) IsRoot() bool {
	return c != nil && c.root
}

// Switch suspends from and resumes to, handing v across. It returns the value
// the next switch back into from carries.
//
// Only two directions exist: root to task (resume) and task to root
// (suspend). The resume side receives an Exit once the task's entry
// finishes. Any other pairing, a stale task context, or resuming a context
// that is already running panics with ErrContextMismatch.
func Switch(from, to *Context, v any) any {
	switch {
	case from.IsRoot() && to != nil && to.stack != nil:
		if to.stack.bound != to || to.stack.running {
			panic(ErrContextMismatch)
		}
		return to.stack.resume(v)
	case from != nil && from.stack != nil && to.IsRoot():
		if from.stack.bound != from || !from.stack.running {
			panic(ErrContextMismatch)
		}
		return from.stack.suspend(v)
	default:
		panic(ErrContextMismatch)
	}
}

// errStackStopped unwinds a context whose stack was closed while it was
// suspended.
var errStackStopped = errors.New("fibers: stack stopped")

// IsUnwind reports whether a recovered panic value is the unwinding of a
// task abandoned at shutdown. Code that recovers panics inside tasks must
// re-panic such values.
func IsUnwind(r any) bool {
	return r == errStackStopped
}

// stackReady is yielded once by a new carrier after it pre-grew its stack.
type stackReady struct{}

// Stack is a reusable execution stack. It is backed by a carrier coroutine
// that runs one bound entry after another, so the stack memory it grew is
// kept between tasks.
type Stack struct {
	id    uint64
	class int
	size  int

	next  func() (any, bool)
	stop  func()
	yield func(any) bool

	in      any
	entry   Entry
	bound   *Context
	running bool
	stopped bool
}

func newStack(id uint64, class, size int) *Stack {
	s := &Stack{id: id, class: class, size: size}
	s.next, s.stop = iter.Pull(s.carry)
	// Runs the carrier up to its first suspension so the stack is grown
	// before any task lands on it.
	s.next()
	return s
}

// ID returns the pool-unique id of the stack.
func (s *Stack) ID() uint64 { return s.id }

// Size returns the size class of the stack in bytes.
func (s *Stack) Size() int { return s.size }

// Bind prepares a fresh context that starts in entry on its first resume.
func (s *Stack) Bind(entry Entry) *Context {
	if s.bound != nil {
		panic(ErrContextMismatch)
	}
	ctx := &Context{stack: s}
	s.entry = entry
	s.bound = ctx
	return ctx
}

func (s *Stack) unbind() {
	s.bound = nil
	s.entry = nil
	s.in = nil
}

func (s *Stack) carry(yield func(any) bool) {
	s.yield = yield
	growStack(s.size)
	if !yield(stackReady{}) {
		return
	}
	for {
		out := s.invoke()
		if s.stopped || !yield(out) {
			return
		}
	}
}

func (s *Stack) invoke() (exit Exit) {
	defer func() {
		if r := recover(); r != nil {
			exit = Exit{Panic: r, Trace: debug.Stack()}
		}
		s.running = false
	}()
	entry, ctx := s.entry, s.bound
	if entry == nil {
		return Exit{}
	}
	return Exit{Value: entry(ctx, s.in)}
}

func (s *Stack) resume(v any) any {
	s.in = v
	s.running = true
	out, ok := s.next()
	if !ok {
		s.running = false
		s.stopped = true
		return Exit{Panic: errStackStopped}
	}
	return out
}

func (s *Stack) suspend(v any) any {
	s.running = false
	if !s.yield(v) {
		s.stopped = true
		panic(errStackStopped)
	}
	s.running = true
	return s.in
}

// close stops the carrier. A suspended entry unwinds with errStackStopped so
// its deferred calls run.
func (s *Stack) close() {
	s.stopped = true
	s.stop()
}

// growStack touches size bytes of stack so the carrier's stack is grown once
// up front.
//
//go:noinline
func growStack(size int) byte {
	var frame [1024]byte
	frame[size%len(frame)] = byte(size)
	if size <= len(frame) {
		return frame[0]
	}
	return growStack(size-len(frame)) + frame[size%len(frame)]
}
