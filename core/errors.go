package core

import (
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	// ErrStackExhausted is returned when a stack class has reached its
	// configured maximum and the runtime is configured to fail fast.
	ErrStackExhausted = errors.New("fibers: stack pool exhausted")

	// ErrInvalidStackSize is returned when no stack class can hold the
	// requested size.
	ErrInvalidStackSize = errors.New("fibers: no stack class fits the requested size")

	// ErrRuntimeClosed is returned by Spawn after shutdown has begun.
	ErrRuntimeClosed = errors.New("fibers: runtime is shut down")

	// ErrRuntimeNotStarted is returned by Spawn before Start.
	ErrRuntimeNotStarted = errors.New("fibers: runtime is not started")

	// ErrNilTask is returned when a nil TaskFunc is spawned.
	ErrNilTask = errors.New("fibers: nil task")

	// ErrContextMismatch is the panic value of an invalid Switch.
	ErrContextMismatch = errors.New("fibers: mismatched context switch")

	// ErrSyncMisuse matches every *MisuseError.
	ErrSyncMisuse = errors.New("fibers: synchronization misuse")

	// ErrTaskAbandoned is delivered to joiners of tasks that were still
	// suspended when the runtime shut down.
	ErrTaskAbandoned = errors.New("fibers: task abandoned at shutdown")
)

// TaskFailure is the error a joiner receives when the task body returned an
// error or panicked.
type TaskFailure struct {
	Task  TaskID
	Name  string
	Panic any
	Err   error
	Trace []byte
}

func (f *TaskFailure) Error() string {
	if f.Panic != nil {
		return fmt.Sprintf("fibers: task %s (%s) panicked: %v", f.Task, f.Name, f.Panic)
	}
	return fmt.Sprintf("fibers: task %s (%s) failed: %v", f.Task, f.Name, f.Err)
}

func (f *TaskFailure) Unwrap() error {
	if f.Err != nil {
		return f.Err
	}
	if err, ok := f.Panic.(error); ok {
		return err
	}
	return nil
}

// Panicked reports whether the failure came from a panic rather than a
// returned error.
func (f *TaskFailure) Panicked() bool {
	return f.Panic != nil
}

// MisuseError describes an invalid use of a synchronization primitive, such
// as unlocking a mutex that is not held.
type MisuseError struct {
	Op     string
	Reason string
}

func (e *MisuseError) Error() string {
	return fmt.Sprintf("fibers: %s: %s", e.Op, e.Reason)
}

func (e *MisuseError) Is(target error) bool {
	return target == ErrSyncMisuse
}

// MisuseHandler receives misuse reports in builds tagged fibers_release.
type MisuseHandler func(err *MisuseError)

var misuseHandler atomic.Pointer[MisuseHandler]

// SetMisuseHandler installs the handler used for misuse reports in release
// builds. A nil handler restores the default, which logs through
// DefaultLogger.
func SetMisuseHandler(h MisuseHandler) {
	if h == nil {
		misuseHandler.Store(nil)
		return
	}
	misuseHandler.Store(&h)
}

// reportMisuse panics in default builds. Release builds hand the error to the
// misuse handler and the caller leaves the primitive untouched.
func reportMisuse(op, reason string) {
	err := &MisuseError{Op: op, Reason: reason}
	if strictMisuse {
		panic(err)
	}
	if h := misuseHandler.Load(); h != nil {
		(*h)(err)
		return
	}
	NewDefaultLogger().Error("synchronization misuse", F("op", op), F("reason", reason))
}
