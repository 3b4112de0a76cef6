package capability

import (
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/Swind/go-fibers/core"
)

// Result is the uniform return value of calls that cross the capability
// boundary: a value or an error, never both.
type Result[T any] struct {
	value T
	err   error
}

// Ok wraps a value.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Fail wraps an error. A nil err is replaced by a generic failure so a
// failed Result is never mistaken for success.
func Fail[T any](err error) Result[T] {
	if err == nil {
		err = errors.New("capability: unspecified failure")
	}
	return Result[T]{err: err}
}

// From builds a Result from a (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Result[T]{err: err}
	}
	return Result[T]{value: v}
}

// Unwrap returns the pair form.
func (r Result[T]) Unwrap() (T, error) {
	return r.value, r.err
}

// Value returns the value, which is the zero value on failure.
func (r Result[T]) Value() T { return r.value }

// Err returns the failure, or nil.
func (r Result[T]) Err() error { return r.err }

// IsOk reports whether r carries a value.
func (r Result[T]) IsOk() bool { return r.err == nil }

func (r Result[T]) String() string {
	if r.err != nil {
		return "error: " + r.err.Error()
	}
	return fmt.Sprintf("ok: %v", r.value)
}

// PanicError is the error a Call reports for a panicking function.
type PanicError struct {
	Value any
	Trace []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("capability: call panicked: %v", e.Value)
}

// Call runs fn and converts its outcome, including a panic, into a Result.
func Call[T any](fn func() (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			if core.IsUnwind(r) {
				panic(r)
			}
			res = Fail[T](&PanicError{Value: r, Trace: debug.Stack()})
		}
	}()
	return From(fn())
}
