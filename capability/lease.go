package capability

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Swind/go-fibers/core"
)

// Lease is a consumer's hold on a resolved capability. The value is resolved
// once and cached for the lifetime of the lease.
type Lease[T any] struct {
	id         uuid.UUID
	descriptor Descriptor
	value      T
	release    func()
	released   atomic.Bool
}

// ID identifies the lease.
func (l *Lease[T]) ID() uuid.UUID { return l.id }

// Descriptor describes the export the lease holds.
func (l *Lease[T]) Descriptor() Descriptor { return l.descriptor }

// Version is the version actually bound, which may be newer than the one
// requested.
func (l *Lease[T]) Version() Version { return l.descriptor.Version }

// Value returns the leased implementation.
func (l *Lease[T]) Value() T { return l.value }

// Released reports whether Release has been called.
func (l *Lease[T]) Released() bool { return l.released.Load() }

// Release gives the lease back. Releasing twice is a misuse and reports a
// *core.MisuseError.
func (l *Lease[T]) Release() error {
	if !l.released.CompareAndSwap(false, true) {
		return &core.MisuseError{Op: "Lease.Release", Reason: "lease " + l.id.String() + " already released"}
	}
	l.release()
	return nil
}
