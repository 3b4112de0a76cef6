package core

import (
	"context"
	"sync"
	"sync/atomic"
)

const (
	mutexLocked  int32 = 1 << iota
	mutexWaiting       // the wait queue may be non-empty
)

// Mutex is a mutual exclusion lock usable from tasks and from plain
// goroutines. A task that has to wait is suspended and its worker keeps
// running other tasks; a goroutine blocks.
//
// Unlock hands the lock directly to the oldest waiter. The zero Mutex is
// unlocked.
type Mutex struct {
	state atomic.Int32

	mu      sync.Mutex
	waiters waitQueue
}

// NewMutex returns an unlocked mutex.
func NewMutex() *Mutex {
	return &Mutex{}
}

// TryLock acquires m if it is free.
func (m *Mutex) TryLock() bool {
	for {
		s := m.state.Load()
		if s&mutexLocked != 0 {
			return false
		}
		if m.state.CompareAndSwap(s, s|mutexLocked) {
			return true
		}
	}
}

// Lock acquires m, suspending the task behind ctx (or blocking the calling
// goroutine) while another owner holds it.
func (m *Mutex) Lock(ctx context.Context) {
	if m.state.CompareAndSwap(0, mutexLocked) {
		return
	}

	var spin SpinWait
	for m.state.Load()&mutexWaiting == 0 && spin.Spin(ctx) {
		if m.TryLock() {
			return
		}
	}
	m.lockSlow(ctx)
}

// enqueueLocked either takes the lock or flags the mutex as having waiters.
// It returns true when the lock was taken. m.mu must be held.
func (m *Mutex) enqueueLocked(w *waiter) bool {
	for {
		s := m.state.Load()
		if s&mutexLocked == 0 {
			if m.state.CompareAndSwap(s, s|mutexLocked) {
				return true
			}
			continue
		}
		if m.state.CompareAndSwap(s, s|mutexWaiting) {
			m.waiters.push(w)
			return false
		}
	}
}

func (m *Mutex) lockSlow(ctx context.Context) {
	if ref := taskFrom(ctx); ref != nil {
		// Resumed either because the lock was free after all or because
		// Unlock handed it over.
		ref.suspend(func(id TaskID) bool {
			m.mu.Lock()
			defer m.mu.Unlock()
			return !m.enqueueLocked(&waiter{rt: ref.rt, task: id})
		})
		return
	}

	w := newThreadWaiter()
	m.mu.Lock()
	acquired := m.enqueueLocked(w)
	m.mu.Unlock()
	if !acquired {
		<-w.ready
	}
}

// Unlock releases m. If tasks or goroutines wait, ownership passes to the
// oldest one and m stays locked.
func (m *Mutex) Unlock() {
	if m.state.CompareAndSwap(mutexLocked, 0) {
		return
	}

	m.mu.Lock()
	s := m.state.Load()
	if s&mutexLocked == 0 {
		m.mu.Unlock()
		reportMisuse("Mutex.Unlock", "unlock of unlocked mutex")
		return
	}
	next := m.waiters.pop()
	switch {
	case next == nil:
		m.state.Store(0)
	case m.waiters.len() == 0:
		m.state.Store(mutexLocked)
	}
	m.mu.Unlock()

	if next != nil {
		next.wake()
	}
}

// IsLocked reports whether m is held.
func (m *Mutex) IsLocked() bool {
	return m.state.Load()&mutexLocked != 0
}
