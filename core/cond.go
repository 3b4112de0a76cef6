package core

import (
	"context"
	"sync"
)

// Cond is a condition variable usable from tasks and from plain goroutines.
// A Cond is tied to the first Mutex it is waited with; waiting with any
// other mutex is misuse. The zero Cond is ready to use.
type Cond struct {
	mu      sync.Mutex
	waiters waitQueue
	m       *Mutex
}

// NewCond returns a condition variable.
func NewCond() *Cond {
	return &Cond{}
}

func (c *Cond) bind(m *Mutex) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = m
		return true
	}
	return c.m == m
}

// Wait atomically releases m and suspends the task behind ctx (or blocks
// the calling goroutine) until notified, then re-acquires m before
// returning. m must be locked by the caller. Wakeups may be spurious, so
// callers re-check their predicate in a loop or use WaitWhile.
func (c *Cond) Wait(ctx context.Context, m *Mutex) {
	if m == nil {
		reportMisuse("Cond.Wait", "nil mutex")
		return
	}
	if !c.bind(m) {
		reportMisuse("Cond.Wait", "condition variable used with two different mutexes")
		return
	}
	if !m.IsLocked() {
		reportMisuse("Cond.Wait", "mutex is not locked")
		return
	}

	if ref := taskFrom(ctx); ref != nil {
		// Queued and unlocked only after the task is off its stack, so a
		// notify between the two cannot be lost.
		ref.suspend(func(id TaskID) bool {
			c.mu.Lock()
			c.waiters.push(&waiter{rt: ref.rt, task: id})
			c.mu.Unlock()
			m.Unlock()
			return true
		})
	} else {
		w := newThreadWaiter()
		c.mu.Lock()
		c.waiters.push(w)
		c.mu.Unlock()
		m.Unlock()
		<-w.ready
	}
	m.Lock(ctx)
}

// WaitWhile waits as long as condition returns true. m must be locked; it
// is locked again when WaitWhile returns.
func (c *Cond) WaitWhile(ctx context.Context, m *Mutex, condition func() bool) {
	for condition() {
		c.Wait(ctx, m)
	}
}

// NotifyOne wakes the oldest waiter. It reports whether one was waiting.
func (c *Cond) NotifyOne() bool {
	c.mu.Lock()
	w := c.waiters.pop()
	c.mu.Unlock()
	if w == nil {
		return false
	}
	w.wake()
	return true
}

// NotifyAll wakes every waiter and returns how many there were.
func (c *Cond) NotifyAll() int {
	c.mu.Lock()
	waiters := c.waiters.drain()
	c.mu.Unlock()
	for _, w := range waiters {
		w.wake()
	}
	return len(waiters)
}
