package core

import (
	"context"
	"sync"
)

// RwLock is a reader-writer lock usable from tasks and from plain
// goroutines. Waiters are served in arrival order: a writer waits for the
// readers ahead of it, and readers arriving after a queued writer wait
// behind it. Releasing hands the lock to the next writer or to the whole
// run of readers at the front of the queue.
type RwLock struct {
	mu      sync.Mutex
	readers int
	writer  bool
	waiters waitQueue
}

// NewRwLock returns an unlocked RwLock.
func NewRwLock() *RwLock {
	return &RwLock{}
}

func (l *RwLock) tryAcquireLocked(write bool) bool {
	if l.writer || l.waiters.len() > 0 {
		return false
	}
	if write {
		if l.readers > 0 {
			return false
		}
		l.writer = true
		return true
	}
	l.readers++
	return true
}

// TryRLock takes a read lock if no writer holds or waits for the lock.
func (l *RwLock) TryRLock() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tryAcquireLocked(false)
}

// TryLock takes the write lock if the lock is free.
func (l *RwLock) TryLock() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tryAcquireLocked(true)
}

// RLock takes a read lock.
func (l *RwLock) RLock(ctx context.Context) {
	l.acquire(ctx, false)
}

// Lock takes the write lock.
func (l *RwLock) Lock(ctx context.Context) {
	l.acquire(ctx, true)
}

func (l *RwLock) acquire(ctx context.Context, write bool) {
	if ref := taskFrom(ctx); ref != nil {
		l.mu.Lock()
		ok := l.tryAcquireLocked(write)
		l.mu.Unlock()
		if ok {
			return
		}
		ref.suspend(func(id TaskID) bool {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.tryAcquireLocked(write) {
				return false
			}
			l.waiters.push(&waiter{rt: ref.rt, task: id, write: write})
			return true
		})
		return
	}

	l.mu.Lock()
	if l.tryAcquireLocked(write) {
		l.mu.Unlock()
		return
	}
	w := newThreadWaiter()
	w.write = write
	l.waiters.push(w)
	l.mu.Unlock()
	<-w.ready
}

// RUnlock releases a read lock.
func (l *RwLock) RUnlock() {
	l.mu.Lock()
	if l.readers == 0 {
		l.mu.Unlock()
		reportMisuse("RwLock.RUnlock", "read unlock without readers")
		return
	}
	l.readers--
	var next []*waiter
	if l.readers == 0 {
		next = l.grantLocked()
	}
	l.mu.Unlock()
	for _, w := range next {
		w.wake()
	}
}

// Unlock releases the write lock.
func (l *RwLock) Unlock() {
	l.mu.Lock()
	if !l.writer {
		l.mu.Unlock()
		reportMisuse("RwLock.Unlock", "write unlock of a lock not held for writing")
		return
	}
	l.writer = false
	next := l.grantLocked()
	l.mu.Unlock()
	for _, w := range next {
		w.wake()
	}
}

// grantLocked passes the free lock to the front of the queue. The returned
// waiters already own it and only need waking.
func (l *RwLock) grantLocked() []*waiter {
	head := l.waiters.peek()
	if head == nil {
		return nil
	}
	if head.write {
		l.waiters.pop()
		l.writer = true
		return []*waiter{head}
	}
	var out []*waiter
	for w := l.waiters.peek(); w != nil && !w.write; w = l.waiters.peek() {
		l.waiters.pop()
		l.readers++
		out = append(out, w)
	}
	return out
}

// Readers returns the number of active readers.
func (l *RwLock) Readers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readers
}
