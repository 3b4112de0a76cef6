package core

import (
	"fmt"
	"sync/atomic"
)

const queueIndexBits = 32

// localQueue is a worker's bounded run queue. The owning worker pushes and
// pops at the head (newest first) and may push at the tail; any goroutine may
// steal from the tail (oldest first).
//
// headTail packs the head index in the high 32 bits and the tail index in the
// low 32 bits; [tail, head) are queued slots. A slot holds a TaskID, zero
// meaning empty. A stealer keeps owning the slot it took until it zeroes it.
type localQueue struct {
	headTail atomic.Uint64
	slots    []atomic.Uint64
}

func newLocalQueue(capacity int) *localQueue {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		panic(fmt.Sprintf("local queue capacity must be a power of two >= 2, got %d", capacity))
	}
	return &localQueue{slots: make([]atomic.Uint64, capacity)}
}

func unpackQueue(ptrs uint64) (head, tail uint32) {
	const mask = 1<<queueIndexBits - 1
	return uint32(ptrs >> queueIndexBits & mask), uint32(ptrs & mask)
}

func packQueue(head, tail uint32) uint64 {
	return uint64(head)<<queueIndexBits | uint64(tail)
}

func (q *localQueue) slot(i uint32) *atomic.Uint64 {
	return &q.slots[i&uint32(len(q.slots)-1)]
}

// PushHead adds id as the newest entry. Owner only. It returns false when the
// queue is full.
func (q *localQueue) PushHead(id TaskID) bool {
	head, tail := unpackQueue(q.headTail.Load())
	if tail+uint32(len(q.slots)) == head {
		return false
	}
	s := q.slot(head)
	if s.Load() != 0 {
		// A stealer has not released this slot yet.
		return false
	}
	s.Store(uint64(id))
	q.headTail.Add(1 << queueIndexBits)
	return true
}

// PushTail adds id as the oldest entry, so the owner reaches it after
// everything already queued. Owner only.
func (q *localQueue) PushTail(id TaskID) bool {
	for {
		ptrs := q.headTail.Load()
		head, tail := unpackQueue(ptrs)
		if tail+uint32(len(q.slots)) == head {
			return false
		}
		s := q.slot(tail - 1)
		if s.Load() != 0 {
			return false
		}
		s.Store(uint64(id))
		if q.headTail.CompareAndSwap(ptrs, packQueue(head, tail-1)) {
			return true
		}
		s.Store(0)
	}
}

// PopHead removes the newest entry. Owner only.
func (q *localQueue) PopHead() (TaskID, bool) {
	for {
		ptrs := q.headTail.Load()
		head, tail := unpackQueue(ptrs)
		if head == tail {
			return 0, false
		}
		head--
		if q.headTail.CompareAndSwap(ptrs, packQueue(head, tail)) {
			s := q.slot(head)
			id := TaskID(s.Load())
			s.Store(0)
			return id, true
		}
	}
}

// Steal removes the oldest entry. Safe from any goroutine.
func (q *localQueue) Steal() (TaskID, bool) {
	for {
		ptrs := q.headTail.Load()
		head, tail := unpackQueue(ptrs)
		if head == tail {
			return 0, false
		}
		if q.headTail.CompareAndSwap(ptrs, packQueue(head, tail+1)) {
			s := q.slot(tail)
			id := TaskID(s.Load())
			s.Store(0)
			return id, true
		}
	}
}

// Len returns a racy snapshot of the queue length.
func (q *localQueue) Len() int {
	head, tail := unpackQueue(q.headTail.Load())
	return int(head - tail)
}

// Cap returns the queue capacity.
func (q *localQueue) Cap() int {
	return len(q.slots)
}
