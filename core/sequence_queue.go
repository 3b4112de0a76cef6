package core

import "sync"

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// sequenceQueue is the FIFO of work posted to a Sequence.
type sequenceQueue struct {
	mu    sync.Mutex
	items []SequenceFunc
}

func newSequenceQueue() *sequenceQueue {
	return &sequenceQueue{items: make([]SequenceFunc, 0, defaultQueueCap)}
}

func (q *sequenceQueue) Push(fn SequenceFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, fn)
}

func (q *sequenceQueue) Pop() (SequenceFunc, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	fn := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	q.maybeCompactLocked()
	return fn, true
}

func (q *sequenceQueue) maybeCompactLocked() {
	n := len(q.items)
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.items = make([]SequenceFunc, 0, defaultQueueCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)
	items := make([]SequenceFunc, n, newCap)
	copy(items, q.items)
	q.items = items
}

func (q *sequenceQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops every queued item and returns how many there were.
func (q *sequenceQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = make([]SequenceFunc, 0, defaultQueueCap)
	return n
}
