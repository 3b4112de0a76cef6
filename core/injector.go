package core

import (
	"sync"
	"sync/atomic"
)

const injectorChunkSize = 128

type injectorChunk struct {
	next    *injectorChunk
	ids     [injectorChunkSize]TaskID
	readPos int
	pos     int
}

var injectorChunkPool = sync.Pool{
	New: func() any { return &injectorChunk{} },
}

func newInjectorChunk() *injectorChunk {
	c := injectorChunkPool.Get().(*injectorChunk)
	c.next = nil
	c.readPos = 0
	c.pos = 0
	return c
}

func returnInjectorChunk(c *injectorChunk) {
	c.ids = [injectorChunkSize]TaskID{}
	c.next = nil
	c.readPos = 0
	c.pos = 0
	injectorChunkPool.Put(c)
}

// injector is an unbounded FIFO of task ids that any goroutine may push to
// and pop from. The runtime uses one as the global injector and one per
// worker as its inbox.
type injector struct {
	mu     sync.Mutex
	head   *injectorChunk
	tail   *injectorChunk
	length atomic.Int64
}

func newInjector() *injector {
	return &injector{}
}

func (q *injector) pushLocked(id TaskID) {
	if q.tail == nil {
		q.tail = newInjectorChunk()
		q.head = q.tail
	}
	if q.tail.pos == injectorChunkSize {
		c := newInjectorChunk()
		q.tail.next = c
		q.tail = c
	}
	q.tail.ids[q.tail.pos] = id
	q.tail.pos++
}

func (q *injector) popLocked() (TaskID, bool) {
	c := q.head
	if c == nil || c.readPos == c.pos {
		return 0, false
	}
	id := c.ids[c.readPos]
	c.readPos++
	if c.readPos == c.pos {
		if c.next == nil {
			// Keep the last chunk around, rewound.
			c.readPos, c.pos = 0, 0
		} else {
			q.head = c.next
			returnInjectorChunk(c)
		}
	}
	return id, true
}

// Push appends id.
func (q *injector) Push(id TaskID) {
	q.mu.Lock()
	q.pushLocked(id)
	q.length.Add(1)
	q.mu.Unlock()
}

// PushBatch appends ids in order under one lock acquisition.
func (q *injector) PushBatch(ids []TaskID) {
	if len(ids) == 0 {
		return
	}
	q.mu.Lock()
	for _, id := range ids {
		q.pushLocked(id)
	}
	q.length.Add(int64(len(ids)))
	q.mu.Unlock()
}

// Pop removes the oldest id.
func (q *injector) Pop() (TaskID, bool) {
	if q.length.Load() == 0 {
		return 0, false
	}
	q.mu.Lock()
	id, ok := q.popLocked()
	if ok {
		q.length.Add(-1)
	}
	q.mu.Unlock()
	return id, ok
}

// PopBatch appends up to max of the oldest ids to dst.
func (q *injector) PopBatch(dst []TaskID, max int) []TaskID {
	if max <= 0 || q.length.Load() == 0 {
		return dst
	}
	n := 0
	q.mu.Lock()
	for n < max {
		id, ok := q.popLocked()
		if !ok {
			break
		}
		dst = append(dst, id)
		n++
	}
	q.length.Add(-int64(n))
	q.mu.Unlock()
	return dst
}

// Len returns the number of queued ids.
func (q *injector) Len() int {
	return int(q.length.Load())
}

// Clear drops every queued id and returns them.
func (q *injector) Clear() []TaskID {
	q.mu.Lock()
	var out []TaskID
	for {
		id, ok := q.popLocked()
		if !ok {
			break
		}
		out = append(out, id)
	}
	q.length.Add(-int64(len(out)))
	q.mu.Unlock()
	return out
}
