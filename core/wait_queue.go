package core

// waiter is one entry of a wait queue: either a suspended task, woken by
// requeueing it on its runtime, or a blocked goroutine, woken through ready.
type waiter struct {
	rt    *Runtime
	task  TaskID
	ready chan struct{}

	// write marks writer waiters of a RwLock.
	write bool
}

func newThreadWaiter() *waiter {
	return &waiter{ready: make(chan struct{}, 1)}
}

func (w *waiter) wake() {
	if w.rt != nil {
		w.rt.wake(w.task)
		return
	}
	w.ready <- struct{}{}
}

// waitQueue is a FIFO of waiters. It is not synchronized; every primitive
// guards its queue with its own lock.
type waitQueue struct {
	items []*waiter
	head  int
}

func (q *waitQueue) push(w *waiter) {
	q.items = append(q.items, w)
}

func (q *waitQueue) len() int {
	return len(q.items) - q.head
}

func (q *waitQueue) peek() *waiter {
	if q.head == len(q.items) {
		return nil
	}
	return q.items[q.head]
}

func (q *waitQueue) pop() *waiter {
	if q.head == len(q.items) {
		return nil
	}
	w := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > 32 && q.head*2 > len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return w
}

// remove drops w if it is still queued.
func (q *waitQueue) remove(w *waiter) bool {
	for i := q.head; i < len(q.items); i++ {
		if q.items[i] == w {
			copy(q.items[i:], q.items[i+1:])
			q.items[len(q.items)-1] = nil
			q.items = q.items[:len(q.items)-1]
			return true
		}
	}
	return false
}

func (q *waitQueue) drain() []*waiter {
	if q.len() == 0 {
		return nil
	}
	out := make([]*waiter, q.len())
	copy(out, q.items[q.head:])
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
	return out
}
