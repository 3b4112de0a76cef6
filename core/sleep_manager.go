package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// sleeper is a task suspended until wakeAt.
type sleeper struct {
	wakeAt time.Time
	task   TaskID
	index  int
}

type sleeperHeap []*sleeper

func (h sleeperHeap) Len() int           { return len(h) }
func (h sleeperHeap) Less(i, j int) bool { return h[i].wakeAt.Before(h[j].wakeAt) }
func (h sleeperHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *sleeperHeap) Push(x any) {
	s := x.(*sleeper)
	s.index = len(*h)
	*h = append(*h, s)
}

func (h *sleeperHeap) Pop() any {
	old := *h
	n := len(old)
	s := old[n-1]
	old[n-1] = nil
	s.index = -1
	*h = old[:n-1]
	return s
}

// sleepManager wakes sleeping tasks once their deadline passed. A single
// goroutine waits on a timer for the earliest deadline.
type sleepManager struct {
	mu     sync.Mutex
	pq     sleeperHeap
	byTask map[TaskID]*sleeper
	wakeup chan struct{}
	wake   func(TaskID)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newSleepManager(wake func(TaskID)) *sleepManager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &sleepManager{
		byTask: make(map[TaskID]*sleeper),
		wakeup: make(chan struct{}, 1),
		wake:   wake,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go m.loop()
	return m
}

// Add schedules id to be woken at wakeAt.
func (m *sleepManager) Add(id TaskID, wakeAt time.Time) {
	m.mu.Lock()
	s := &sleeper{wakeAt: wakeAt, task: id}
	heap.Push(&m.pq, s)
	m.byTask[id] = s
	first := s.index == 0
	m.mu.Unlock()

	if first {
		select {
		case m.wakeup <- struct{}{}:
		default:
		}
	}
}

// Remove cancels the sleep of id. It returns false if id was not sleeping,
// in which case the timer already owns the wakeup.
func (m *sleepManager) Remove(id TaskID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byTask[id]
	if !ok {
		return false
	}
	heap.Remove(&m.pq, s.index)
	delete(m.byTask, id)
	return true
}

func (m *sleepManager) loop() {
	defer close(m.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		next := m.nextDeadline()
		if next < 0 {
			next = 1000 * time.Hour
		}
		timer.Reset(next)

		select {
		case <-m.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			m.wakeExpired()
		case <-m.wakeup:
			timer.Stop()
		}
	}
}

// nextDeadline returns the time left until the earliest deadline, or -1
// when nothing sleeps.
func (m *sleepManager) nextDeadline() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.pq) == 0 {
		return -1
	}
	return max(time.Until(m.pq[0].wakeAt), 0)
}

func (m *sleepManager) wakeExpired() {
	m.mu.Lock()
	now := time.Now()
	var expired []TaskID
	for len(m.pq) > 0 && !m.pq[0].wakeAt.After(now) {
		s := heap.Pop(&m.pq).(*sleeper)
		delete(m.byTask, s.task)
		expired = append(expired, s.task)
	}
	m.mu.Unlock()

	for _, id := range expired {
		m.wake(id)
	}
}

// Stop ends the timer goroutine and returns the tasks still sleeping.
func (m *sleepManager) Stop() []TaskID {
	m.cancel()
	<-m.done

	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TaskID, 0, len(m.pq))
	for _, s := range m.pq {
		out = append(out, s.task)
	}
	m.pq = nil
	clear(m.byTask)
	return out
}

// Len returns the number of sleeping tasks.
func (m *sleepManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pq)
}
