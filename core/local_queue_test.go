package core

import (
	"sync"
	"sync/atomic"
	"testing"
)

// TestLocalQueue_OwnerLIFO tests owner-side ordering
// Given: a queue with 1, 2, 3 pushed at the head
// When: the owner pops
// Then: it gets the newest entry first
func TestLocalQueue_OwnerLIFO(t *testing.T) {
	q := newLocalQueue(8)
	for i := 1; i <= 3; i++ {
		q.PushHead(TaskID(i))
	}

	for _, want := range []TaskID{3, 2, 1} {
		got, ok := q.PopHead()
		if !ok || got != want {
			t.Fatalf("PopHead = (%v, %v), want (%v, true)", got, ok, want)
		}
	}
	if _, ok := q.PopHead(); ok {
		t.Error("PopHead on empty queue succeeded")
	}
}

// TestLocalQueue_StealFIFO tests thief-side ordering
// Given: a queue with 1, 2, 3 pushed at the head
// When: a thief steals
// Then: it gets the oldest entry first
func TestLocalQueue_StealFIFO(t *testing.T) {
	q := newLocalQueue(8)
	for i := 1; i <= 3; i++ {
		q.PushHead(TaskID(i))
	}

	for _, want := range []TaskID{1, 2, 3} {
		got, ok := q.Steal()
		if !ok || got != want {
			t.Fatalf("Steal = (%v, %v), want (%v, true)", got, ok, want)
		}
	}
}

// TestLocalQueue_PushTail tests yielded entries
// Given: a queue holding 1 and 2
// When: 9 is pushed at the tail
// Then: the owner reaches 9 last and a thief reaches it first
func TestLocalQueue_PushTail(t *testing.T) {
	q := newLocalQueue(4)
	q.PushHead(1)
	q.PushHead(2)
	if !q.PushTail(9) {
		t.Fatal("PushTail failed")
	}

	if got, _ := q.Steal(); got != 9 {
		t.Errorf("Steal = %v, want 9", got)
	}
	q.PushTail(9)
	var order []TaskID
	for {
		id, ok := q.PopHead()
		if !ok {
			break
		}
		order = append(order, id)
	}
	if len(order) != 3 || order[2] != 9 {
		t.Errorf("owner order = %v, want 9 last", order)
	}
}

// TestLocalQueue_Full tests the capacity bound
// Given: a queue of capacity 4 filled up
// When: one more entry is pushed at either end
// Then: both pushes fail and Len stays 4
func TestLocalQueue_Full(t *testing.T) {
	q := newLocalQueue(4)
	for i := 1; i <= 4; i++ {
		if !q.PushHead(TaskID(i)) {
			t.Fatalf("PushHead(%d) failed", i)
		}
	}

	if q.PushHead(5) {
		t.Error("PushHead on full queue succeeded")
	}
	if q.PushTail(5) {
		t.Error("PushTail on full queue succeeded")
	}
	if got := q.Len(); got != 4 {
		t.Errorf("Len = %d, want 4", got)
	}
}

// TestLocalQueue_BadCapacity tests constructor validation
func TestLocalQueue_BadCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("newLocalQueue(6) did not panic")
		}
	}()
	newLocalQueue(6)
}

// TestLocalQueue_ConcurrentSteal tests that no entry is lost or duplicated
// Given: an owner pushing and popping 100,000 ids while 4 thieves steal
// When: every id has been taken
// Then: each id was taken exactly once
func TestLocalQueue_ConcurrentSteal(t *testing.T) {
	const total = 100_000
	q := newLocalQueue(256)
	seen := make([]atomic.Int32, total+1)
	var taken atomic.Int64
	done := make(chan struct{})

	take := func(id TaskID) {
		seen[id].Add(1)
		taken.Add(1)
	}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if id, ok := q.Steal(); ok {
					take(id)
					continue
				}
				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}

	for i := 1; i <= total; i++ {
		for !q.PushHead(TaskID(i)) {
			if id, ok := q.PopHead(); ok {
				take(id)
			}
		}
		if i%3 == 0 {
			if id, ok := q.PopHead(); ok {
				take(id)
			}
		}
	}
	for {
		id, ok := q.PopHead()
		if !ok {
			break
		}
		take(id)
	}
	for taken.Load() < total {
		if id, ok := q.Steal(); ok {
			take(id)
		}
	}
	close(done)
	wg.Wait()

	for i := 1; i <= total; i++ {
		if n := seen[i].Load(); n != 1 {
			t.Fatalf("id %d taken %d times, want 1", i, n)
		}
	}
}
