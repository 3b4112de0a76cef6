package core

import (
	"sync"
	"sync/atomic"
)

const (
	arenaChunkBits = 10
	arenaChunkSize = 1 << arenaChunkBits
	arenaMaxChunks = 1 << 14
)

type arenaChunk [arenaChunkSize]tcb

// arena owns every task control block. Slots live in fixed chunks that are
// never moved, so a *tcb stays valid for the life of the runtime; handles
// carry a generation so a recycled slot never answers for an old task.
type arena struct {
	chunks [arenaMaxChunks]atomic.Pointer[arenaChunk]

	mu   sync.Mutex
	free []uint32
	next uint32
	live atomic.Int64
}

func newArena() *arena {
	return &arena{}
}

func (a *arena) slot(i uint32) *tcb {
	c := a.chunks[i>>arenaChunkBits].Load()
	if c == nil {
		return nil
	}
	return &c[i&(arenaChunkSize-1)]
}

// alloc returns a fresh tcb and its id, or false when every slot is live.
func (a *arena) alloc() (*tcb, TaskID, bool) {
	a.mu.Lock()
	var i uint32
	if n := len(a.free); n > 0 {
		i = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		if a.next >= arenaChunkSize*arenaMaxChunks {
			a.mu.Unlock()
			return nil, 0, false
		}
		i = a.next
		a.next++
		if ci := i >> arenaChunkBits; a.chunks[ci].Load() == nil {
			a.chunks[ci].Store(new(arenaChunk))
		}
	}
	a.mu.Unlock()

	t := a.slot(i)
	id := makeTaskID(i, t.gen.Load())
	t.id = id
	t.setState(TaskCreated)
	a.live.Add(1)
	return t, id, true
}

// get resolves id, returning nil for stale or unknown handles.
func (a *arena) get(id TaskID) *tcb {
	if id == 0 {
		return nil
	}
	i := id.slot()
	if i>>arenaChunkBits >= arenaMaxChunks {
		return nil
	}
	t := a.slot(i)
	if t == nil || t.gen.Load() != id.gen() {
		return nil
	}
	return t
}

// release retires id: the generation moves on, so existing handles stop
// resolving, and the slot goes back on the free list.
func (a *arena) release(t *tcb) {
	i := t.id.slot()
	t.reset()
	t.gen.Add(1)

	a.mu.Lock()
	a.free = append(a.free, i)
	a.mu.Unlock()
	a.live.Add(-1)
}

// Live returns the number of tasks that have not finished.
func (a *arena) Live() int {
	return int(a.live.Load())
}
