package core

import "context"

// Barrier lets n tasks or goroutines wait for each other. It can be reused:
// once n parties arrived the barrier opens and starts a new generation.
type Barrier struct {
	n          int
	count      int
	generation uint64
	m          Mutex
	c          Cond
}

// NewBarrier returns a barrier for n parties. n < 1 behaves like 1.
func NewBarrier(n int) *Barrier {
	return &Barrier{n: max(n, 1)}
}

// Wait blocks until n parties have called Wait in the current generation.
// Exactly one of them, the last to arrive, gets true.
func (b *Barrier) Wait(ctx context.Context) bool {
	b.m.Lock(ctx)
	gen := b.generation
	b.count++
	if b.count < b.n {
		b.c.WaitWhile(ctx, &b.m, func() bool { return gen == b.generation })
		b.m.Unlock()
		return false
	}
	b.count = 0
	b.generation++
	b.c.NotifyAll()
	b.m.Unlock()
	return true
}
