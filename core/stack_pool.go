package core

import (
	"fmt"
	"sort"
	"sync"
)

// StackClass configures one size class of the stack pool.
type StackClass struct {
	// Size is the number of bytes each stack of the class is grown to.
	Size int `toml:"size"`
	// Initial stacks are created up front.
	Initial int `toml:"initial"`
	// Target is the number of allocated stacks above which released stacks
	// are freed instead of kept. Values below Initial are raised to Initial.
	Target int `toml:"target"`
	// Max bounds the number of stacks handed out at the same time.
	Max int `toml:"max"`
}

// StackClassStats is a snapshot of one size class.
type StackClassStats struct {
	Size      int
	Allocated int
	InUse     int
	Free      int
	Waiters   int
	Created   int64
	Freed     int64
}

// StackPoolStats is a snapshot of the whole pool.
type StackPoolStats struct {
	Classes []StackClassStats
}

// Allocated returns the number of stacks alive across every class.
func (s StackPoolStats) Allocated() int {
	n := 0
	for _, c := range s.Classes {
		n += c.Allocated
	}
	return n
}

// InUse returns the number of stacks bound to tasks across every class.
func (s StackPoolStats) InUse() int {
	n := 0
	for _, c := range s.Classes {
		n += c.InUse
	}
	return n
}

type stackClass struct {
	cfg      StackClass
	free     []*Stack
	acquired int
	waiters  []TaskID
	reserved map[TaskID]*Stack // released stacks held for woken waiters
	created  int64
	freed    int64
}

func (c *stackClass) allocated() int {
	return c.acquired + len(c.free)
}

// StackPool hands out pre-grown stacks by size class.
//
// Acquire and Release are meant to be called from worker goroutines, never
// from inside a task.
type StackPool struct {
	mu      sync.Mutex
	classes []*stackClass
	nextID  uint64
	closed  bool
	logger  Logger
}

// NewStackPool builds a pool and pre-warms every class with its Initial
// stacks.
func NewStackPool(classes []StackClass, logger Logger) (*StackPool, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("stack pool: at least one class is required")
	}
	if logger == nil {
		logger = NewNoOpLogger()
	}

	sorted := make([]StackClass, len(classes))
	copy(sorted, classes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Size < sorted[j].Size })

	p := &StackPool{logger: logger}
	for i, cfg := range sorted {
		if cfg.Size <= 0 {
			return nil, fmt.Errorf("stack pool: class %d: size must be positive", i)
		}
		if i > 0 && cfg.Size == sorted[i-1].Size {
			return nil, fmt.Errorf("stack pool: duplicate class size %d", cfg.Size)
		}
		if cfg.Max <= 0 {
			return nil, fmt.Errorf("stack pool: class %d: max must be positive", i)
		}
		if cfg.Initial < 0 || cfg.Initial > cfg.Max {
			return nil, fmt.Errorf("stack pool: class %d: initial %d outside [0, %d]", i, cfg.Initial, cfg.Max)
		}
		if cfg.Target < cfg.Initial {
			cfg.Target = cfg.Initial
		}

		c := &stackClass{cfg: cfg, free: make([]*Stack, 0, cfg.Initial), reserved: make(map[TaskID]*Stack)}
		for range cfg.Initial {
			c.free = append(c.free, p.newStack(i, c))
		}
		p.classes = append(p.classes, c)
	}
	return p, nil
}

func (p *StackPool) newStack(class int, c *stackClass) *Stack {
	p.nextID++
	c.created++
	return newStack(p.nextID, class, c.cfg.Size)
}

// ClassFor returns the smallest class whose stacks hold size bytes.
func (p *StackPool) ClassFor(size int) (int, error) {
	for i, c := range p.classes {
		if c.cfg.Size >= size {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %d bytes", ErrInvalidStackSize, size)
}

// ClassSize returns the stack size of class, or 0 for an unknown class.
func (p *StackPool) ClassSize(class int) int {
	if class < 0 || class >= len(p.classes) {
		return 0
	}
	return p.classes[class].cfg.Size
}

// Acquire returns a stack of the given class. It fails with
// ErrStackExhausted when the class already has Max stacks in use.
func (p *StackPool) Acquire(class int) (*Stack, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireLocked(class)
}

// AcquireOrWait is Acquire, except that on exhaustion id is queued as a
// waiter. The waiter is handed back by a later Release, which keeps the
// released stack for it, so waiters are served in arrival order.
func (p *StackPool) AcquireOrWait(class int, id TaskID) (*Stack, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed && class >= 0 && class < len(p.classes) {
		c := p.classes[class]
		if s, ok := c.reserved[id]; ok {
			delete(c.reserved, id)
			return s, nil
		}
	}
	s, err := p.acquireLocked(class)
	if err == ErrStackExhausted {
		c := p.classes[class]
		c.waiters = append(c.waiters, id)
	}
	return s, err
}

func (p *StackPool) acquireLocked(class int) (*Stack, error) {
	if p.closed {
		return nil, ErrRuntimeClosed
	}
	if class < 0 || class >= len(p.classes) {
		return nil, ErrInvalidStackSize
	}
	c := p.classes[class]

	if n := len(c.free); n > 0 {
		s := c.free[n-1]
		c.free[n-1] = nil
		c.free = c.free[:n-1]
		c.acquired++
		return s, nil
	}
	if c.acquired >= c.cfg.Max {
		return nil, ErrStackExhausted
	}
	c.acquired++
	return p.newStack(class, c), nil
}

// Release returns s to its class. If tasks are waiting for this class, s
// stays in use, reserved for the oldest one, which is returned so the caller
// can requeue it. Otherwise the stack is kept while the class holds no more
// than Target stacks and freed beyond that.
func (p *StackPool) Release(s *Stack) (TaskID, bool) {
	s.unbind()

	p.mu.Lock()
	c := p.classes[s.class]
	if !p.closed && len(c.waiters) > 0 {
		waiter := c.waiters[0]
		c.waiters[0] = 0
		c.waiters = c.waiters[1:]
		c.reserved[waiter] = s
		p.mu.Unlock()
		return waiter, true
	}

	keep := !p.closed && c.allocated() <= c.cfg.Target
	c.acquired--
	if keep {
		c.free = append(c.free, s)
	} else {
		c.freed++
	}
	p.mu.Unlock()

	if !keep {
		s.close()
	}
	return 0, false
}

// discard frees s without returning it to its class. It is used for stacks
// whose task was abandoned mid-flight.
func (p *StackPool) discard(s *Stack) {
	s.close()
	s.unbind()
	p.mu.Lock()
	c := p.classes[s.class]
	c.acquired--
	c.freed++
	p.mu.Unlock()
}

// Exhausted reports whether class has no stack left to hand out.
func (p *StackPool) Exhausted(class int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if class < 0 || class >= len(p.classes) {
		return true
	}
	c := p.classes[class]
	return len(c.free) == 0 && c.acquired >= c.cfg.Max
}

// Stats returns a snapshot of every class.
func (p *StackPool) Stats() StackPoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := StackPoolStats{Classes: make([]StackClassStats, 0, len(p.classes))}
	for _, c := range p.classes {
		stats.Classes = append(stats.Classes, StackClassStats{
			Size:      c.cfg.Size,
			Allocated: c.allocated(),
			InUse:     c.acquired,
			Free:      len(c.free),
			Waiters:   len(c.waiters),
			Created:   c.created,
			Freed:     c.freed,
		})
	}
	return stats
}

// Close frees every idle stack and returns the waiters that will never be
// served. Stacks still in use are freed when they are released.
func (p *StackPool) Close() []TaskID {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	var idle []*Stack
	var waiters []TaskID
	for _, c := range p.classes {
		idle = append(idle, c.free...)
		c.freed += int64(len(c.free))
		c.free = nil
		waiters = append(waiters, c.waiters...)
		c.waiters = nil
		for id, s := range c.reserved {
			idle = append(idle, s)
			c.acquired--
			c.freed++
			delete(c.reserved, id)
		}
	}
	p.mu.Unlock()

	for _, s := range idle {
		s.close()
	}
	p.logger.Debug("stack pool closed", F("freed", len(idle)), F("waiters", len(waiters)))
	return waiters
}
