package core

import (
	"context"
	"sync/atomic"
)

const (
	spinRounds    = 3
	spinMaxRounds = 10
)

var spinSink atomic.Uint32

// SpinWait implements bounded exponential backoff for contended fast paths.
// The first rounds busy-spin; later rounds yield the task (or goroutine).
type SpinWait struct {
	counter int
}

// Spin backs off once. It returns false when the caller should stop
// spinning and block instead.
func (s *SpinWait) Spin(ctx context.Context) bool {
	if s.counter >= spinMaxRounds {
		return false
	}
	s.counter++
	if s.counter <= spinRounds {
		for range 1 << s.counter {
			spinSink.Add(1)
		}
	} else {
		_ = Yield(ctx)
	}
	return true
}

// Reset restarts the backoff.
func (s *SpinWait) Reset() {
	s.counter = 0
}
