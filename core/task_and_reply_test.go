package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestSpawnAndReply_ToSequence tests replies posted to a sequence
// Given: a reply sequence
// When: a task computes a length and replies
// Then: the reply runs on the sequence with the task's result
func TestSpawnAndReply_ToSequence(t *testing.T) {
	rt := newStartedRuntime(t, newTestConfig(2))
	ctx := testContext(t)
	replies := NewSequence(rt, "replies")

	got := make(chan int, 1)
	var onSequence bool
	h, err := SpawnAndReply(ctx, rt,
		func(ctx context.Context) (int, error) { return len("Hello"), nil },
		func(ctx context.Context, length int, err error) {
			onSequence = CurrentSequence(ctx) == replies
			got <- length
		},
		replies,
	)
	if err != nil {
		t.Fatalf("SpawnAndReply error = %v", err)
	}

	if v, err := h.Join(ctx); err != nil || v != 5 {
		t.Fatalf("Join = (%v, %v), want (5, nil)", v, err)
	}
	select {
	case n := <-got:
		if n != 5 {
			t.Errorf("reply length = %d, want 5", n)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reply did not run")
	}
	_ = replies.WaitIdle(ctx)
	if !onSequence {
		t.Error("reply did not run on the reply sequence")
	}
}

// TestSpawnAndReply_Inline tests replies without a sequence
func TestSpawnAndReply_Inline(t *testing.T) {
	rt := newStartedRuntime(t, newTestConfig(1))
	ctx := testContext(t)
	boom := errors.New("boom")

	var replied error
	h, err := SpawnAndReply(ctx, rt,
		func(ctx context.Context) (string, error) { return "", boom },
		func(ctx context.Context, _ string, err error) { replied = err },
		nil,
	)
	if err != nil {
		t.Fatalf("SpawnAndReply error = %v", err)
	}

	if _, err := h.Join(ctx); !errors.Is(err, boom) {
		t.Errorf("Join error = %v, want boom", err)
	}
	if !errors.Is(replied, boom) {
		t.Errorf("reply error = %v, want boom", replied)
	}
	if _, err := SpawnAndReply[int](ctx, rt, nil, nil, nil); !errors.Is(err, ErrNilTask) {
		t.Errorf("nil task error = %v, want ErrNilTask", err)
	}
}

// TestSpawnDelayedAndReply tests the delayed variant
func TestSpawnDelayedAndReply(t *testing.T) {
	rt := newStartedRuntime(t, newTestConfig(1))
	ctx := testContext(t)
	start := time.Now()

	var elapsed time.Duration
	h, err := SpawnDelayedAndReply(ctx, rt, 15*time.Millisecond,
		func(ctx context.Context) (bool, error) { return true, nil },
		func(ctx context.Context, ok bool, err error) { elapsed = time.Since(start) },
		nil,
	)
	if err != nil {
		t.Fatalf("SpawnDelayedAndReply error = %v", err)
	}
	_, _ = h.Join(ctx)

	if elapsed < 15*time.Millisecond {
		t.Errorf("reply after %v, want >= 15ms", elapsed)
	}
}
