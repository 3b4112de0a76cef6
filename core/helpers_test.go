package core

import (
	"context"
	"testing"
	"time"
)

// newTestConfig returns a config with a silent panic handler and a small
// stack class so tests stay fast.
func newTestConfig(workers int) *RuntimeConfig {
	cfg := DefaultRuntimeConfig()
	cfg.Workers = workers
	cfg.PanicHandler = &SilentPanicHandler{}
	cfg.DefaultStackSize = 16 << 10
	cfg.StackClasses = []StackClass{{Size: 16 << 10, Initial: 4, Target: 4, Max: 4096}}
	return cfg
}

func newStartedRuntime(t *testing.T, cfg *RuntimeConfig) *Runtime {
	t.Helper()
	rt, err := NewRuntime(cfg)
	if err != nil {
		t.Fatalf("NewRuntime error = %v", err)
	}
	if err := rt.Start(); err != nil {
		t.Fatalf("Start error = %v", err)
	}
	t.Cleanup(func() { _ = rt.Shutdown() })
	return rt
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func mustSpawn(t *testing.T, rt *Runtime, ctx context.Context, fn TaskFunc, opts ...SpawnOption) TaskHandle {
	t.Helper()
	h, err := rt.Spawn(ctx, fn, opts...)
	if err != nil {
		t.Fatalf("Spawn error = %v", err)
	}
	return h
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
