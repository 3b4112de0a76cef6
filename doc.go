// Package fibers is an embeddable M:N task runtime: very large numbers of
// cooperatively scheduled tasks run on a small fixed set of worker
// goroutines, and block on mutexes, condition variables and sleeps without
// tying up the worker they run on.
//
// # Quick Start
//
// Build a runtime, start it, spawn tasks and join them:
//
//	rt, err := fibers.NewRuntime(fibers.DefaultRuntimeConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	rt.Start()
//	defer rt.Shutdown()
//
//	h, _ := fibers.SpawnValue(ctx, rt, func(ctx context.Context) (int, error) {
//		return 2 + 2, nil
//	})
//	sum, err := h.Join(ctx) // 4
//
// # Task contexts
//
// A task body receives a context.Context that identifies the task. Passing
// that context to Yield, Sleep, Join, Mutex.Lock or Cond.Wait suspends the
// task and lets the worker run something else. Any other context makes the
// same calls block the calling goroutine instead, so the primitives work
// from plain goroutines too.
//
//	var mu fibers.Mutex
//	rt.Spawn(ctx, func(ctx context.Context) (any, error) {
//		mu.Lock(ctx) // suspends the task on contention
//		defer mu.Unlock()
//		return nil, nil
//	})
//
// # Capabilities
//
// The task API can be published in a capability.Registry under
// "fibers/tasks" at version 1.0.0 with Export, and looked up by consumers
// with Resolve. Every operation of the resolved TaskAPI returns a
// capability.Result, so failures, including panics, never cross the
// boundary.
package fibers
