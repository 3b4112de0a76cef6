package fibers_test

import (
	"context"
	"fmt"

	fibers "github.com/Swind/go-fibers"
)

// ExampleSpawnValue demonstrates spawning two tasks and joining their sums.
func ExampleSpawnValue() {
	cfg := fibers.DefaultRuntimeConfig()
	cfg.Workers = 2
	rt, err := fibers.NewRuntime(cfg)
	if err != nil {
		panic(err)
	}
	rt.Start()
	defer rt.Shutdown()

	ctx := context.Background()
	a, _ := fibers.SpawnValue(ctx, rt, func(ctx context.Context) (int, error) { return 2 + 2, nil })
	b, _ := fibers.SpawnValue(ctx, rt, func(ctx context.Context) (int, error) { return 3 + 3, nil })

	x, _ := a.Join(ctx)
	y, _ := b.Join(ctx)
	fmt.Println(x, y)

	// Output:
	// 4 6
}

// ExampleMutex demonstrates tasks sharing a counter under a fiber mutex.
func ExampleMutex() {
	cfg := fibers.DefaultRuntimeConfig()
	cfg.Workers = 4
	rt, _ := fibers.NewRuntime(cfg)
	rt.Start()
	defer rt.Shutdown()

	ctx := context.Background()
	var mu fibers.Mutex
	counter := 0

	var handles []fibers.TaskHandle
	for range 8 {
		h, _ := fibers.Go(ctx, rt, func(ctx context.Context) error {
			for range 1000 {
				mu.Lock(ctx)
				counter++
				mu.Unlock()
			}
			return nil
		})
		handles = append(handles, h)
	}
	fibers.JoinAll(ctx, handles...)
	fmt.Println(counter)

	// Output:
	// 8000
}

// ExampleCond demonstrates a task waiting for a flag set by another task.
func ExampleCond() {
	rt, _ := fibers.NewRuntime(nil)
	rt.Start()
	defer rt.Shutdown()

	ctx := context.Background()
	var mu fibers.Mutex
	cond := fibers.NewCond()
	ready := false

	waiter, _ := fibers.SpawnValue(ctx, rt, func(ctx context.Context) (string, error) {
		mu.Lock(ctx)
		defer mu.Unlock()
		cond.WaitWhile(ctx, &mu, func() bool { return !ready })
		return "flag observed", nil
	})
	fibers.Go(ctx, rt, func(ctx context.Context) error {
		mu.Lock(ctx)
		ready = true
		mu.Unlock()
		cond.NotifyAll()
		return nil
	})

	msg, _ := waiter.Join(ctx)
	fmt.Println(msg)

	// Output:
	// flag observed
}
