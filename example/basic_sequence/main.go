package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Swind/go-fibers"
)

func main() {
	// 1. Start a runtime
	rt, err := fibers.NewRuntime(nil)
	if err != nil {
		panic(err)
	}
	if err := rt.Start(); err != nil {
		panic(err)
	}
	defer rt.Shutdown()

	fmt.Println("=== Basic Sequence Example ===")

	// 2. Create a Sequence
	// Items posted to it run one at a time, in order, on the runtime's workers.
	seq := fibers.NewSequence(rt, "basic")

	done := make(chan struct{})

	// 3. Post a sequence of items
	for i := 1; i <= 3; i++ {
		_ = seq.Post(func(ctx context.Context) {
			fmt.Printf("Item %d running in task %v\n", i, must(fibers.CurrentTask(ctx)))
			_ = fibers.Sleep(ctx, 100*time.Millisecond) // the worker runs other tasks meanwhile
		})
	}

	// 4. Post a delayed item
	_ = seq.PostDelayed(func(ctx context.Context) {
		fmt.Println("Delayed item executed!")
		close(done)
	}, 500*time.Millisecond)

	<-done
	fmt.Println("=== Example Finished ===")
}

func must(id fibers.TaskID, ok bool) fibers.TaskID {
	if !ok {
		panic("not in a task")
	}
	return id
}
