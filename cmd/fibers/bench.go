package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Swind/go-fibers/core"
	"github.com/urfave/cli/v2"
)

func BenchCommand() *cli.Command {
	return &cli.Command{
		Name:  "bench",
		Usage: "run scheduler benchmarks",
		Subcommands: []*cli.Command{
			{
				Name:  "spawn",
				Usage: "spawn and join tasks from outside the runtime",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "tasks", Aliases: []string{"n"}, Value: 1_000_000, Usage: "number of tasks"},
					&cli.IntFlag{Name: "batch", Value: 10_000, Usage: "tasks spawned before joining"},
				},
				Action: benchSpawnAction,
			},
			{
				Name:  "mutex",
				Usage: "increment a shared counter from contending tasks",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "tasks", Aliases: []string{"n"}, Value: 8, Usage: "contending tasks"},
					&cli.IntFlag{Name: "increments", Value: 10_000, Usage: "increments per task"},
				},
				Action: benchMutexAction,
			},
		},
	}
}

func benchSpawnAction(c *cli.Context) error {
	total, batch := c.Int("tasks"), c.Int("batch")
	if total <= 0 || batch <= 0 {
		return cli.Exit("tasks and batch must be positive", 1)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to load config: %v", err), 1)
	}
	rt, err := startRuntime(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to start runtime: %v", err), 1)
	}
	defer rt.Shutdown()

	ctx := c.Context
	body := func(context.Context) (any, error) { return nil, nil }
	handles := make([]core.TaskHandle, 0, batch)
	start := time.Now()
	for done := 0; done < total; done += len(handles) {
		handles = handles[:0]
		for range min(batch, total-done) {
			h, err := rt.Spawn(ctx, body)
			if err != nil {
				return cli.Exit(fmt.Sprintf("Spawn failed: %v", err), 1)
			}
			handles = append(handles, h)
		}
		for _, h := range handles {
			if _, err := h.Join(ctx); err != nil {
				return cli.Exit(fmt.Sprintf("Join failed: %v", err), 1)
			}
		}
	}
	elapsed := time.Since(start)

	stats := rt.Stats()
	fmt.Fprintf(c.App.Writer, "tasks: %d in %v (%.0f tasks/s)\n", total, elapsed, float64(total)/elapsed.Seconds())
	fmt.Fprintf(c.App.Writer, "workers: %d, steals: %d\n", stats.Workers, stats.Steals)
	fmt.Fprintf(c.App.Writer, "stacks: %d allocated, %d in use\n", stats.Stacks.Allocated(), stats.Stacks.InUse())
	return nil
}

func benchMutexAction(c *cli.Context) error {
	tasks, increments := c.Int("tasks"), c.Int("increments")
	if tasks <= 0 || increments <= 0 {
		return cli.Exit("tasks and increments must be positive", 1)
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to load config: %v", err), 1)
	}
	rt, err := startRuntime(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to start runtime: %v", err), 1)
	}
	defer rt.Shutdown()

	ctx := c.Context
	m := core.NewMutex()
	counter := 0
	handles := make([]core.TaskHandle, 0, tasks)
	start := time.Now()
	for range tasks {
		h, err := rt.Spawn(ctx, func(ctx context.Context) (any, error) {
			for range increments {
				m.Lock(ctx)
				counter++
				m.Unlock()
			}
			return nil, nil
		})
		if err != nil {
			return cli.Exit(fmt.Sprintf("Spawn failed: %v", err), 1)
		}
		handles = append(handles, h)
	}
	for _, h := range handles {
		if _, err := h.Join(ctx); err != nil {
			return cli.Exit(fmt.Sprintf("Join failed: %v", err), 1)
		}
	}
	elapsed := time.Since(start)

	want := tasks * increments
	fmt.Fprintf(c.App.Writer, "counter: %d (want %d) in %v\n", counter, want, elapsed)
	if counter != want {
		return cli.Exit("lost increments", 2)
	}
	return nil
}
