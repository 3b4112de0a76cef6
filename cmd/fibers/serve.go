package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Swind/go-fibers/core"
	obs "github.com/Swind/go-fibers/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run a background load and expose runtime metrics",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":2112", Usage: "metrics listen address"},
			&cli.DurationFlag{Name: "interval", Value: time.Second, Usage: "snapshot poll interval"},
			&cli.DurationFlag{Name: "duration", Usage: "stop after this long (0 runs until interrupted)"},
			&cli.IntFlag{Name: "load", Value: 64, Usage: "tasks spawned per load tick"},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to load config: %v", err), 1)
	}

	reg := prom.NewRegistry()
	exporter, err := obs.NewMetricsExporter("fibers", reg, obs.ExporterOptions{})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to register metrics: %v", err), 1)
	}
	poller, err := obs.NewSnapshotPoller(reg, c.Duration("interval"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to register poller: %v", err), 1)
	}
	cfg.Metrics = exporter

	rt, err := startRuntime(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed to start runtime: %v", err), 1)
	}
	defer rt.Shutdown()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if d := c.Duration("duration"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	poller.AddRuntime(rt.Name(), rt)
	poller.Start(ctx)
	defer poller.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: c.String("addr"), Handler: mux}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	fmt.Fprintf(c.App.Writer, "serving metrics on %s/metrics\n", c.String("addr"))

	load := c.Int("load")
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-serveErr:
			return cli.Exit(fmt.Sprintf("Metrics server failed: %v", err), 1)
		case <-ticker.C:
			for i := range load {
				_, _ = rt.Spawn(ctx, loadTask(i))
			}
		}
	}
}

// loadTask sleeps for a few milliseconds and fails now and then so every
// metric family sees traffic.
func loadTask(i int) core.TaskFunc {
	return func(ctx context.Context) (any, error) {
		if err := core.Sleep(ctx, time.Duration(i%5)*time.Millisecond); err != nil {
			return nil, err
		}
		if i%50 == 49 {
			return nil, errors.New("synthetic failure")
		}
		return i, nil
	}
}
