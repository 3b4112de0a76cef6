package prometheus

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/Swind/go-fibers/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// RuntimeSnapshotProvider provides current runtime stats snapshots.
type RuntimeSnapshotProvider interface {
	Stats() core.RuntimeStats
}

// WorkerSnapshotProvider is implemented by providers that also report
// per-worker stats; *core.Runtime implements both.
type WorkerSnapshotProvider interface {
	WorkerStats() []core.WorkerStats
}

// SnapshotPoller periodically exports runtime Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	runtimesMu sync.RWMutex
	runtimes   map[string]RuntimeSnapshotProvider

	liveTasks     *prom.GaugeVec
	injected      *prom.GaugeVec
	parkedWorkers *prom.GaugeVec
	sleeping      *prom.GaugeVec
	running       *prom.GaugeVec
	finished      *prom.GaugeVec
	failed        *prom.GaugeVec

	stacksAllocated *prom.GaugeVec
	stacksInUse     *prom.GaugeVec
	stackWaiters    *prom.GaugeVec

	workerQueued   *prom.GaugeVec
	workerExecuted *prom.GaugeVec
	workerParked   *prom.GaugeVec

	stateMu sync.Mutex
	active  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	gauge := func(name, help string, labels ...string) *prom.GaugeVec {
		return prom.NewGaugeVec(prom.GaugeOpts{Namespace: "fibers", Name: name, Help: help}, labels)
	}
	p := &SnapshotPoller{
		interval: interval,
		runtimes: make(map[string]RuntimeSnapshotProvider),

		liveTasks:     gauge("runtime_live_tasks", "Tasks spawned and not yet finished.", "runtime"),
		injected:      gauge("runtime_injected_tasks", "Tasks waiting in the global injector.", "runtime"),
		parkedWorkers: gauge("runtime_parked_workers", "Workers parked for lack of work.", "runtime"),
		sleeping:      gauge("runtime_sleeping_tasks", "Tasks suspended in Sleep.", "runtime"),
		running:       gauge("runtime_running", "Runtime running state (1=running, 0=stopped).", "runtime"),
		finished:      gauge("runtime_finished_tasks", "Runtime finished task count snapshot.", "runtime"),
		failed:        gauge("runtime_failed_tasks", "Runtime failed task count snapshot.", "runtime"),

		stacksAllocated: gauge("stacks_allocated", "Stacks alive per size class.", "runtime", "size"),
		stacksInUse:     gauge("stacks_in_use", "Stacks bound to tasks per size class.", "runtime", "size"),
		stackWaiters:    gauge("stack_waiters", "Tasks waiting for a stack per size class.", "runtime", "size"),

		workerQueued:   gauge("worker_queued_tasks", "Tasks in a worker's local queue.", "runtime", "worker"),
		workerExecuted: gauge("worker_executed_total", "Task switches performed by a worker.", "runtime", "worker"),
		workerParked:   gauge("worker_parked", "Worker parked state (1=parked, 0=active).", "runtime", "worker"),
	}

	for _, g := range []**prom.GaugeVec{
		&p.liveTasks, &p.injected, &p.parkedWorkers, &p.sleeping, &p.running, &p.finished, &p.failed,
		&p.stacksAllocated, &p.stacksInUse, &p.stackWaiters,
		&p.workerQueued, &p.workerExecuted, &p.workerParked,
	} {
		registered, err := registerCollector(reg, *g)
		if err != nil {
			return nil, err
		}
		*g = registered
	}
	return p, nil
}

// AddRuntime adds or replaces a runtime snapshot provider by name.
func (p *SnapshotPoller) AddRuntime(name string, provider RuntimeSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "runtime")
	p.runtimesMu.Lock()
	p.runtimes[name] = provider
	p.runtimesMu.Unlock()
}

// RemoveRuntime stops polling the named runtime.
func (p *SnapshotPoller) RemoveRuntime(name string) {
	if p == nil {
		return
	}
	p.runtimesMu.Lock()
	delete(p.runtimes, normalizeLabel(name, "runtime"))
	p.runtimesMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if p.active {
		p.stateMu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.active = true
	p.stateMu.Unlock()

	go p.loop(pollCtx)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.active {
		p.stateMu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.stateMu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	p.stateMu.Lock()
	p.active = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()
}

func (p *SnapshotPoller) loop(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.collectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.collectOnce()
		}
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (p *SnapshotPoller) collectOnce() {
	p.runtimesMu.RLock()
	defer p.runtimesMu.RUnlock()

	for name, provider := range p.runtimes {
		stats := provider.Stats()
		p.liveTasks.WithLabelValues(name).Set(float64(stats.Live))
		p.injected.WithLabelValues(name).Set(float64(stats.Injected))
		p.parkedWorkers.WithLabelValues(name).Set(float64(stats.Parked))
		p.sleeping.WithLabelValues(name).Set(float64(stats.Sleeping))
		p.running.WithLabelValues(name).Set(boolGauge(stats.Running))
		p.finished.WithLabelValues(name).Set(float64(stats.Finished))
		p.failed.WithLabelValues(name).Set(float64(stats.Failed))

		for _, c := range stats.Stacks.Classes {
			size := strconv.Itoa(c.Size)
			p.stacksAllocated.WithLabelValues(name, size).Set(float64(c.Allocated))
			p.stacksInUse.WithLabelValues(name, size).Set(float64(c.InUse))
			p.stackWaiters.WithLabelValues(name, size).Set(float64(c.Waiters))
		}

		wp, ok := provider.(WorkerSnapshotProvider)
		if !ok {
			continue
		}
		for _, w := range wp.WorkerStats() {
			id := strconv.Itoa(w.ID)
			p.workerQueued.WithLabelValues(name, id).Set(float64(w.Queued))
			p.workerExecuted.WithLabelValues(name, id).Set(float64(w.Executed))
			p.workerParked.WithLabelValues(name, id).Set(boolGauge(w.Parked))
		}
	}
}
