package fibers

import (
	"context"
	"time"

	"github.com/Swind/go-fibers/capability"
	"github.com/Swind/go-fibers/core"
)

// Capability coordinates of the task API.
const (
	APINamespace = "fibers"
	APIName      = "tasks"
)

// APIVersion is the version of TaskAPI exported by Export.
var APIVersion = capability.V(1, 0, 0)

// Unit is the value of results that carry no data.
type Unit struct{}

// TaskAPI is the task runtime as seen across the capability boundary.
// Every operation reports its outcome as a capability.Result; misuse and
// panics come back as errors instead of unwinding into the caller.
type TaskAPI interface {
	Spawn(ctx context.Context, fn TaskFunc, opts ...SpawnOption) capability.Result[TaskHandle]
	Join(ctx context.Context, h TaskHandle) capability.Result[any]
	Yield(ctx context.Context) capability.Result[Unit]
	Sleep(ctx context.Context, d time.Duration) capability.Result[Unit]

	NewMutex() *Mutex
	Lock(ctx context.Context, m *Mutex) capability.Result[Unit]
	TryLock(m *Mutex) capability.Result[bool]
	Unlock(m *Mutex) capability.Result[Unit]

	NewCond() *Cond
	Wait(ctx context.Context, c *Cond, m *Mutex) capability.Result[Unit]
	NotifyOne(c *Cond) capability.Result[bool]
	NotifyAll(c *Cond) capability.Result[int]

	Stats() core.RuntimeStats

	// Shutdown stops the runtime behind the API.
	Shutdown() error
}

type taskAPI struct {
	rt *core.Runtime
}

// NewTaskAPI wraps rt.
func NewTaskAPI(rt *Runtime) TaskAPI {
	return &taskAPI{rt: rt}
}

func unit(fn func() error) capability.Result[Unit] {
	return capability.Call(func() (Unit, error) {
		return Unit{}, fn()
	})
}

func (a *taskAPI) Spawn(ctx context.Context, fn TaskFunc, opts ...SpawnOption) capability.Result[TaskHandle] {
	return capability.Call(func() (TaskHandle, error) {
		return a.rt.Spawn(ctx, fn, opts...)
	})
}

func (a *taskAPI) Join(ctx context.Context, h TaskHandle) capability.Result[any] {
	return capability.Call(func() (any, error) {
		return h.Join(ctx)
	})
}

func (a *taskAPI) Yield(ctx context.Context) capability.Result[Unit] {
	return unit(func() error { return core.Yield(ctx) })
}

func (a *taskAPI) Sleep(ctx context.Context, d time.Duration) capability.Result[Unit] {
	return unit(func() error { return core.Sleep(ctx, d) })
}

func (a *taskAPI) NewMutex() *Mutex { return core.NewMutex() }

func (a *taskAPI) Lock(ctx context.Context, m *Mutex) capability.Result[Unit] {
	return unit(func() error {
		m.Lock(ctx)
		return nil
	})
}

func (a *taskAPI) TryLock(m *Mutex) capability.Result[bool] {
	return capability.Call(func() (bool, error) { return m.TryLock(), nil })
}

func (a *taskAPI) Unlock(m *Mutex) capability.Result[Unit] {
	return unit(func() error {
		m.Unlock()
		return nil
	})
}

func (a *taskAPI) NewCond() *Cond { return core.NewCond() }

func (a *taskAPI) Wait(ctx context.Context, c *Cond, m *Mutex) capability.Result[Unit] {
	return unit(func() error {
		c.Wait(ctx, m)
		return nil
	})
}

func (a *taskAPI) NotifyOne(c *Cond) capability.Result[bool] {
	return capability.Call(func() (bool, error) { return c.NotifyOne(), nil })
}

func (a *taskAPI) NotifyAll(c *Cond) capability.Result[int] {
	return capability.Call(func() (int, error) { return c.NotifyAll(), nil })
}

func (a *taskAPI) Stats() core.RuntimeStats { return a.rt.Stats() }

func (a *taskAPI) Shutdown() error { return a.rt.Shutdown() }

// Export publishes rt as TaskAPI under fibers/tasks at APIVersion. The
// runtime is shut down with the registry.
func Export(reg *capability.Registry, rt *Runtime) error {
	return capability.Export[TaskAPI](reg, APINamespace, APIName, APIVersion, NewTaskAPI(rt))
}

// Resolve leases the newest TaskAPI compatible with required.
func Resolve(reg *capability.Registry, required capability.Version) (*capability.Lease[TaskAPI], error) {
	return capability.Resolve[TaskAPI](reg, APINamespace, APIName, required)
}
