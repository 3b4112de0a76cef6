// Package capability is a versioned registry of shared implementations.
//
// A provider exports an implementation under a namespace, a name and a
// Version. A consumer resolves the name with the version it was written
// against and receives a Lease on the highest compatible export. Exports
// with live leases cannot be withdrawn.
package capability

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/do"

	"github.com/Swind/go-fibers/core"
)

// Descriptor describes one export.
type Descriptor struct {
	Namespace  string
	Name       string
	Version    Version
	Leases     int
	ExportedAt time.Time
}

// ID returns "namespace/name".
func (d Descriptor) ID() string {
	return d.Namespace + "/" + d.Name
}

func (d Descriptor) String() string {
	return d.ID() + "@" + d.Version.String()
}

type entry struct {
	Descriptor
	key string
}

// Registry holds exported capabilities. Implementations live in a
// samber/do injector as named values; the registry keeps the version index
// and lease counts on top of it.
type Registry struct {
	injector *do.Injector
	logger   core.Logger

	mu      sync.Mutex
	exports map[string][]*entry
	closed  bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(l core.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		logger:  core.NewNoOpLogger(),
		exports: make(map[string][]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.injector = do.NewWithOpts(&do.InjectorOpts{
		Logf: func(format string, args ...any) {
			r.logger.Debug(fmt.Sprintf(format, args...))
		},
	})
	return r
}

func capabilityID(namespace, name string) string {
	return namespace + "/" + name
}

func serviceKey(namespace, name string, v Version) string {
	return capabilityID(namespace, name) + "@" + v.String()
}

// Export registers impl under namespace/name at version v. Consumers must
// resolve it with the same type parameter T. An impl implementing
// do.Shutdownable is shut down when it is unexported or the registry shuts
// down.
func Export[T any](r *Registry, namespace, name string, v Version, impl T) error {
	if namespace == "" || name == "" {
		return fmt.Errorf("capability: namespace and name are required")
	}
	id := capabilityID(namespace, name)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRegistryClosed
	}
	for _, e := range r.exports[id] {
		if e.Version == v {
			return fmt.Errorf("%w: %s", ErrDuplicateExport, e.key)
		}
	}

	e := &entry{
		Descriptor: Descriptor{Namespace: namespace, Name: name, Version: v, ExportedAt: time.Now()},
		key:        serviceKey(namespace, name, v),
	}
	do.ProvideNamedValue(r.injector, e.key, impl)
	r.exports[id] = append(r.exports[id], e)
	r.logger.Info("capability exported", core.F("capability", e.key))
	return nil
}

// Resolve leases the highest export of namespace/name compatible with
// required. Failures are reported as *ResolutionError.
func Resolve[T any](r *Registry, namespace, name string, required Version) (*Lease[T], error) {
	id := capabilityID(namespace, name)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, &ResolutionError{Namespace: namespace, Name: name, Requested: required, Err: ErrRegistryClosed}
	}
	entries := r.exports[id]
	if len(entries) == 0 {
		r.mu.Unlock()
		return nil, &ResolutionError{Namespace: namespace, Name: name, Requested: required, Err: ErrCapabilityNotFound}
	}

	var best *entry
	available := make([]Version, 0, len(entries))
	for _, e := range entries {
		available = append(available, e.Version)
		if !Compatible(required, e.Version) {
			continue
		}
		if best == nil || e.Version.Compare(best.Version) > 0 {
			best = e
		}
	}
	if best == nil {
		r.mu.Unlock()
		slices.SortFunc(available, Version.Compare)
		return nil, &ResolutionError{Namespace: namespace, Name: name, Requested: required, Available: available, Err: ErrVersionMismatch}
	}
	best.Leases++
	r.mu.Unlock()

	value, err := do.InvokeNamed[T](r.injector, best.key)
	if err != nil {
		r.releaseLease(best)
		return nil, &ResolutionError{
			Namespace: namespace,
			Name:      name,
			Requested: required,
			Err:       fmt.Errorf("%w: %s as %T: %v", ErrTypeMismatch, best.key, (*T)(nil), err),
		}
	}

	l := &Lease[T]{
		id:         uuid.New(),
		descriptor: best.Descriptor,
		value:      value,
		release:    func() { r.releaseLease(best) },
	}
	r.logger.Debug("capability leased", core.F("capability", best.key), core.F("lease", l.id))
	return l, nil
}

func (r *Registry) releaseLease(e *entry) {
	r.mu.Lock()
	e.Leases--
	r.mu.Unlock()
}

// Unexport withdraws namespace/name at version v. It fails with
// ErrCapabilityInUse while leases on it are live.
func (r *Registry) Unexport(namespace, name string, v Version) error {
	id := capabilityID(namespace, name)

	r.mu.Lock()
	entries := r.exports[id]
	idx := slices.IndexFunc(entries, func(e *entry) bool { return e.Version == v })
	if idx < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCapabilityNotFound, serviceKey(namespace, name, v))
	}
	e := entries[idx]
	if e.Leases > 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s has %d live leases", ErrCapabilityInUse, e.key, e.Leases)
	}
	entries = slices.Delete(entries, idx, idx+1)
	if len(entries) == 0 {
		delete(r.exports, id)
	} else {
		r.exports[id] = entries
	}
	r.mu.Unlock()

	if err := do.ShutdownNamed(r.injector, e.key); err != nil {
		return fmt.Errorf("capability %s: shutdown: %w", e.key, err)
	}
	r.logger.Info("capability unexported", core.F("capability", e.key))
	return nil
}

// Exports lists every export, ordered by id then version.
func (r *Registry) Exports() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Descriptor, 0, len(r.exports))
	for _, entries := range r.exports {
		for _, e := range entries {
			out = append(out, e.Descriptor)
		}
	}
	slices.SortFunc(out, func(a, b Descriptor) int {
		if a.ID() != b.ID() {
			if a.ID() < b.ID() {
				return -1
			}
			return 1
		}
		return a.Version.Compare(b.Version)
	})
	return out
}

// Shutdown refuses further exports and resolutions and shuts down every
// exported implementation that supports it, newest export first. Live leases
// keep their values.
func (r *Registry) Shutdown() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	live := 0
	var all []*entry
	for _, entries := range r.exports {
		for _, e := range entries {
			live += e.Leases
			all = append(all, e)
		}
	}
	r.mu.Unlock()

	if live > 0 {
		r.logger.Warn("registry shut down with live leases", core.F("leases", live))
	}
	slices.SortFunc(all, func(a, b *entry) int { return b.ExportedAt.Compare(a.ExportedAt) })

	var errs []error
	for _, e := range all {
		if err := do.ShutdownNamed(r.injector, e.key); err != nil {
			errs = append(errs, fmt.Errorf("capability %s: shutdown: %w", e.key, err))
		}
	}
	return errors.Join(errs...)
}
