package core

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pelletier/go-toml/v2"
)

// ExhaustionPolicy decides what happens when a task needs a stack from a
// class that has none left.
type ExhaustionPolicy string

const (
	// ExhaustionWait parks the task until a stack of its class is released.
	ExhaustionWait ExhaustionPolicy = "wait"
	// ExhaustionFail makes Spawn return ErrStackExhausted, and fails tasks
	// that find the class exhausted when they first run.
	ExhaustionFail ExhaustionPolicy = "fail"
)

const (
	defaultRuntimeName        = "fibers"
	defaultLocalQueueCapacity = 256
	defaultStackSize          = 64 << 10
	defaultInitialStacks      = 16
	defaultMaxStacks          = 1 << 16
)

// RuntimeConfig holds configuration options for a Runtime.
// Zero fields are filled with defaults by Validate; handlers are optional.
type RuntimeConfig struct {
	// Name labels logs and metrics.
	Name string `toml:"name"`

	// Workers is the number of worker threads. Defaults to GOMAXPROCS.
	Workers int `toml:"workers"`

	// LocalQueueCapacity is the size of each worker's ring; a power of two.
	LocalQueueCapacity int `toml:"local_queue_capacity"`

	// StealRetries bounds the victims a seeking worker tries per round.
	// Defaults to Workers-1.
	StealRetries int `toml:"steal_retries"`

	// InjectorBatch is how many tasks a worker takes from the injector at
	// once. Defaults to half the local queue capacity.
	InjectorBatch int `toml:"injector_batch"`

	// DefaultStackSize is the stack size of tasks spawned without
	// WithStackSize.
	DefaultStackSize int `toml:"default_stack_size"`

	// StackClasses are the stack pool size classes.
	StackClasses []StackClass `toml:"stack_classes"`

	// Exhaustion is "wait" (default) or "fail".
	Exhaustion ExhaustionPolicy `toml:"exhaustion"`

	// LockOSThread wires every worker to its own OS thread.
	LockOSThread bool `toml:"lock_os_thread"`

	// PinWorkers sets the CPU affinity of worker i to CPU i modulo the CPU
	// count. Implies LockOSThread. Linux only.
	PinWorkers bool `toml:"pin_workers"`

	// HistoryCapacity is the number of finished tasks kept for RecentTasks.
	HistoryCapacity int `toml:"history_capacity"`

	PanicHandler        PanicHandler        `toml:"-"`
	Metrics             Metrics             `toml:"-"`
	RejectedTaskHandler RejectedTaskHandler `toml:"-"`
	Logger              Logger              `toml:"-"`
}

// DefaultRuntimeConfig returns a config with defaults and default handlers.
func DefaultRuntimeConfig() *RuntimeConfig {
	cfg := &RuntimeConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *RuntimeConfig) applyDefaults() {
	if c.Name == "" {
		c.Name = defaultRuntimeName
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
	if c.LocalQueueCapacity <= 0 {
		c.LocalQueueCapacity = defaultLocalQueueCapacity
	}
	if c.StealRetries <= 0 {
		c.StealRetries = max(c.Workers-1, 1)
	}
	if c.InjectorBatch <= 0 {
		c.InjectorBatch = max(c.LocalQueueCapacity/2, 1)
	}
	if c.DefaultStackSize <= 0 {
		c.DefaultStackSize = defaultStackSize
	}
	if len(c.StackClasses) == 0 {
		c.StackClasses = []StackClass{{
			Size:    c.DefaultStackSize,
			Initial: defaultInitialStacks,
			Target:  defaultInitialStacks,
			Max:     defaultMaxStacks,
		}}
	}
	if c.Exhaustion == "" {
		c.Exhaustion = ExhaustionWait
	}
	if c.PinWorkers {
		c.LockOSThread = true
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = defaultTaskHistoryCapacity
	}

	if c.PanicHandler == nil {
		c.PanicHandler = &DefaultPanicHandler{}
	}
	if c.Metrics == nil {
		c.Metrics = &NilMetrics{}
	}
	if c.Logger == nil {
		c.Logger = NewNoOpLogger()
	}
	if c.RejectedTaskHandler == nil {
		c.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: c.Logger}
	}
}

// Validate fills defaults and checks the config.
func (c *RuntimeConfig) Validate() error {
	c.applyDefaults()

	if q := c.LocalQueueCapacity; q < 2 || q&(q-1) != 0 {
		return fmt.Errorf("config: local_queue_capacity must be a power of two >= 2, got %d", q)
	}
	if c.InjectorBatch > c.LocalQueueCapacity {
		return fmt.Errorf("config: injector_batch %d exceeds local_queue_capacity %d", c.InjectorBatch, c.LocalQueueCapacity)
	}
	switch c.Exhaustion {
	case ExhaustionWait, ExhaustionFail:
	default:
		return fmt.Errorf("config: unknown exhaustion policy %q", c.Exhaustion)
	}
	fits := false
	for _, sc := range c.StackClasses {
		if sc.Size >= c.DefaultStackSize {
			fits = true
			break
		}
	}
	if !fits {
		return fmt.Errorf("config: default_stack_size %d: %w", c.DefaultStackSize, ErrInvalidStackSize)
	}
	return nil
}

// ParseRuntimeConfig decodes a TOML document into a validated config.
func ParseRuntimeConfig(data []byte) (*RuntimeConfig, error) {
	cfg := &RuntimeConfig{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRuntimeConfig reads and decodes a TOML config file.
func LoadRuntimeConfig(path string) (*RuntimeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return ParseRuntimeConfig(data)
}

// EncodeTOML encodes the config, without handlers, as TOML.
func (c *RuntimeConfig) EncodeTOML() ([]byte, error) {
	return toml.Marshal(c)
}
