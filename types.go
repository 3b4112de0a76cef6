package fibers

import "github.com/Swind/go-fibers/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the fibers package for most use cases.

// Runtime schedules tasks onto a fixed set of workers.
type Runtime = core.Runtime

// RuntimeConfig configures a Runtime.
type RuntimeConfig = core.RuntimeConfig

// StackClass configures one stack size class.
type StackClass = core.StackClass

// TaskFunc is the body of a task.
type TaskFunc = core.TaskFunc

// TaskHandle refers to a spawned task.
type TaskHandle = core.TaskHandle

// TaskID is the stable id of a task.
type TaskID = core.TaskID

// TaskState is the lifecycle state of a task.
type TaskState = core.TaskState

// TaskFailure is the error of a task that panicked or returned an error.
type TaskFailure = core.TaskFailure

// SpawnOption configures a single Spawn.
type SpawnOption = core.SpawnOption

// Synchronization primitives usable from tasks and goroutines alike.
type (
	Mutex            = core.Mutex
	Cond             = core.Cond
	RwLock           = core.RwLock
	Barrier          = core.Barrier
	SpinWait         = core.SpinWait
	Logger           = core.Logger
	Metrics          = core.Metrics
	Field            = core.Field
	ExhaustionPolicy = core.ExhaustionPolicy
)

// Sequence runs posted work one item at a time on a Runtime.
type (
	Sequence        = core.Sequence
	SequenceFunc    = core.SequenceFunc
	RepeatingHandle = core.RepeatingHandle
)

// Task states
const (
	TaskCreated  = core.TaskCreated
	TaskRunnable = core.TaskRunnable
	TaskRunning  = core.TaskRunning
	TaskBlocked  = core.TaskBlocked
	TaskFinished = core.TaskFinished
)

// Stack exhaustion policies
const (
	ExhaustionWait = core.ExhaustionWait
	ExhaustionFail = core.ExhaustionFail
)

// Errors
var (
	ErrStackExhausted   = core.ErrStackExhausted
	ErrInvalidStackSize = core.ErrInvalidStackSize
	ErrRuntimeClosed    = core.ErrRuntimeClosed
	ErrNilTask          = core.ErrNilTask
	ErrContextMismatch  = core.ErrContextMismatch
	ErrSyncMisuse       = core.ErrSyncMisuse
	ErrTaskAbandoned    = core.ErrTaskAbandoned
	ErrSequenceClosed   = core.ErrSequenceClosed
)

// Constructors and task-facing operations
var (
	NewRuntime           = core.NewRuntime
	DefaultRuntimeConfig = core.DefaultRuntimeConfig
	LoadRuntimeConfig    = core.LoadRuntimeConfig
	NewMutex             = core.NewMutex
	NewCond              = core.NewCond
	NewRwLock            = core.NewRwLock
	NewBarrier           = core.NewBarrier
	NewSequence          = core.NewSequence
	CurrentSequence      = core.CurrentSequence
	WithName             = core.WithName
	WithStackSize        = core.WithStackSize
	Yield                = core.Yield
	Sleep                = core.Sleep
	Join                 = core.Join
	CurrentTask          = core.CurrentTask
	InTask               = core.InTask
	IsCanceled           = core.IsCanceled
	F                    = core.F
)
