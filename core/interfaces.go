package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics. The panic is still captured as
// a *TaskFailure and delivered to the task's joiners afterwards.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked task
	// - runtimeName: The name of the runtime the task ran on
	// - workerID: The ID of the worker that ran the task
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, runtimeName string, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler prints panic information to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, runtimeName string, workerID int, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Worker %d @ %s] Task panic: %v\nStack trace:\n%s", workerID, runtimeName, panicInfo, stackTrace)
}

// SilentPanicHandler ignores panics; joiners still observe them.
type SilentPanicHandler struct{}

// HandlePanic does nothing.
func (h *SilentPanicHandler) HandlePanic(ctx context.Context, runtimeName string, workerID int, panicInfo any, stackTrace []byte) {
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics collects scheduler metrics. Implementations can send them to a
// monitoring system such as Prometheus.
//
// Methods are called on worker goroutines and must be non-blocking and
// fast.
type Metrics interface {
	// RecordTaskDuration records the time from a task's first run to its
	// completion.
	RecordTaskDuration(runtimeName string, duration time.Duration)

	// RecordTaskFailure records a task that returned an error or panicked.
	RecordTaskFailure(runtimeName string, panicked bool)

	// RecordQueueDepth records the global injector depth.
	RecordQueueDepth(runtimeName string, depth int)

	// RecordTaskRejected records a spawn that was refused.
	RecordTaskRejected(runtimeName string, reason string)

	// RecordSteal records a task taken from another worker.
	RecordSteal(runtimeName string, workerID int)

	// RecordWorkerPark records a worker going to sleep for lack of work.
	RecordWorkerPark(runtimeName string, workerID int)

	// RecordStackExhausted records a stack request that found its class
	// exhausted.
	RecordStackExhausted(runtimeName string, stackSize int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(runtimeName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskFailure(runtimeName string, panicked bool)           {}
func (m *NilMetrics) RecordQueueDepth(runtimeName string, depth int)                {}
func (m *NilMetrics) RecordTaskRejected(runtimeName string, reason string)          {}
func (m *NilMetrics) RecordSteal(runtimeName string, workerID int)                  {}
func (m *NilMetrics) RecordWorkerPark(runtimeName string, workerID int)             {}
func (m *NilMetrics) RecordStackExhausted(runtimeName string, stackSize int)        {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when Spawn refuses a task. This happens when:
// - The runtime is shutting down
// - The stack class is exhausted and the exhaustion policy is "fail"
// - The task arena is full
//
// Implementations should be thread-safe as they may be called concurrently.
type RejectedTaskHandler interface {
	HandleRejectedTask(runtimeName string, reason string)
}

// DefaultRejectedTaskHandler logs rejected tasks through a Logger.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(runtimeName string, reason string) {
	logger := h.Logger
	if logger == nil {
		logger = NewNoOpLogger()
	}
	logger.Warn("task rejected", F("runtime", runtimeName), F("reason", reason))
}
