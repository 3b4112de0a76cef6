package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Test PanicHandler
// =============================================================================

// TestPanicHandler is a mock panic handler for testing
type TestPanicHandler struct {
	mu    sync.Mutex
	calls []PanicCall
}

type PanicCall struct {
	RuntimeName string
	WorkerID    int
	PanicInfo   any
	HasTrace    bool
}

func NewTestPanicHandler() *TestPanicHandler {
	return &TestPanicHandler{calls: make([]PanicCall, 0)}
}

func (h *TestPanicHandler) HandlePanic(ctx context.Context, runtimeName string, workerID int, panicInfo any, stackTrace []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, PanicCall{
		RuntimeName: runtimeName,
		WorkerID:    workerID,
		PanicInfo:   panicInfo,
		HasTrace:    len(stackTrace) > 0,
	})
}

func (h *TestPanicHandler) GetCalls() []PanicCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]PanicCall(nil), h.calls...)
}

func (h *TestPanicHandler) CallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func TestDefaultPanicHandler(t *testing.T) {
	// Given: A DefaultPanicHandler
	handler := &DefaultPanicHandler{}

	// When: HandlePanic is called
	handler.HandlePanic(context.Background(), "test-runtime", 42, "test panic", []byte("stack trace"))

	// Then: No panic should occur (handler should not crash)
}

// =============================================================================
// Test Metrics
// =============================================================================

// TestMetrics is a mock metrics collector for testing
type TestMetrics struct {
	mu             sync.Mutex
	taskDurations  []time.Duration
	failures       []bool
	queueDepths    []int
	taskRejections []string
	steals         int
	parks          int
	exhausted      []int
}

func NewTestMetrics() *TestMetrics {
	return &TestMetrics{}
}

func (m *TestMetrics) RecordTaskDuration(runtimeName string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskDurations = append(m.taskDurations, duration)
}

func (m *TestMetrics) RecordTaskFailure(runtimeName string, panicked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, panicked)
}

func (m *TestMetrics) RecordQueueDepth(runtimeName string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepths = append(m.queueDepths, depth)
}

func (m *TestMetrics) RecordTaskRejected(runtimeName string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskRejections = append(m.taskRejections, reason)
}

func (m *TestMetrics) RecordSteal(runtimeName string, workerID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steals++
}

func (m *TestMetrics) RecordWorkerPark(runtimeName string, workerID int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parks++
}

func (m *TestMetrics) RecordStackExhausted(runtimeName string, stackSize int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exhausted = append(m.exhausted, stackSize)
}

func (m *TestMetrics) DurationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.taskDurations)
}

func (m *TestMetrics) Failures() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.failures...)
}

func (m *TestMetrics) Rejections() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.taskRejections...)
}

func (m *TestMetrics) Exhausted() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.exhausted...)
}

func TestNilMetrics(t *testing.T) {
	// Given: A NilMetrics
	metrics := &NilMetrics{}

	// When: All methods are called
	metrics.RecordTaskDuration("test-runtime", time.Second)
	metrics.RecordTaskFailure("test-runtime", true)
	metrics.RecordQueueDepth("test-runtime", 10)
	metrics.RecordTaskRejected("test-runtime", "shutdown")
	metrics.RecordSteal("test-runtime", 1)
	metrics.RecordWorkerPark("test-runtime", 1)
	metrics.RecordStackExhausted("test-runtime", 4096)

	// Then: No panic should occur (all methods are no-ops)
}

// =============================================================================
// Test RejectedTaskHandler
// =============================================================================

// TestRejectedTaskHandler is a mock rejected task handler for testing
type TestRejectedTaskHandler struct {
	mu         sync.Mutex
	rejections []TaskRejection
}

type TaskRejection struct {
	RuntimeName string
	Reason      string
}

func NewTestRejectedTaskHandler() *TestRejectedTaskHandler {
	return &TestRejectedTaskHandler{rejections: make([]TaskRejection, 0)}
}

func (h *TestRejectedTaskHandler) HandleRejectedTask(runtimeName string, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rejections = append(h.rejections, TaskRejection{RuntimeName: runtimeName, Reason: reason})
}

func (h *TestRejectedTaskHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rejections)
}

func TestDefaultRejectedTaskHandler(t *testing.T) {
	// Given: A DefaultRejectedTaskHandler without a logger
	handler := &DefaultRejectedTaskHandler{}

	// When: HandleRejectedTask is called
	handler.HandleRejectedTask("test-runtime", "shutdown")

	// Then: No panic should occur
}

// =============================================================================
// Custom handlers wired into a Runtime
// =============================================================================

// TestRuntime_WithCustomHandlers tests handler wiring
// Given: a runtime with test panic handler, metrics and rejection handler
// When: a task panics, a task fails, and a spawn is rejected after shutdown
// Then: each handler observes its event
func TestRuntime_WithCustomHandlers(t *testing.T) {
	// Arrange
	panics := NewTestPanicHandler()
	metrics := NewTestMetrics()
	rejections := NewTestRejectedTaskHandler()
	cfg := DefaultRuntimeConfig()
	cfg.Name = "handlers"
	cfg.Workers = 2
	cfg.PanicHandler = panics
	cfg.Metrics = metrics
	cfg.RejectedTaskHandler = rejections
	rt := newStartedRuntime(t, cfg)
	ctx := context.Background()

	// Act
	h1, _ := rt.Spawn(ctx, func(ctx context.Context) (any, error) { panic("boom") })
	h2, _ := rt.Spawn(ctx, func(ctx context.Context) (any, error) { return nil, context.Canceled })
	_, _ = h1.Join(ctx)
	_, _ = h2.Join(ctx)
	if err := rt.Shutdown(); err != nil {
		t.Fatalf("Shutdown error = %v", err)
	}
	_, spawnErr := rt.Spawn(ctx, func(ctx context.Context) (any, error) { return nil, nil })

	// Assert
	calls := panics.GetCalls()
	if len(calls) != 1 || calls[0].PanicInfo != "boom" || calls[0].RuntimeName != "handlers" || !calls[0].HasTrace {
		t.Fatalf("panic calls = %+v, want one boom call with trace", calls)
	}
	failures := metrics.Failures()
	if len(failures) != 2 {
		t.Fatalf("failures = %v, want 2 entries", failures)
	}
	if got := metrics.DurationCount(); got != 2 {
		t.Errorf("durations recorded = %d, want 2", got)
	}
	if spawnErr == nil || rejections.Count() != 1 {
		t.Errorf("rejections = %d (err %v), want 1", rejections.Count(), spawnErr)
	}
	if got := metrics.Rejections(); len(got) != 1 {
		t.Errorf("rejection metrics = %v, want 1 entry", got)
	}
}
