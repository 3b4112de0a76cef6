package prometheus

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Swind/go-fibers/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskFailedTotal     *prom.CounterVec
	taskRejectedTotal   *prom.CounterVec
	injectorDepth       *prom.GaugeVec
	stealTotal          *prom.CounterVec
	workerParkTotal     *prom.CounterVec
	stackExhaustedTotal *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "fibers"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.ExponentialBuckets(0.00001, 4, 12)
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Time from a task's first run to its completion in seconds.",
		Buckets:   buckets,
	}, []string{"runtime"})
	failedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_failed_total",
		Help:      "Total number of failed tasks by kind (error or panic).",
	}, []string{"runtime", "kind"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected spawns.",
	}, []string{"runtime", "reason"})
	depthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "injector_depth",
		Help:      "Tasks waiting in the global injector.",
	}, []string{"runtime"})
	stealVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "steal_total",
		Help:      "Total number of tasks taken from another worker.",
	}, []string{"runtime", "worker"})
	parkVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "worker_park_total",
		Help:      "Total number of times a worker parked for lack of work.",
	}, []string{"runtime", "worker"})
	exhaustedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "stack_exhausted_total",
		Help:      "Total number of stack requests that found their class exhausted.",
	}, []string{"runtime", "size"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if failedVec, err = registerCollector(reg, failedVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if depthVec, err = registerCollector(reg, depthVec); err != nil {
		return nil, err
	}
	if stealVec, err = registerCollector(reg, stealVec); err != nil {
		return nil, err
	}
	if parkVec, err = registerCollector(reg, parkVec); err != nil {
		return nil, err
	}
	if exhaustedVec, err = registerCollector(reg, exhaustedVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskFailedTotal:     failedVec,
		taskRejectedTotal:   rejectedVec,
		injectorDepth:       depthVec,
		stealTotal:          stealVec,
		workerParkTotal:     parkVec,
		stackExhaustedTotal: exhaustedVec,
	}, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(runtimeName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(runtimeName, "unknown")).Observe(duration.Seconds())
}

// RecordTaskFailure records a failed task.
func (m *MetricsExporter) RecordTaskFailure(runtimeName string, panicked bool) {
	if m == nil {
		return
	}
	kind := "error"
	if panicked {
		kind = "panic"
	}
	m.taskFailedTotal.WithLabelValues(normalizeLabel(runtimeName, "unknown"), kind).Inc()
}

// RecordQueueDepth records the injector depth.
func (m *MetricsExporter) RecordQueueDepth(runtimeName string, depth int) {
	if m == nil {
		return
	}
	m.injectorDepth.WithLabelValues(normalizeLabel(runtimeName, "unknown")).Set(float64(depth))
}

// RecordTaskRejected records spawn rejections.
func (m *MetricsExporter) RecordTaskRejected(runtimeName string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(runtimeName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordSteal records a successful steal by workerID.
func (m *MetricsExporter) RecordSteal(runtimeName string, workerID int) {
	if m == nil {
		return
	}
	m.stealTotal.WithLabelValues(normalizeLabel(runtimeName, "unknown"), strconv.Itoa(workerID)).Inc()
}

// RecordWorkerPark records workerID parking.
func (m *MetricsExporter) RecordWorkerPark(runtimeName string, workerID int) {
	if m == nil {
		return
	}
	m.workerParkTotal.WithLabelValues(normalizeLabel(runtimeName, "unknown"), strconv.Itoa(workerID)).Inc()
}

// RecordStackExhausted records an exhausted stack class.
func (m *MetricsExporter) RecordStackExhausted(runtimeName string, stackSize int) {
	if m == nil {
		return
	}
	m.stackExhaustedTotal.WithLabelValues(normalizeLabel(runtimeName, "unknown"), strconv.Itoa(stackSize)).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
