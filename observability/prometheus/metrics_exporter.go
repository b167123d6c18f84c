package prometheus

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Swind/go-fiber-scheduler/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	queueDepth          *prom.GaugeVec
	stealTotal          *prom.CounterVec
	fiberSuspendedTotal *prom.CounterVec
	fiberResumedTotal   *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "fibersched"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"worker"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"worker"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current ready-queue depth per worker.",
	}, []string{"worker"})
	stealVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "steal_total",
		Help:      "Total number of work items stolen.",
	}, []string{"thief", "victim"})
	suspendedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "fiber_suspended_total",
		Help:      "Total number of fiber suspensions.",
	}, []string{"worker"})
	resumedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "fiber_resumed_total",
		Help:      "Total number of fiber resumptions.",
	}, []string{"worker"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if stealVec, err = registerCollector(reg, stealVec); err != nil {
		return nil, err
	}
	if suspendedVec, err = registerCollector(reg, suspendedVec); err != nil {
		return nil, err
	}
	if resumedVec, err = registerCollector(reg, resumedVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		queueDepth:          queueDepthVec,
		stealTotal:          stealVec,
		fiberSuspendedTotal: suspendedVec,
		fiberResumedTotal:   resumedVec,
	}, nil
}

// RecordTaskDuration records task execution duration.
func (m *MetricsExporter) RecordTaskDuration(workerID int, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(workerLabel(workerID)).Observe(duration.Seconds())
}

// RecordTaskPanic records task panic events.
func (m *MetricsExporter) RecordTaskPanic(workerID int, panicInfo any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(workerLabel(workerID)).Inc()
}

// RecordQueueDepth records per-worker ready-queue depth.
func (m *MetricsExporter) RecordQueueDepth(workerID int, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(workerLabel(workerID)).Set(float64(depth))
}

// RecordSteal records a successful steal.
func (m *MetricsExporter) RecordSteal(thiefID, victimID int) {
	if m == nil {
		return
	}
	m.stealTotal.WithLabelValues(workerLabel(thiefID), workerLabel(victimID)).Inc()
}

// RecordFiberSuspended records a fiber parking on a wait.
func (m *MetricsExporter) RecordFiberSuspended(workerID int) {
	if m == nil {
		return
	}
	m.fiberSuspendedTotal.WithLabelValues(workerLabel(workerID)).Inc()
}

// RecordFiberResumed records a parked fiber being picked up again.
func (m *MetricsExporter) RecordFiberResumed(workerID int) {
	if m == nil {
		return
	}
	m.fiberResumedTotal.WithLabelValues(workerLabel(workerID)).Inc()
}

func workerLabel(workerID int) string {
	if workerID < 0 {
		return "none"
	}
	return strconv.Itoa(workerID)
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
