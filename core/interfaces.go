package core

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics during execution.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently
// from multiple workers.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task (carries the scheduler)
	// - workerID: The ID of the worker the task was running on
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler provides a basic panic handler that logs to stdout.
type DefaultPanicHandler struct{}

// HandlePanic prints panic information to stdout.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, workerID int, panicInfo any, stackTrace []byte) {
	fmt.Printf("[Worker %d] Panic: %v\nStack trace:\n%s", workerID, panicInfo, stackTrace)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution
// performance.
type Metrics interface {
	// RecordTaskDuration records how long a task ran on a worker, excluding
	// time spent suspended.
	RecordTaskDuration(workerID int, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(workerID int, panicInfo any)

	// RecordQueueDepth records the current depth of a worker's ready queue.
	RecordQueueDepth(workerID int, depth int)

	// RecordSteal records that thief stole a work item from victim.
	RecordSteal(thiefID, victimID int)

	// RecordFiberSuspended records that a fiber parked on a wait.
	RecordFiberSuspended(workerID int)

	// RecordFiberResumed records that a previously parked fiber was picked
	// up by a worker again.
	RecordFiberResumed(workerID int)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(workerID int, duration time.Duration) {}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(workerID int, panicInfo any) {}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(workerID int, depth int) {}

// RecordSteal is a no-op.
func (m *NilMetrics) RecordSteal(thiefID, victimID int) {}

// RecordFiberSuspended is a no-op.
func (m *NilMetrics) RecordFiberSuspended(workerID int) {}

// RecordFiberResumed is a no-op.
func (m *NilMetrics) RecordFiberResumed(workerID int) {}

// =============================================================================
// SchedulerConfig: Configuration for Scheduler
// =============================================================================

// SchedulerConfig holds configuration options for Scheduler.
// All handlers are optional; if not provided, default implementations will be used.
type SchedulerConfig struct {
	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// Metrics is called to record scheduler metrics. Defaults to NilMetrics.
	Metrics Metrics

	// Logger receives scheduler lifecycle events. Defaults to DefaultLogger.
	Logger Logger

	// MaxIdleFibers caps how many finished fibers are retained for reuse.
	// Zero means DefaultMaxIdleFibers.
	MaxIdleFibers int
}

// DefaultMaxIdleFibers is the number of idle fibers retained per scheduler
// when SchedulerConfig.MaxIdleFibers is zero.
const DefaultMaxIdleFibers = 64

// DefaultSchedulerConfig returns a config with default handlers.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		PanicHandler:  &DefaultPanicHandler{},
		Metrics:       &NilMetrics{},
		Logger:        NewDefaultLogger(),
		MaxIdleFibers: DefaultMaxIdleFibers,
	}
}
