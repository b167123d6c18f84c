package core

import (
	"context"
)

// Task is the unit of deferred work (Closure).
// The context passed to the task carries the scheduler and the fiber the
// task is running on; primitives such as Event.Wait use it to suspend the
// fiber instead of blocking the worker goroutine.
type Task func(ctx context.Context)

// =============================================================================
// Attributes: Define task placement attributes (worker affinity)
// =============================================================================

const (
	// WorkerAny lets the scheduler place the task on any worker and allows
	// idle workers to steal it.
	WorkerAny = -1

	// WorkerCurrent pins the task to the worker the submitting fiber is
	// running on. Submitting with WorkerCurrent from outside a worker is
	// equivalent to WorkerAny.
	WorkerCurrent = -2
)

// Attributes describes placement constraints for a task.
// The zero value pins to worker 0; use DefaultAttributes() for "no
// preference".
type Attributes struct {
	// Worker is the affinity hint: WorkerAny, WorkerCurrent, or an explicit
	// worker index in [0, WorkerCount). Pinned tasks are never stolen.
	Worker int
}

// DefaultAttributes returns attributes with no placement preference.
func DefaultAttributes() Attributes {
	return Attributes{Worker: WorkerAny}
}

// AttrPinnedToCurrent returns attributes pinning the task to the worker the
// submitting fiber runs on.
func AttrPinnedToCurrent() Attributes {
	return Attributes{Worker: WorkerCurrent}
}

// AttrPinnedTo returns attributes pinning the task to a specific worker.
func AttrPinnedTo(worker int) Attributes {
	return Attributes{Worker: worker}
}

// TaskItem pairs a task with its placement attributes while queued.
type TaskItem struct {
	Task  Task
	Attrs Attributes
}

// =============================================================================
// Context Helpers
// =============================================================================

type schedulerKeyType struct{}
type fiberKeyType struct{}

var (
	schedulerKey schedulerKeyType
	fiberKey     fiberKeyType
)

// Bind returns a context carrying the scheduler so that primitives and the
// package-level scheduling helpers can resolve it. Tasks executed by a
// scheduler receive an already-bound context.
func (s *Scheduler) Bind(ctx context.Context) context.Context {
	return context.WithValue(ctx, schedulerKey, s)
}

// FromContext returns the scheduler bound to ctx, or nil if none is bound.
func FromContext(ctx context.Context) *Scheduler {
	if v := ctx.Value(schedulerKey); v != nil {
		return v.(*Scheduler)
	}
	return nil
}

// MustFromContext returns the scheduler bound to ctx.
// Panics if no scheduler is bound: submitting work without a scheduler is a
// programming defect, not a recoverable condition.
func MustFromContext(ctx context.Context) *Scheduler {
	s := FromContext(ctx)
	if s == nil {
		panic("fibersched: no scheduler bound to context. Call Scheduler.Bind() first.")
	}
	return s
}

func withFiber(ctx context.Context, f *fiber) context.Context {
	return context.WithValue(ctx, fiberKey, f)
}

func fiberFromContext(ctx context.Context) *fiber {
	if v := ctx.Value(fiberKey); v != nil {
		return v.(*fiber)
	}
	return nil
}

// CurrentWorker returns the index of the worker executing the calling task,
// or WorkerAny if the caller is not running on a scheduler worker.
func CurrentWorker(ctx context.Context) int {
	if f := fiberFromContext(ctx); f != nil {
		if w := f.attendedBy(); w != nil {
			return w.id
		}
	}
	return WorkerAny
}
