package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Scheduler owns a fixed pool of workers, each multiplexing many cooperative
// fibers. Tasks are pushed onto a worker's deque (or a worker's pinned queue
// when affinity demands it) and idle workers steal from busy siblings.
//
// Placement notes:
//   - Attributes.Worker governs the initial placement only. After a task
//     suspends, it may be resumed by any worker.
//   - Tasks submitted from inside a task land on the submitting worker's
//     deque for locality; they remain stealable.
//
// Teardown: Shutdown blocks until every outstanding task (queued, running,
// or suspended) has finished, then stops the workers. ShutdownGraceful is
// the bounded variant; on timeout it drops still-queued tasks, abandons
// parked fibers and returns an error. Outstanding work is never dropped
// silently.
type Scheduler struct {
	workers []*worker
	signal  chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	baseCtx context.Context
	fibers  *fiberPool

	nextWorker atomic.Uint64 // round-robin cursor for external submissions
	stealSeed  atomic.Uint64

	panicHandler PanicHandler
	metrics      Metrics
	logger       Logger

	metricQueued    atomic.Int32 // items sitting in worker queues
	metricActive    atomic.Int32 // tasks started and not yet finished
	metricSuspended atomic.Int32 // fibers currently parked
	outstanding     atomic.Int64 // accepted tasks not yet finished

	shuttingDown atomic.Bool
	stopOnce     sync.Once
}

type worker struct {
	id     int
	s      *Scheduler
	deque  *workDeque // stealable ready queue
	pinned *workDeque // affinity-pinned work, never stolen
}

// NewScheduler creates a scheduler with the given number of workers and
// default config. Workers start immediately.
func NewScheduler(workerCount int) *Scheduler {
	return NewSchedulerWithConfig(workerCount, DefaultSchedulerConfig())
}

// NewSchedulerWithConfig creates a scheduler with the given number of
// workers. Panics if workerCount < 1.
func NewSchedulerWithConfig(workerCount int, config *SchedulerConfig) *Scheduler {
	if workerCount < 1 {
		panic("Scheduler: workerCount must be at least 1")
	}

	s := &Scheduler{
		signal: make(chan struct{}, workerCount*2),
		stopCh: make(chan struct{}),
	}

	// Apply config
	maxIdleFibers := 0
	if config != nil {
		s.panicHandler = config.PanicHandler
		s.metrics = config.Metrics
		s.logger = config.Logger
		maxIdleFibers = config.MaxIdleFibers
	}

	// Use defaults if not provided
	if s.panicHandler == nil {
		s.panicHandler = &DefaultPanicHandler{}
	}
	if s.metrics == nil {
		s.metrics = &NilMetrics{}
	}
	if s.logger == nil {
		s.logger = NewDefaultLogger()
	}

	s.baseCtx = s.Bind(context.Background())
	s.fibers = newFiberPool(s, maxIdleFibers)

	s.workers = make([]*worker, workerCount)
	for i := range s.workers {
		s.workers[i] = &worker{
			id:     i,
			s:      s,
			deque:  newWorkDeque(),
			pinned: newWorkDeque(),
		}
	}

	for _, w := range s.workers {
		s.wg.Add(1)
		go w.loop()
	}

	s.logger.Debug("scheduler started", F("workers", workerCount))
	return s
}

// Enqueue submits a task with default attributes.
func (s *Scheduler) Enqueue(ctx context.Context, task Task) {
	s.EnqueueWithAttributes(ctx, task, DefaultAttributes())
}

// EnqueueWithAttributes submits a task with explicit placement attributes.
// ctx is used to resolve WorkerCurrent affinity and submitter locality;
// callers outside any task pass context.Background().
func (s *Scheduler) EnqueueWithAttributes(ctx context.Context, task Task, attrs Attributes) {
	if task == nil {
		panic("Scheduler: Enqueue called with nil task")
	}
	if s.shuttingDown.Load() {
		s.logger.Warn("task rejected", F("reason", "shutting down"))
		return
	}

	target, pin := s.resolveTarget(ctx, attrs)

	// Claim the task before pushing, then re-check the flag: Shutdown may
	// have observed zero outstanding work and stopped the workers between
	// the check above and the claim. Once the claim is visible before the
	// flag is set, the drain loop waits for the pushed task.
	s.outstanding.Add(1)
	if s.shuttingDown.Load() {
		s.outstanding.Add(-1)
		s.logger.Warn("task rejected", F("reason", "shutting down"))
		return
	}
	s.pushItem(target, workItem{task: TaskItem{Task: task, Attrs: attrs}}, pin)
}

// resolveTarget maps attributes plus submitter identity to a worker index
// and whether the item goes on the unstealable queue.
func (s *Scheduler) resolveTarget(ctx context.Context, attrs Attributes) (int, bool) {
	switch {
	case attrs.Worker >= 0:
		if attrs.Worker >= len(s.workers) {
			panic(fmt.Sprintf("Scheduler: affinity worker %d out of range [0, %d)", attrs.Worker, len(s.workers)))
		}
		return attrs.Worker, true
	case attrs.Worker == WorkerCurrent:
		if current := CurrentWorker(ctx); current >= 0 {
			return current, true
		}
		// Not on a worker: fall through to free placement.
	case attrs.Worker != WorkerAny:
		panic(fmt.Sprintf("Scheduler: invalid worker affinity %d", attrs.Worker))
	}

	// Prefer the submitting worker's own deque for locality.
	if current := CurrentWorker(ctx); current >= 0 {
		return current, false
	}
	return int(s.nextWorker.Add(1)) % len(s.workers), false
}

func (s *Scheduler) pushItem(target int, item workItem, pin bool) {
	w := s.workers[target]
	if pin {
		w.pinned.Push(item)
	} else {
		w.deque.Push(item)
	}
	s.metricQueued.Add(1)
	s.metrics.RecordQueueDepth(w.id, w.deque.Len()+w.pinned.Len())

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full; enough wake-up hints are already pending.
	}
}

// enqueueReadyFiber marks a suspended fiber runnable again. Called by the
// signalling side of Event/WaitGroup; may run on any goroutine.
func (s *Scheduler) enqueueReadyFiber(f *fiber) {
	target := int(s.nextWorker.Add(1)) % len(s.workers)
	s.pushItem(target, workItem{fiber: f}, false)
}

func (s *Scheduler) onTaskStart() {
	s.metricActive.Add(1)
}

func (s *Scheduler) onTaskEnd() {
	s.metricActive.Add(-1)
	s.outstanding.Add(-1)
}

// =============================================================================
// Worker loop
// =============================================================================

func (w *worker) loop() {
	defer w.s.wg.Done()

	for {
		item, ok := w.next()
		if !ok {
			return
		}
		w.runItem(item)
	}
}

// next returns the next work item: pinned queue first, then own deque, then
// stealing, then blocking on the wake-up hint channel.
func (w *worker) next() (workItem, bool) {
	for {
		if item, ok := w.pinned.PopFront(); ok {
			w.s.metricQueued.Add(-1)
			return item, true
		}
		if item, ok := w.deque.PopFront(); ok {
			w.s.metricQueued.Add(-1)
			return item, true
		}
		if item, ok := w.steal(); ok {
			w.s.metricQueued.Add(-1)
			return item, true
		}

		select {
		case <-w.s.signal:
			continue
		case <-w.s.stopCh:
			return workItem{}, false
		}
	}
}

// steal scans sibling deques from a rotating start index and removes one
// item from the back of the first non-empty one.
func (w *worker) steal() (workItem, bool) {
	n := len(w.s.workers)
	if n < 2 {
		return workItem{}, false
	}

	start := int(w.s.stealSeed.Add(1)) % n
	for i := 0; i < n; i++ {
		victim := w.s.workers[(start+i)%n]
		if victim == w {
			continue
		}
		if item, ok := victim.deque.Steal(); ok {
			w.s.metrics.RecordSteal(w.id, victim.id)
			return item, true
		}
	}
	return workItem{}, false
}

// runItem executes one work item: start a task on a fiber, or resume a
// parked fiber. Either way the worker then attends the fiber until it
// finishes or suspends again.
func (w *worker) runItem(item workItem) {
	if f := item.fiber; f != nil {
		f.worker.Store(w)
		w.s.metrics.RecordFiberResumed(w.id)
		f.resume <- struct{}{}
		w.attend(f)
		return
	}

	f := w.s.fibers.get()
	f.worker.Store(w)
	f.tasks <- item.task
	w.attend(f)
}

// attend blocks until the fiber hands the worker back.
func (w *worker) attend(f *fiber) {
	switch <-f.yield {
	case fiberDone:
		w.s.fibers.put(f)
	case fiberSuspended:
		// The fiber is parked in some waiter list now; nothing to do.
	}
}

// =============================================================================
// Introspection
// =============================================================================

// WorkerCount returns the number of workers.
func (s *Scheduler) WorkerCount() int { return len(s.workers) }

// QueuedTaskCount returns the number of items waiting in worker queues
// (new tasks plus ready fibers).
func (s *Scheduler) QueuedTaskCount() int { return int(s.metricQueued.Load()) }

// RunningTaskCount returns the number of tasks started and not yet finished,
// including tasks currently suspended.
func (s *Scheduler) RunningTaskCount() int { return int(s.metricActive.Load()) }

// SuspendedFiberCount returns the number of fibers currently parked on a wait.
func (s *Scheduler) SuspendedFiberCount() int { return int(s.metricSuspended.Load()) }

// FiberCount returns the number of live fiber goroutines (idle and active).
func (s *Scheduler) FiberCount() int { return s.fibers.Count() }

// IsShuttingDown returns true once Shutdown or ShutdownGraceful has begun.
func (s *Scheduler) IsShuttingDown() bool { return s.shuttingDown.Load() }

// =============================================================================
// Lifecycle
// =============================================================================

// WaitIdle blocks the calling goroutine until the scheduler has no
// outstanding work (nothing queued, running, or suspended), or ctx is done.
// This is a host-side helper, not a fiber suspension point; do not call it
// from inside a task.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for {
		if s.outstanding.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown stops accepting new tasks, blocks until all outstanding work has
// drained, then stops the workers and retires idle fibers. Safe to call
// multiple times; later calls return once the first completes. Must not be
// called from inside a task.
func (s *Scheduler) Shutdown() {
	s.shuttingDown.Store(true)
	s.stopOnce.Do(func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for s.outstanding.Load() != 0 {
			<-ticker.C
		}

		close(s.stopCh)
		s.wg.Wait()
		s.fibers.shutdown()
		s.logger.Debug("scheduler stopped")
	})
}

// ShutdownGraceful drains like Shutdown but gives up after timeout:
// still-queued tasks are dropped, parked fibers are abandoned (their
// goroutines leak until process exit), and an error is returned. The drop
// is logged; it is never silent.
func (s *Scheduler) ShutdownGraceful(timeout time.Duration) error {
	s.shuttingDown.Store(true)

	deadline := time.After(timeout)
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for s.outstanding.Load() != 0 {
		select {
		case <-deadline:
			dropped := 0
			for _, w := range s.workers {
				dropped += len(w.deque.Clear())
				dropped += len(w.pinned.Clear())
			}
			// Dropped items never run; keep the counters honest.
			s.metricQueued.Add(int32(-dropped))
			s.outstanding.Add(int64(-dropped))
			s.stopOnce.Do(func() {
				close(s.stopCh)
				s.wg.Wait()
				s.fibers.shutdown()
			})
			s.logger.Error("graceful shutdown timed out",
				F("timeout", timeout),
				F("droppedTasks", dropped),
				F("suspendedFibers", s.SuspendedFiberCount()))
			return fmt.Errorf("shutdown graceful timeout after %v, dropped %d queued tasks", timeout, dropped)
		case <-ticker.C:
		}
	}

	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.wg.Wait()
		s.fibers.shutdown()
		s.logger.Debug("scheduler stopped")
	})
	return nil
}

// =============================================================================
// Package-level scheduling entry points
// =============================================================================

// Schedule submits a task to the scheduler bound to ctx.
// Panics if no scheduler is bound.
func Schedule(ctx context.Context, task Task) {
	MustFromContext(ctx).Enqueue(ctx, task)
}

// ScheduleWithAttributes submits a task with explicit attributes to the
// scheduler bound to ctx. Panics if no scheduler is bound.
func ScheduleWithAttributes(ctx context.Context, task Task, attrs Attributes) {
	MustFromContext(ctx).EnqueueWithAttributes(ctx, task, attrs)
}
