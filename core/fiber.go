package core

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// fiberYield is what a fiber reports to its attending worker when it hands
// the worker back.
type fiberYield int

const (
	// fiberDone: the task ran to completion; the fiber is free for reuse.
	fiberDone fiberYield = iota

	// fiberSuspended: the task parked on a wait. The fiber is now owned by
	// the waiter list it registered with; the worker moves on.
	fiberSuspended
)

// fiber is a cooperative execution context. It is a pooled goroutine that
// only makes progress while some worker attends it: the worker hands it a
// task (or a resume token) and then blocks on the yield channel until the
// fiber either finishes or suspends. At most one task runs on a fiber at any
// instant, and a suspended fiber is never reused until resumed to completion.
//
// The channel handoffs establish the happens-before edges the primitives
// rely on: everything the signalling side wrote before Signal/Done is
// visible to the fiber when it resumes.
type fiber struct {
	id uint64
	s  *Scheduler

	// tasks delivers at most one new task per attendance. Closed on
	// scheduler teardown to let the goroutine exit.
	tasks chan TaskItem

	// resume is buffered with capacity 1 so the worker that picks up a
	// ready fiber never blocks delivering the wake-up, even if the fiber
	// has not finished parking yet.
	resume chan struct{}

	// yield reports done/suspended transitions. Unbuffered: exactly one
	// attending worker receives each transition.
	yield chan fiberYield

	// worker is the worker currently attending this fiber. Written by the
	// attending worker right before it hands control over; read by the
	// fiber while running. Atomic because an early signal can let a second
	// worker start attending while the fiber is still parking.
	worker atomic.Pointer[worker]
}

func (f *fiber) attendedBy() *worker {
	return f.worker.Load()
}

func (f *fiber) workerID() int {
	if w := f.worker.Load(); w != nil {
		return w.id
	}
	return WorkerAny
}

// run is the fiber goroutine main loop. One iteration per executed task.
func (f *fiber) run() {
	for item := range f.tasks {
		f.execute(item)
		f.yield <- fiberDone
	}
}

// execute runs a single task with panic recovery.
func (f *fiber) execute(item TaskItem) {
	ctx := withFiber(f.s.baseCtx, f)
	start := time.Now()

	defer func() {
		f.s.metrics.RecordTaskDuration(f.workerID(), time.Since(start))
		f.s.onTaskEnd()

		if rec := recover(); rec != nil {
			f.s.metrics.RecordTaskPanic(f.workerID(), rec)
			f.s.panicHandler.HandlePanic(ctx, f.workerID(), rec, debug.Stack())
		}
	}()

	f.s.onTaskStart()
	item.Task(ctx)
}

// suspendCurrent parks the calling fiber: the attending worker is released
// to pick other work, and the fiber goroutine blocks until some worker
// resumes it. Must only be called after the fiber has been registered with
// a waiter list that will eventually call Scheduler.enqueueReadyFiber.
func (f *fiber) suspendCurrent() {
	f.s.metricSuspended.Add(1)
	f.s.metrics.RecordFiberSuspended(f.workerID())
	f.yield <- fiberSuspended
	<-f.resume
	f.s.metricSuspended.Add(-1)
}

// =============================================================================
// Fiber pool
// =============================================================================

// fiberPool retains finished fibers for reuse so steady-state scheduling
// does not spawn a goroutine per task.
type fiberPool struct {
	s       *Scheduler
	maxIdle int

	mu     sync.Mutex
	free   []*fiber
	nextID uint64
	total  int
	closed bool
}

func newFiberPool(s *Scheduler, maxIdle int) *fiberPool {
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdleFibers
	}
	return &fiberPool{s: s, maxIdle: maxIdle}
}

// get returns a free fiber or spawns a new one.
func (p *fiberPool) get() *fiber {
	p.mu.Lock()
	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return f
	}
	p.nextID++
	p.total++
	f := &fiber{
		id:     p.nextID,
		s:      p.s,
		tasks:  make(chan TaskItem),
		resume: make(chan struct{}, 1),
		yield:  make(chan fiberYield),
	}
	p.mu.Unlock()

	go f.run()
	return f
}

// put returns a finished fiber to the pool, retiring it if the pool is full
// or the scheduler is tearing down.
func (p *fiberPool) put(f *fiber) {
	f.worker.Store(nil)

	p.mu.Lock()
	if p.closed || len(p.free) >= p.maxIdle {
		p.total--
		p.mu.Unlock()
		close(f.tasks)
		return
	}
	p.free = append(p.free, f)
	p.mu.Unlock()
}

// Count returns the number of live fiber goroutines (idle and executing).
func (p *fiberPool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// shutdown retires all idle fibers. Fibers mid-execution exit on their own
// once they finish and are put back.
func (p *fiberPool) shutdown() {
	p.mu.Lock()
	free := p.free
	p.free = nil
	p.total -= len(free)
	p.closed = true
	p.mu.Unlock()

	for _, f := range free {
		close(f.tasks)
	}
}

// External (non-fiber) waiters block on a plain channel instead of parking a
// fiber. This lets application goroutines outside the scheduler use the same
// primitives; only fibers get cooperative suspension.
type hostWaiter struct {
	ch chan struct{}
}

func newHostWaiter() *hostWaiter {
	return &hostWaiter{ch: make(chan struct{})}
}

func (w *hostWaiter) wake() {
	close(w.ch)
}

func (w *hostWaiter) block() {
	<-w.ch
}
