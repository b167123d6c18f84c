package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// captureMetrics counts scheduler events for assertions.
type captureMetrics struct {
	NilMetrics
	steals    atomic.Int64
	suspends  atomic.Int64
	resumes   atomic.Int64
	durations atomic.Int64
}

func (m *captureMetrics) RecordSteal(thiefID, victimID int)              { m.steals.Add(1) }
func (m *captureMetrics) RecordFiberSuspended(workerID int)              { m.suspends.Add(1) }
func (m *captureMetrics) RecordFiberResumed(workerID int)                { m.resumes.Add(1) }
func (m *captureMetrics) RecordTaskDuration(w int, d time.Duration)      { m.durations.Add(1) }

// TestScheduler_NTasksAllRunExactlyOnce tests absence of lost or duplicated
// tasks under stealing
// Given: N independent tasks each incrementing a shared counter once
// When: all are submitted and joined
// Then: the counter equals N for any worker count
func TestScheduler_NTasksAllRunExactlyOnce(t *testing.T) {
	const n = 200

	for _, workers := range []int{1, 2, 8} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			s := newTestScheduler(t, workers)
			ctx := s.Bind(context.Background())

			var counter atomic.Int32
			join := NewWaitGroup(n)

			for i := 0; i < n; i++ {
				s.Enqueue(ctx, func(taskCtx context.Context) {
					counter.Add(1)
					join.Done()
				})
			}

			join.Wait(context.Background())

			if got := counter.Load(); got != n {
				t.Errorf("counter: got = %d, want %d", got, n)
			}
		})
	}
}

// TestScheduler_PinnedAffinity tests explicit worker pinning
// Given: a 4-worker scheduler and 20 tasks pinned to worker 1
// When: the tasks run
// Then: every task observes worker 1 as its executing worker
func TestScheduler_PinnedAffinity(t *testing.T) {
	s := newTestScheduler(t, 4)
	ctx := s.Bind(context.Background())

	const n = 20
	join := NewWaitGroup(n)
	var wrongWorker atomic.Int32

	for i := 0; i < n; i++ {
		s.EnqueueWithAttributes(ctx, func(taskCtx context.Context) {
			if CurrentWorker(taskCtx) != 1 {
				wrongWorker.Add(1)
			}
			join.Done()
		}, AttrPinnedTo(1))
	}

	join.Wait(context.Background())

	if got := wrongWorker.Load(); got != 0 {
		t.Errorf("tasks on wrong worker: got = %d, want 0", got)
	}
}

// TestScheduler_PinnedToCurrentWorker tests WorkerCurrent resolution
// Given: a parent task running on some worker
// When: it submits a child with AttrPinnedToCurrent
// Then: the child runs on the same worker
func TestScheduler_PinnedToCurrentWorker(t *testing.T) {
	s := newTestScheduler(t, 4)
	ctx := s.Bind(context.Background())

	join := NewWaitGroup(1)
	var parentWorker, childWorker atomic.Int32

	s.Enqueue(ctx, func(taskCtx context.Context) {
		parentWorker.Store(int32(CurrentWorker(taskCtx)))
		ScheduleWithAttributes(taskCtx, func(childCtx context.Context) {
			childWorker.Store(int32(CurrentWorker(childCtx)))
			join.Done()
		}, AttrPinnedToCurrent())
	})

	join.Wait(context.Background())

	if parentWorker.Load() != childWorker.Load() {
		t.Errorf("child worker: got = %d, want parent's %d", childWorker.Load(), parentWorker.Load())
	}
}

// TestScheduler_SingleWorkerDependencyNoDeadlock tests that suspension
// releases the worker
// Given: a 1-worker scheduler, a waiter task submitted before its signaller
// When: the waiter suspends on an event the second task signals
// Then: both complete (a blocking wait would deadlock the only worker)
func TestScheduler_SingleWorkerDependencyNoDeadlock(t *testing.T) {
	s := newTestScheduler(t, 1)
	ctx := s.Bind(context.Background())

	e := NewEvent(ManualReset)
	join := NewWaitGroup(2)

	s.Enqueue(ctx, func(taskCtx context.Context) {
		e.Wait(taskCtx)
		join.Done()
	})
	s.Enqueue(ctx, func(taskCtx context.Context) {
		e.Signal()
		join.Done()
	})

	done := make(chan struct{})
	go func() {
		join.Wait(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dependency chain deadlocked on a single worker")
	}
}

// TestScheduler_ManyMoreWaitersThanWorkers tests fiber multiplexing at scale
// Given: 100 tasks parked on one event with only 2 workers
// When: the event is signalled
// Then: all 100 complete
func TestScheduler_ManyMoreWaitersThanWorkers(t *testing.T) {
	s := newTestScheduler(t, 2)
	ctx := s.Bind(context.Background())

	const n = 100
	e := NewEvent(ManualReset)
	join := NewWaitGroup(n)

	for i := 0; i < n; i++ {
		s.Enqueue(ctx, func(taskCtx context.Context) {
			e.Wait(taskCtx)
			join.Done()
		})
	}

	waitFor(t, 5*time.Second, func() bool { return s.SuspendedFiberCount() == n }, "all fibers to park")

	e.Signal()
	join.Wait(context.Background())
}

// TestScheduler_WorkStealing tests that idle workers take over queued work
// Given: a busy worker 0 holding a batch of stealable tasks
// When: the batch is submitted from a task pinned to worker 0
// Then: other workers steal and execute part of the batch
func TestScheduler_WorkStealing(t *testing.T) {
	metrics := &captureMetrics{}
	s := NewSchedulerWithConfig(4, &SchedulerConfig{
		Metrics: metrics,
		Logger:  NewNoOpLogger(),
	})
	defer s.Shutdown()
	ctx := s.Bind(context.Background())

	const n = 100
	join := NewWaitGroup(n)
	var workersSeen sync.Map

	s.EnqueueWithAttributes(ctx, func(taskCtx context.Context) {
		// All children land on worker 0's deque; worker 0 stays busy
		// long enough for siblings to come stealing.
		for i := 0; i < n; i++ {
			Schedule(taskCtx, func(childCtx context.Context) {
				workersSeen.Store(CurrentWorker(childCtx), true)
				time.Sleep(time.Millisecond)
				join.Done()
			})
		}
	}, AttrPinnedTo(0))

	join.Wait(context.Background())

	distinct := 0
	workersSeen.Range(func(_, _ any) bool {
		distinct++
		return true
	})
	if distinct < 2 {
		t.Errorf("distinct executing workers: got = %d, want >= 2", distinct)
	}
	if metrics.steals.Load() == 0 {
		t.Error("steal count: got = 0, want > 0")
	}
}

// TestScheduler_RejectAfterShutdown tests submission during teardown
// Given: a scheduler that has begun shutting down
// When: a task is enqueued
// Then: the task is rejected and never runs
func TestScheduler_RejectAfterShutdown(t *testing.T) {
	s := NewSchedulerWithConfig(2, &SchedulerConfig{Logger: NewNoOpLogger()})
	s.Shutdown()

	var ran atomic.Bool
	s.Enqueue(context.Background(), func(ctx context.Context) {
		ran.Store(true)
	})

	time.Sleep(50 * time.Millisecond)
	if ran.Load() {
		t.Error("task ran after shutdown")
	}
}

// TestScheduler_ShutdownDrainsOutstandingWork tests the drain guarantee
// Given: 50 in-flight tasks
// When: Shutdown is called
// Then: it returns only after every task has finished
func TestScheduler_ShutdownDrainsOutstandingWork(t *testing.T) {
	s := NewSchedulerWithConfig(4, &SchedulerConfig{Logger: NewNoOpLogger()})
	ctx := s.Bind(context.Background())

	const n = 50
	var counter atomic.Int32

	for i := 0; i < n; i++ {
		s.Enqueue(ctx, func(taskCtx context.Context) {
			time.Sleep(time.Millisecond)
			counter.Add(1)
		})
	}

	s.Shutdown()

	if got := counter.Load(); got != n {
		t.Errorf("completed tasks when Shutdown returned: got = %d, want %d", got, n)
	}
}

// TestScheduler_ShutdownGracefulTimeout tests bounded teardown
// Given: a task parked on an event that is never signalled
// When: ShutdownGraceful is called with a short timeout
// Then: it returns an error instead of blocking forever
func TestScheduler_ShutdownGracefulTimeout(t *testing.T) {
	s := NewSchedulerWithConfig(2, &SchedulerConfig{Logger: NewNoOpLogger()})
	ctx := s.Bind(context.Background())

	e := NewEvent(ManualReset)
	s.Enqueue(ctx, func(taskCtx context.Context) {
		e.Wait(taskCtx) // never signalled
	})

	waitFor(t, 2*time.Second, func() bool { return s.SuspendedFiberCount() == 1 }, "task to park")

	err := s.ShutdownGraceful(100 * time.Millisecond)
	if err == nil {
		t.Error("ShutdownGraceful with stuck task: got = nil, want error")
	}
}

// TestScheduler_WaitIdle tests the host-side idle barrier
// Given: a batch of short tasks
// When: WaitIdle is called
// Then: it returns nil once everything has drained, and honors ctx timeout
// while work is still parked
func TestScheduler_WaitIdle(t *testing.T) {
	s := newTestScheduler(t, 2)
	ctx := s.Bind(context.Background())

	var counter atomic.Int32
	for i := 0; i < 10; i++ {
		s.Enqueue(ctx, func(taskCtx context.Context) {
			counter.Add(1)
		})
	}

	idleCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.WaitIdle(idleCtx); err != nil {
		t.Fatalf("WaitIdle: got error %v, want nil", err)
	}
	if got := counter.Load(); got != 10 {
		t.Errorf("counter after WaitIdle: got = %d, want 10", got)
	}

	// A parked task keeps the scheduler non-idle.
	e := NewEvent(ManualReset)
	s.Enqueue(ctx, func(taskCtx context.Context) {
		e.Wait(taskCtx)
	})
	waitFor(t, 2*time.Second, func() bool { return s.SuspendedFiberCount() == 1 }, "task to park")

	shortCtx, cancelShort := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancelShort()
	if err := s.WaitIdle(shortCtx); err == nil {
		t.Error("WaitIdle with parked task: got = nil, want deadline error")
	}

	e.Signal() // release so cleanup can drain
}

// TestScheduler_InvalidAffinityPanics tests affinity validation
// Given: a 2-worker scheduler
// When: a task is pinned to worker 7
// Then: EnqueueWithAttributes panics
func TestScheduler_InvalidAffinityPanics(t *testing.T) {
	s := newTestScheduler(t, 2)
	ctx := s.Bind(context.Background())

	defer func() {
		if recover() == nil {
			t.Error("out-of-range affinity: no panic, want panic")
		}
	}()

	s.EnqueueWithAttributes(ctx, func(taskCtx context.Context) {}, AttrPinnedTo(7))
}

// TestScheduler_ManyTasksWithAutoEventWakes tests exactly-once execution
// combined with auto-event wake counting under load
// Given: 500 tasks parked on one AutoReset event, 4 workers
// When: the event is signalled 250 times, then 250 more
// Then: exactly one task is released per signal and every task runs once
func TestScheduler_ManyTasksWithAutoEventWakes(t *testing.T) {
	s := newTestScheduler(t, 4)
	ctx := s.Bind(context.Background())

	const n = 500
	e := NewEvent(AutoReset)
	var released atomic.Int32
	join := NewWaitGroup(n)

	for i := 0; i < n; i++ {
		s.Enqueue(ctx, func(taskCtx context.Context) {
			e.Wait(taskCtx)
			released.Add(1)
			join.Done()
		})
	}

	waitFor(t, 5*time.Second, func() bool { return s.SuspendedFiberCount() == n }, "all tasks to park")

	for i := 0; i < n/2; i++ {
		e.Signal()
	}
	waitFor(t, 5*time.Second, func() bool { return released.Load() == n/2 }, "half the waiters to release")
	time.Sleep(50 * time.Millisecond)
	if got := released.Load(); got != n/2 {
		t.Fatalf("released after %d signals: got = %d, want %d", n/2, got, n/2)
	}

	for i := 0; i < n/2; i++ {
		e.Signal()
	}
	join.Wait(context.Background())

	if got := released.Load(); got != n {
		t.Errorf("total released: got = %d, want %d", got, n)
	}
}

// TestScheduler_ConcurrentEnqueueAndShutdownNeverStrandsTasks tests the
// submission-vs-teardown race
// Given: one goroutine enqueueing while another calls Shutdown
// When: the two race repeatedly
// Then: every accepted task is served before Shutdown returns; nothing is
// left stranded in a queue with no workers
func TestScheduler_ConcurrentEnqueueAndShutdownNeverStrandsTasks(t *testing.T) {
	for iter := 0; iter < 50; iter++ {
		s := NewSchedulerWithConfig(2, &SchedulerConfig{Logger: NewNoOpLogger()})
		ctx := s.Bind(context.Background())

		enqueuerDone := make(chan struct{})
		go func() {
			defer close(enqueuerDone)
			for i := 0; i < 100; i++ {
				s.Enqueue(ctx, func(taskCtx context.Context) {})
			}
		}()

		s.Shutdown()
		<-enqueuerDone

		if got := s.QueuedTaskCount(); got != 0 {
			t.Fatalf("iteration %d: queued after Shutdown: got = %d, want 0", iter, got)
		}
		if got := s.RunningTaskCount(); got != 0 {
			t.Fatalf("iteration %d: running after Shutdown: got = %d, want 0", iter, got)
		}
	}
}

// TestScheduler_ShutdownGracefulTimeoutClearsQueueCounts tests counter
// bookkeeping on the drop path
// Given: a single worker held by a long task and three tasks queued behind it
// When: ShutdownGraceful times out and drops the queued tasks
// Then: the queue depth reports zero afterwards
func TestScheduler_ShutdownGracefulTimeoutClearsQueueCounts(t *testing.T) {
	s := NewSchedulerWithConfig(1, &SchedulerConfig{Logger: NewNoOpLogger()})
	ctx := s.Bind(context.Background())

	var blockerStarted atomic.Bool
	s.Enqueue(ctx, func(taskCtx context.Context) {
		blockerStarted.Store(true)
		time.Sleep(500 * time.Millisecond) // holds the only worker
	})
	waitFor(t, 2*time.Second, func() bool { return blockerStarted.Load() }, "blocker to start")

	for i := 0; i < 3; i++ {
		s.Enqueue(ctx, func(taskCtx context.Context) {})
	}
	if got := s.QueuedTaskCount(); got != 3 {
		t.Fatalf("queued behind blocker: got = %d, want 3", got)
	}

	err := s.ShutdownGraceful(100 * time.Millisecond)
	if err == nil {
		t.Fatal("ShutdownGraceful with stuck queue: got = nil, want error")
	}
	if got := s.QueuedTaskCount(); got != 0 {
		t.Errorf("queued after dropped shutdown: got = %d, want 0", got)
	}
}

// TestScheduler_SuspendResumeMetrics tests the observability hooks
// Given: a scheduler with capturing metrics and one suspending task
// When: the task parks and is resumed
// Then: suspend and resume counts match
func TestScheduler_SuspendResumeMetrics(t *testing.T) {
	metrics := &captureMetrics{}
	s := NewSchedulerWithConfig(2, &SchedulerConfig{
		Metrics: metrics,
		Logger:  NewNoOpLogger(),
	})
	defer s.Shutdown()
	ctx := s.Bind(context.Background())

	e := NewEvent(ManualReset)
	join := NewWaitGroup(1)

	s.Enqueue(ctx, func(taskCtx context.Context) {
		e.Wait(taskCtx)
		join.Done()
	})

	waitFor(t, 2*time.Second, func() bool { return metrics.suspends.Load() == 1 }, "suspension to be recorded")
	e.Signal()
	join.Wait(context.Background())

	waitFor(t, 2*time.Second, func() bool { return metrics.resumes.Load() == 1 }, "resumption to be recorded")
	if metrics.durations.Load() == 0 {
		t.Error("task duration samples: got = 0, want > 0")
	}
}
