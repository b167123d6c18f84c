package core

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

// TestTaskGroup_WaitForAllComplete tests completion tracking
// Given: a group of 3 tasks gated on an event
// When: the tasks complete one by one
// Then: WaitForAllComplete returns only after the last completion
func TestTaskGroup_WaitForAllComplete(t *testing.T) {
	// Arrange
	s := newTestScheduler(t, 2)
	ctx := s.Bind(context.Background())

	group := NewTaskGroup()
	gate := NewEvent(ManualReset)
	var completions atomic.Int32

	for i := 0; i < 3; i++ {
		group.TaskStarted()
		s.Enqueue(ctx, func(taskCtx context.Context) {
			gate.Wait(taskCtx)
			completions.Add(1)
			group.TaskAboutToBeCompleted()
		})
	}

	waitDone := make(chan struct{})
	go func() {
		group.WaitForAllComplete(context.Background())
		close(waitDone)
	}()

	select {
	case <-waitDone:
		t.Fatal("WaitForAllComplete returned before any task completed")
	case <-time.After(50 * time.Millisecond):
	}

	// Act
	gate.Signal()

	// Assert
	select {
	case <-waitDone:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForAllComplete did not return")
	}
	if got := completions.Load(); got != 3 {
		t.Errorf("completions when wait returned: got = %d, want 3", got)
	}
}

// TestTaskGroup_WaitForAllCompleteOrSuspended tests stall detection
// Given: a group with one task parked on an external condition
// When: the task suspends
// Then: WaitForAllCompleteOrSuspended returns while WaitForAllComplete
// still blocks, and a fresh wait blocks again after the task resumes
func TestTaskGroup_WaitForAllCompleteOrSuspended(t *testing.T) {
	s := newTestScheduler(t, 2)
	ctx := s.Bind(context.Background())

	group := NewTaskGroup()
	gate := NewEvent(ManualReset)
	var resumed atomic.Bool
	var completed atomic.Bool

	group.TaskStarted()
	s.Enqueue(ctx, func(taskCtx context.Context) {
		group.TaskAboutToBeSuspended()
		gate.Wait(taskCtx)
		group.TaskAboutToBeResumed()
		resumed.Store(true)

		// Hold after resuming so the re-block below is observable.
		time.Sleep(100 * time.Millisecond)

		completed.Store(true)
		group.TaskAboutToBeCompleted()
	})

	// The parked task counts as "suspended": this wait must return.
	stallDone := make(chan struct{})
	go func() {
		group.WaitForAllCompleteOrSuspended(context.Background())
		close(stallDone)
	}()
	select {
	case <-stallDone:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitForAllCompleteOrSuspended did not return for a parked task")
	}
	if completed.Load() {
		t.Fatal("task completed before the stall wait returned; test setup broken")
	}

	// Resume the task; a fresh wait must block until it completes.
	gate.Signal()
	waitFor(t, 2*time.Second, func() bool { return resumed.Load() }, "task to resume")

	blockDone := make(chan struct{})
	go func() {
		group.WaitForAllCompleteOrSuspended(context.Background())
		close(blockDone)
	}()

	select {
	case <-blockDone:
		if !completed.Load() {
			t.Fatal("fresh wait returned while the resumed task was still running")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fresh wait did not return after completion")
	}

	group.WaitForAllComplete(context.Background())
}

// TestTaskGroup_CompletedTaskLeavesBothCounts tests that completion clears
// both trackers
// Given: a task that starts and completes without ever suspending
// When: both wait operations are called afterwards
// Then: both return immediately
func TestTaskGroup_CompletedTaskLeavesBothCounts(t *testing.T) {
	group := NewTaskGroup()

	group.TaskStarted()
	group.TaskAboutToBeCompleted()

	done := make(chan struct{})
	go func() {
		group.WaitForAllComplete(context.Background())
		group.WaitForAllCompleteOrSuspended(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait operations blocked after the only task completed")
	}
}
