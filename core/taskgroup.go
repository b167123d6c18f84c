package core

import (
	"context"
)

// TaskGroup tracks the lifecycle of a cohort of tasks, distinguishing
// "finished" from "parked". It is built from two WaitGroups: completed
// counts tasks not yet finished; completedOrSuspended counts tasks that are
// neither finished nor currently parked.
//
// The lifecycle calls for each task must follow
//
//	TaskStarted → (TaskAboutToBeSuspended → TaskAboutToBeResumed)* → TaskAboutToBeCompleted
//
// in that order. Out-of-order or missing calls leave waiters permanently
// blocked or underflow a WaitGroup; the group cannot detect this in general.
//
// The zero value is a usable empty group.
type TaskGroup struct {
	completed            WaitGroup
	completedOrSuspended WaitGroup
}

// NewTaskGroup creates an empty TaskGroup.
func NewTaskGroup() *TaskGroup {
	return &TaskGroup{}
}

// TaskStarted registers a new task with the group.
func (g *TaskGroup) TaskStarted() {
	g.completed.Add(1)
	g.completedOrSuspended.Add(1)
}

// TaskAboutToBeCompleted marks a task as finished. The task must not be
// parked when this is called.
func (g *TaskGroup) TaskAboutToBeCompleted() {
	g.completed.Done()
	g.completedOrSuspended.Done()
}

// TaskAboutToBeSuspended marks a task as parked (about to suspend on some
// other condition).
func (g *TaskGroup) TaskAboutToBeSuspended() {
	g.completedOrSuspended.Done()
}

// TaskAboutToBeResumed marks a parked task as running again.
func (g *TaskGroup) TaskAboutToBeResumed() {
	g.completedOrSuspended.Add(1)
}

// WaitForAllComplete suspends until every task in the group has called
// TaskAboutToBeCompleted.
func (g *TaskGroup) WaitForAllComplete(ctx context.Context) {
	g.completed.Wait(ctx)
}

// WaitForAllCompleteOrSuspended suspends until every task in the group is
// either finished or currently parked. Useful to detect that the group can
// make no further progress without external help (e.g., to decide whether
// more worker capacity is needed). A later Wait call blocks again if parked
// tasks have resumed since.
func (g *TaskGroup) WaitForAllCompleteOrSuspended(ctx context.Context) {
	g.completedOrSuspended.Wait(ctx)
}
