package fibersched

import "github.com/Swind/go-fiber-scheduler/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the fibersched package for most use cases.

// Task is the unit of deferred work (Closure)
type Task = core.Task

// Attributes defines task placement attributes (worker affinity)
type Attributes = core.Attributes

// Scheduler owns the worker pool and the fiber runtime
type Scheduler = core.Scheduler

// SchedulerConfig holds configuration options for Scheduler
type SchedulerConfig = core.SchedulerConfig

// Event is a Manual/Auto reset signal primitive
type Event = core.Event

// EventMode selects the reset behavior of an Event
type EventMode = core.EventMode

// WaitGroup is a countdown join barrier with fiber-aware waiting
type WaitGroup = core.WaitGroup

// TaskGroup tracks the lifecycle of a cohort of tasks
type TaskGroup = core.TaskGroup

// Event mode constants
const (
	ManualReset EventMode = core.ManualReset
	AutoReset   EventMode = core.AutoReset
)

// Worker affinity constants
const (
	WorkerAny     = core.WorkerAny
	WorkerCurrent = core.WorkerCurrent
)

// Convenience functions for creating Attributes
var (
	DefaultAttributes   = core.DefaultAttributes
	AttrPinnedToCurrent = core.AttrPinnedToCurrent
	AttrPinnedTo        = core.AttrPinnedTo
)

// Constructors re-exported for users who only import this package
var (
	NewScheduler           = core.NewScheduler
	NewSchedulerWithConfig = core.NewSchedulerWithConfig
	NewEvent               = core.NewEvent
	NewWaitGroup           = core.NewWaitGroup
	NewTaskGroup           = core.NewTaskGroup
	DefaultSchedulerConfig = core.DefaultSchedulerConfig
)

// Scheduling entry points resolving the scheduler bound to the context
var (
	Schedule               = core.Schedule
	ScheduleWithAttributes = core.ScheduleWithAttributes
	FromContext            = core.FromContext
	MustFromContext        = core.MustFromContext
	CurrentWorker          = core.CurrentWorker
)
