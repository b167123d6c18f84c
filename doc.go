// Package fibersched provides a fiber-style cooperative task scheduler for Go.
//
// This library multiplexes a large number of lightweight tasks onto a small
// pool of workers. A task that blocks on one of the library's
// synchronization primitives yields its worker to other ready work instead
// of blocking it, so application code can express massively fine-grained
// parallelism (thousands of small units of work with frequent
// producer/consumer dependencies) without paying a goroutine-per-wait cost
// on the worker pool.
//
// # Quick Start
//
// Initialize the global scheduler at application startup:
//
//	fibersched.InitGlobalScheduler(4) // 4 workers
//	defer fibersched.ShutdownGlobalScheduler()
//
//	ctx := fibersched.GetGlobalScheduler().Bind(context.Background())
//
//	wg := core.NewWaitGroup(3)
//	for i := 0; i < 3; i++ {
//		core.Schedule(ctx, func(ctx context.Context) {
//			// Your code here
//			wg.Done()
//		})
//	}
//	wg.Wait(ctx)
//
// # Key Concepts
//
// Scheduler: owns the worker pool, accepts task submissions, and balances
// load across workers via stealing. A scheduler is bound to a
// context.Context with Bind; every scheduling entry point resolves it from
// there and fails fast if none is bound.
//
// Fiber: a cooperatively scheduled execution context. A task that calls
// Event.Wait, WaitGroup.Wait, Future.Get, or one of TaskGroup's wait
// operations while the condition is unsatisfied suspends its fiber; the
// worker resumes other ready fibers in the meantime, and the suspended
// fiber is picked up again (possibly by a different worker) once signalled.
// These are the only suspension points: there is no preemption, and a task
// that blocks the worker goroutine directly (e.g. on a syscall) starves
// every fiber co-resident on that worker.
//
// Event / WaitGroup / TaskGroup / Promise+Future: the synchronization
// primitives built on fiber suspension. All of them are also safe to use
// from ordinary goroutines outside the scheduler, where waiting blocks only
// the calling goroutine.
//
// # Error Handling
//
// Contract violations (WaitGroup underflow, setting a Promise twice,
// dropping an unset Promise, submitting without a bound scheduler) panic:
// they are programming defects, and continuing under a broken invariant
// risks silent data races. "Not ready yet" conditions (Future.Poll before
// Set, a positive WaitGroup count) are ordinary return values, never errors.
//
// # Example
//
//	import (
//		"context"
//		fibersched "github.com/Swind/go-fiber-scheduler"
//		"github.com/Swind/go-fiber-scheduler/core"
//	)
//
//	func main() {
//		fibersched.InitGlobalScheduler(4)
//		defer fibersched.ShutdownGlobalScheduler()
//
//		ctx := fibersched.GetGlobalScheduler().Bind(context.Background())
//
//		future := core.ScheduleResult(ctx, func(ctx context.Context) int {
//			return 42
//		})
//		println(future.Get(ctx)) // 42
//	}
//
// For more details, see https://github.com/Swind/go-fiber-scheduler
package fibersched
