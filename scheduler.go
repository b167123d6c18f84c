package fibersched

import (
	"context"
	"sync"

	"github.com/Swind/go-fiber-scheduler/core"
)

// =============================================================================
// Global Scheduler Helper (Singleton)
// =============================================================================

var (
	globalScheduler *core.Scheduler
	globalMu        sync.Mutex
)

// InitGlobalScheduler initializes the global scheduler with the specified
// number of workers. Workers start immediately.
func InitGlobalScheduler(workers int) {
	InitGlobalSchedulerWithConfig(workers, core.DefaultSchedulerConfig())
}

// InitGlobalSchedulerWithConfig initializes the global scheduler with a
// custom config. Does nothing if already initialized.
func InitGlobalSchedulerWithConfig(workers int, config *core.SchedulerConfig) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler != nil {
		return // Already initialized
	}
	globalScheduler = core.NewSchedulerWithConfig(workers, config)
}

// GetGlobalScheduler returns the global scheduler instance.
// It panics if InitGlobalScheduler has not been called.
func GetGlobalScheduler() *core.Scheduler {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler == nil {
		panic("GlobalScheduler not initialized. Call InitGlobalScheduler() first.")
	}
	return globalScheduler
}

// ShutdownGlobalScheduler drains and stops the global scheduler.
func ShutdownGlobalScheduler() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalScheduler != nil {
		globalScheduler.Shutdown()
		globalScheduler = nil
	}
}

// BindGlobal returns ctx with the global scheduler bound, ready for the
// package-level scheduling entry points.
func BindGlobal(ctx context.Context) context.Context {
	return GetGlobalScheduler().Bind(ctx)
}
