package core

import (
	"context"
	"sync"
)

// WaitGroup is a countdown join barrier for tasks. It mirrors the shape of
// sync.WaitGroup but Wait suspends the calling fiber instead of blocking a
// worker, so producer/consumer cohorts can be joined without starving the
// fibers co-resident on the waiting worker.
//
// The zero value is usable with a count of zero.
type WaitGroup struct {
	mu      sync.Mutex
	count   int
	waiters []waiter
}

// NewWaitGroup creates a WaitGroup preloaded with an initial count.
func NewWaitGroup(initial int) *WaitGroup {
	if initial < 0 {
		panic("WaitGroup: initial count must not be negative")
	}
	return &WaitGroup{count: initial}
}

// Add increments the count by delta. A decrementing delta that crosses zero
// releases every waiter; decrementing below zero is a programming defect
// and panics.
func (wg *WaitGroup) Add(delta int) {
	wg.mu.Lock()
	wg.count += delta
	if wg.count < 0 {
		wg.mu.Unlock()
		panic("WaitGroup: counter underflow (Done called past zero)")
	}
	if wg.count > 0 || len(wg.waiters) == 0 {
		wg.mu.Unlock()
		return
	}

	woken := wg.waiters
	wg.waiters = nil
	wg.mu.Unlock()

	for _, w := range woken {
		w.wake()
	}
}

// Done decrements the count by one. Panics if the count is already zero.
func (wg *WaitGroup) Done() {
	wg.Add(-1)
}

// Count returns the current count. Useful for introspection; a positive
// value is a normal state, not an error.
func (wg *WaitGroup) Count() int {
	wg.mu.Lock()
	defer wg.mu.Unlock()
	return wg.count
}

// Wait suspends the caller until the count is observed zero. Returns
// immediately if already zero. Multiple waiters may observe the same zero
// crossing; the decrement to zero happens-before every released Wait
// returns.
//
// Like Event.Wait, this does not observe ctx cancellation; ctx only carries
// the fiber identity.
func (wg *WaitGroup) Wait(ctx context.Context) {
	wg.mu.Lock()
	if wg.count == 0 {
		wg.mu.Unlock()
		return
	}

	if f := fiberFromContext(ctx); f != nil {
		wg.waiters = append(wg.waiters, fiberWaiter{f: f})
		wg.mu.Unlock()
		f.suspendCurrent()
		return
	}

	hw := newHostWaiter()
	wg.waiters = append(wg.waiters, hw)
	wg.mu.Unlock()
	hw.block()
}
