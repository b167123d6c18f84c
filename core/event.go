package core

import (
	"context"
	"sync"
)

// EventMode selects the reset behavior of an Event.
type EventMode int

const (
	// ManualReset: Signal is sticky. It releases all current waiters and
	// every later Wait returns immediately until Reset is called.
	ManualReset EventMode = iota

	// AutoReset: each Signal releases exactly one waiter and resets. A
	// Signal with no waiter is banked (a single pending signal, not a
	// count) and consumed by the next Wait.
	AutoReset
)

// waiter is one parked caller of a primitive. Fibers are re-enqueued on the
// scheduler when woken; host goroutines get a channel close.
type waiter interface {
	wake()
}

type fiberWaiter struct {
	f *fiber
}

func (w fiberWaiter) wake() {
	w.f.s.enqueueReadyFiber(w.f)
}

// Event is the lowest-level suspension primitive: a boolean signal with a
// waiter set. Waiting from a fiber suspends the fiber (the worker moves on
// to other ready work); waiting from an ordinary goroutine blocks that
// goroutine only.
//
// The zero value is a usable ManualReset event; use NewEvent for AutoReset.
type Event struct {
	mode EventMode

	mu        sync.Mutex
	signalled bool
	waiters   []waiter // FIFO wake order
}

// NewEvent creates an event in the given mode.
func NewEvent(mode EventMode) *Event {
	return &Event{mode: mode}
}

// Signal sets the event. ManualReset wakes every current waiter and stays
// signalled; AutoReset wakes the oldest waiter (or banks one pending signal
// when nobody waits). Establishes happens-before with the corresponding
// Wait returns.
func (e *Event) Signal() {
	e.mu.Lock()

	if e.mode == AutoReset {
		if len(e.waiters) > 0 {
			w := e.waiters[0]
			e.waiters[0] = nil
			e.waiters = e.waiters[1:]
			e.mu.Unlock()
			w.wake()
			return
		}
		e.signalled = true
		e.mu.Unlock()
		return
	}

	e.signalled = true
	woken := e.waiters
	e.waiters = nil
	e.mu.Unlock()

	for _, w := range woken {
		w.wake()
	}
}

// IsSignalled is a non-suspending poll of the flag.
func (e *Event) IsSignalled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.signalled
}

// Reset clears the sticky flag of a ManualReset event. Calling Reset on an
// AutoReset event clears a banked pending signal.
func (e *Event) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.signalled = false
}

// Wait suspends the caller until the event is signalled for it. Returns
// immediately if already signalled (consuming the signal in AutoReset mode).
//
// Wait does not observe ctx cancellation: ctx carries the fiber identity
// used to suspend cooperatively, nothing else. Callers needing a timeout
// must layer it themselves.
func (e *Event) Wait(ctx context.Context) {
	e.mu.Lock()
	if e.signalled {
		if e.mode == AutoReset {
			e.signalled = false
		}
		e.mu.Unlock()
		return
	}

	if f := fiberFromContext(ctx); f != nil {
		e.waiters = append(e.waiters, fiberWaiter{f: f})
		e.mu.Unlock()
		f.suspendCurrent()
		return
	}

	hw := newHostWaiter()
	e.waiters = append(e.waiters, hw)
	e.mu.Unlock()
	hw.block()
}
