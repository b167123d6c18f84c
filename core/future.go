package core

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
)

// promiseShared is the state shared between a Promise and every Future
// derived from it. The value is written at most once, before the event is
// signalled; readers only touch it after observing the signal, which gives
// the required happens-before without extra locking.
type promiseShared[T any] struct {
	state atomic.Uint32 // promiseUnset -> promiseSet | promiseBroken
	value T
	event Event // ManualReset
}

const (
	promiseUnset uint32 = iota
	promiseSet
	promiseBroken
)

// onBrokenPromise reports a Promise that was dropped without ever being
// set. Overridable in tests; the default fails the process, since a broken
// promise is a producer logic defect, not a runtime condition.
var onBrokenPromise = func() {
	panic("Promise: dropped without being set. A broken promise is a programming error.")
}

// Promise is the single-writer side of a one-shot value handoff. Create it
// with NewPromise, hand out Futures with Future(), and publish exactly one
// value with Set. Dropping a Promise that was never set is a fatal defect
// (detected on garbage collection).
type Promise[T any] struct {
	shared *promiseShared[T]
}

// Future is the reader side: any number of Futures may share one Promise.
type Future[T any] struct {
	shared *promiseShared[T]
}

// NewPromise creates an unset Promise.
func NewPromise[T any]() *Promise[T] {
	p := &Promise[T]{shared: &promiseShared[T]{}}
	runtime.AddCleanup(p, func(shared *promiseShared[T]) {
		if shared.state.Load() == promiseUnset {
			onBrokenPromise()
		}
	}, p.shared)
	return p
}

// Set publishes the value and releases every current and future Get.
// Calling Set twice is a programming defect and panics.
func (p *Promise[T]) Set(value T) {
	if !p.shared.state.CompareAndSwap(promiseUnset, promiseSet) {
		panic("Promise: value already set")
	}
	p.shared.value = value
	p.shared.event.Signal()
}

// Future returns a reader handle sharing this promise's state.
func (p *Promise[T]) Future() *Future[T] {
	return &Future[T]{shared: p.shared}
}

// markBroken records that the producer failed before setting a value, so
// the GC cleanup does not report the same defect a second time.
func (p *Promise[T]) markBroken() {
	p.shared.state.CompareAndSwap(promiseUnset, promiseBroken)
}

// Get suspends the caller until the value is set, then returns it.
// Idempotent once set; safe to call concurrently from many Futures.
func (f *Future[T]) Get(ctx context.Context) T {
	f.shared.event.Wait(ctx)
	return f.shared.value
}

// Poll never suspends: it returns a pointer to the value if set, else nil.
// A nil result is the normal "not ready yet" outcome, not an error.
func (f *Future[T]) Poll() *T {
	if !f.shared.event.IsSignalled() {
		return nil
	}
	return &f.shared.value
}

// ScheduleResult submits a task that invokes fn on some worker, captures
// its return value into a fresh Promise, and immediately returns the
// corresponding Future. Requires a scheduler bound to ctx; panics without
// one, before anything is enqueued.
//
// If fn panics, the promise is marked broken and the panic is rethrown to
// the worker's PanicHandler as a broken-promise defect. There is no
// implicit error channel: a fallible fn should return its own result type
// (e.g. Future of a value/error struct).
func ScheduleResult[T any](ctx context.Context, fn func(ctx context.Context) T) *Future[T] {
	return ScheduleResultWithAttributes(ctx, fn, DefaultAttributes())
}

// ScheduleResultWithAttributes is ScheduleResult with explicit placement
// attributes.
func ScheduleResultWithAttributes[T any](ctx context.Context, fn func(ctx context.Context) T, attrs Attributes) *Future[T] {
	s := MustFromContext(ctx)

	promise := NewPromise[T]()
	future := promise.Future()

	s.EnqueueWithAttributes(ctx, func(taskCtx context.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				promise.markBroken()
				panic(fmt.Sprintf("Promise: broken promise: task panicked before setting a value: %v", rec))
			}
		}()
		promise.Set(fn(taskCtx))
	}, attrs)

	return future
}
