// Package reactor models the cooperative, single-threaded "event loop"
// the spec requires (§5 Concurrency & Resource Model, Design Notes:
// "model with a task abstraction — futures + reactor — rather than OS
// threads"). It wraps Go's timers/goroutines behind a minimal surface so
// watchdogs, expiry sweeps, and the allocation-coalescing tick all look
// like cancellable scheduled callbacks, and command replies look like
// futures.
//
// Grounded on houneTeam-pible_go's ticker-based loops
// (internal/status/ticker.go, bluez_manager.go's backoff loop).
package reactor

import (
	"sync"
	"time"
)

// CancelFunc stops a scheduled callback. Calling it more than once, or
// after the callback has already fired, is a no-op.
type CancelFunc func()

// After schedules fn to run once after d. The returned CancelFunc
// prevents fn from running if called before d elapses.
func After(d time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

// Every schedules fn to run repeatedly every d, starting after the first
// interval elapses, until cancelled.
func Every(d time.Duration, fn func()) CancelFunc {
	t := time.NewTicker(d)
	stop := make(chan struct{})
	var once sync.Once
	go func() {
		for {
			select {
			case <-t.C:
				fn()
			case <-stop:
				t.Stop()
				return
			}
		}
	}()
	return func() {
		once.Do(func() { close(stop) })
	}
}

// Coalesce returns a trigger function that, when called one or more
// times within a single scheduling tick, invokes fn exactly once on the
// next tick. It models spec §4.7.5's "schedule a single coalesced notify
// tick... coalescing window: one event-loop iteration".
//
// The in-flight tick is held in timer for fn's entire execution, not
// just until it is scheduled: a trigger arriving while fn is still
// running sees the tick already claimed and no-ops, so a burst
// (including one racing against fn itself) collapses to exactly one
// call, never more.
func Coalesce(fn func()) func() {
	var mu sync.Mutex
	var timer *time.Timer
	return func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			return
		}
		timer = time.AfterFunc(0, func() {
			fn()
			mu.Lock()
			timer = nil
			mu.Unlock()
		})
	}
}

// Future resolves exactly once with a value or an error, used for
// management-protocol pending command replies keyed by (opcode,
// controller index).
type Future[T any] struct {
	done   chan struct{}
	once   sync.Once
	result T
	err    error
}

// NewFuture returns an unresolved Future.
func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolve completes the future with value. Subsequent calls are no-ops.
func (f *Future[T]) Resolve(value T) {
	f.once.Do(func() {
		f.result = value
		close(f.done)
	})
}

// Reject completes the future with an error. Subsequent calls are no-ops.
func (f *Future[T]) Reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Wait blocks until the future resolves, the timeout elapses, or done is
// closed, whichever comes first.
func (f *Future[T]) Wait(timeout time.Duration, done <-chan struct{}) (T, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-time.After(timeout):
		var zero T
		return zero, ErrTimeout
	case <-done:
		var zero T
		return zero, ErrCancelled
	}
}
