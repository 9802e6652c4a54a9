// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Production code accepts a Clock parameter instead of calling time.Now,
// time.After, time.NewTicker, or time.AfterFunc directly. Real() provides
// the standard library behavior; Fake() provides a deterministic clock
// that only advances when Advance is called — used by the reconciliation
// supervisor's poll/debounce timers so their tests don't depend on wall
// clock scheduling.
package clock

import "time"

// Clock abstracts time operations.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives after duration d elapses.
	After(d time.Duration) <-chan time.Time

	// AfterFunc waits for duration d, then calls f in its own goroutine
	// (Real) or synchronously during Advance (Fake).
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker returns a Ticker delivering ticks on its C channel at
	// the given interval. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. Call Stop when no longer needed.
type Ticker struct {
	C <-chan time.Time

	stopFunc  func()
	resetFunc func(time.Duration)
}

// Stop turns off the ticker. Does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// Reset adjusts the ticker to a new interval.
func (t *Ticker) Reset(d time.Duration) { t.resetFunc(d) }

// Timer represents a scheduled callback. C is always nil — this module
// only uses AfterFunc-style timers, never the channel form.
type Timer struct {
	C <-chan time.Time

	stopFunc  func() bool
	resetFunc func(time.Duration) bool
}

// Stop prevents the Timer from firing. Returns false if it already fired.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Reset reschedules the timer to fire after d.
func (t *Timer) Reset(d time.Duration) bool { return t.resetFunc(d) }
