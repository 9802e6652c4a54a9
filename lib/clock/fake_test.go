// Copyright 2026 Red Hat, Inc.
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	c := Fake(epoch)
	if got := c.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	c.Advance(5 * time.Second)
	want := epoch.Add(5 * time.Second)
	if got := c.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockAfterFuncFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	var fired atomic.Bool
	c.AfterFunc(3*time.Second, func() { fired.Store(true) })

	c.Advance(2 * time.Second)
	if fired.Load() {
		t.Fatal("AfterFunc fired before deadline")
	}

	c.Advance(1 * time.Second)
	if !fired.Load() {
		t.Fatal("AfterFunc did not fire after deadline")
	}
}

func TestFakeClockAfterFuncZeroDurationRunsSynchronously(t *testing.T) {
	c := Fake(epoch)
	var fired bool
	c.AfterFunc(0, func() { fired = true })
	if !fired {
		t.Fatal("AfterFunc(0, ...) should run synchronously")
	}
}

func TestFakeClockTickerFiresRepeatedly(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	count := 0
	for i := 0; i < 3; i++ {
		c.Advance(time.Second)
		select {
		case <-ticker.C:
			count++
		default:
		}
	}
	if count != 3 {
		t.Fatalf("ticker fired %d times over three intervals, want 3", count)
	}
}

func TestFakeClockWaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		<-c.After(time.Second)
		close(done)
	}()

	c.WaitForTimers(1)
	c.Advance(time.Second)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired after Advance")
	}
}
