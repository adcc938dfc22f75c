// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.pendingChanged = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests. AfterFunc callbacks run
// synchronously inside Advance, in deadline order. A callback must not
// call Advance.
type FakeClock struct {
	mu             sync.Mutex
	current        time.Time
	pending        []*fakeTimer
	pendingChanged *sync.Cond
}

type fakeTimer struct {
	deadline time.Time
	callback func()
	done     bool
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc registers f to run once the clock has advanced by d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stopFunc: func() bool { return false }}
	}

	c.mu.Lock()
	timer := &fakeTimer{deadline: c.current.Add(d), callback: f}
	c.pending = append(c.pending, timer)
	c.pendingChanged.Broadcast()
	c.mu.Unlock()

	return &Timer{stopFunc: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if timer.done {
			return false
		}
		timer.done = true
		c.removeLocked(timer)
		return true
	}}
}

// Advance moves the clock forward by d and runs every callback whose
// deadline has been reached. A timer armed by a firing callback is
// measured from the advanced time, so it waits for the next Advance.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	target := c.current
	c.mu.Unlock()

	for {
		expired := c.takeExpired(target)
		if len(expired) == 0 {
			return
		}
		for _, timer := range expired {
			timer.callback()
		}
	}
}

// takeExpired removes and returns the timers due at target, in
// deadline order.
func (c *FakeClock) takeExpired(target time.Time) []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired, remaining []*fakeTimer
	for _, timer := range c.pending {
		if timer.deadline.After(target) {
			remaining = append(remaining, timer)
			continue
		}
		timer.done = true
		expired = append(expired, timer)
	}
	c.pending = remaining
	if len(expired) > 0 {
		c.pendingChanged.Broadcast()
	}

	sort.SliceStable(expired, func(i, j int) bool {
		return expired[i].deadline.Before(expired[j].deadline)
	})
	return expired
}

func (c *FakeClock) removeLocked(target *fakeTimer) {
	for index, timer := range c.pending {
		if timer == target {
			c.pending = append(c.pending[:index], c.pending[index+1:]...)
			c.pendingChanged.Broadcast()
			return
		}
	}
}

// WaitForTimers blocks until at least n timers are pending. Use it to
// avoid racing a goroutine that is about to arm a timer.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.pendingChanged.Wait()
	}
}

// PendingCount returns the number of armed, unfired timers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
