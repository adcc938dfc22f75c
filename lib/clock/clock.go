// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the two time operations keymesh needs.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f after duration d. The returned Timer cancels
	// the pending call. If d <= 0, f runs immediately (in a new
	// goroutine for the real clock, synchronously for the fake).
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the Timer from firing. Returns true if the call stops
// the timer, false if it already fired or was already stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }
