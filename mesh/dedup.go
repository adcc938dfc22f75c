// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"sync"
	"time"

	"github.com/bureau-foundation/keymesh/lib/clock"
)

// DefaultDedupWindow is how long a subscription remembers envelope IDs.
const DefaultDedupWindow = 30 * time.Second

// dedupCache remembers envelope IDs for a fixed window. IDs are evicted
// in arrival order, so memory is bounded by the arrival rate times the
// window.
type dedupCache struct {
	window time.Duration
	clock  clock.Clock

	mu    sync.Mutex
	seen  map[string]time.Time
	order []dedupEntry
}

type dedupEntry struct {
	id   string
	seen time.Time
}

func newDedupCache(window time.Duration, clock clock.Clock) *dedupCache {
	return &dedupCache{
		window: window,
		clock:  clock,
		seen:   make(map[string]time.Time),
	}
}

// firstSighting records id and reports whether it was not already seen
// within the window.
func (d *dedupCache) firstSighting(id string) bool {
	now := d.clock.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.evictLocked(now)
	if _, seen := d.seen[id]; seen {
		return false
	}
	d.seen[id] = now
	d.order = append(d.order, dedupEntry{id: id, seen: now})
	return true
}

func (d *dedupCache) evictLocked(now time.Time) {
	expired := 0
	for _, entry := range d.order {
		if now.Sub(entry.seen) < d.window {
			break
		}
		delete(d.seen, entry.id)
		expired++
	}
	if expired > 0 {
		clear(d.order[:expired])
		d.order = d.order[expired:]
	}
}

func (d *dedupCache) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
