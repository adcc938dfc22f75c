// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"strconv"
	"testing"
	"time"

	"github.com/bureau-foundation/keymesh/lib/clock"
)

func TestDedupCacheWindow(t *testing.T) {
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	cache := newDedupCache(10*time.Second, fake)

	if !cache.firstSighting("a") {
		t.Fatal("first sighting of a reported as repeat")
	}
	if cache.firstSighting("a") {
		t.Fatal("repeat of a reported as first sighting")
	}

	fake.Advance(5 * time.Second)
	if !cache.firstSighting("b") {
		t.Fatal("first sighting of b reported as repeat")
	}

	fake.Advance(5 * time.Second)
	// a is now exactly one window old and has been evicted; b has not.
	if !cache.firstSighting("a") {
		t.Error("a should be forgotten after the window")
	}
	if cache.firstSighting("b") {
		t.Error("b should still be remembered")
	}
}

func TestDedupCacheEvictionBoundsMemory(t *testing.T) {
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	cache := newDedupCache(time.Second, fake)

	for index := 0; index < 100; index++ {
		cache.firstSighting("id-" + strconv.Itoa(index))
	}
	if got := cache.size(); got != 100 {
		t.Fatalf("size = %d, want 100", got)
	}

	fake.Advance(2 * time.Second)
	cache.firstSighting("fresh")
	if got := cache.size(); got != 1 {
		t.Fatalf("size after expiry = %d, want 1", got)
	}
}

func TestBusDedupWindowUsesInjectedClock(t *testing.T) {
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	hub := NewChannelHub()
	raw := hub.Open(appOrigin, DefaultChannelName)
	bus := newTestBus(t, Config{
		Transports:  []Transport{hub.Open(appOrigin, DefaultChannelName)},
		Clock:       fake,
		DedupWindow: time.Minute,
	})
	inbox := collect(t, bus)

	frame, err := encodeEnvelope(Envelope{ID: "fixed", Source: "vault-control", Target: TargetAll, Kind: KindPulse})
	if err != nil {
		t.Fatalf("encodeEnvelope: %v", err)
	}

	raw.Publish(frame)
	raw.Publish(frame)
	if got := <-inbox; got.ID != "fixed" {
		t.Fatalf("got %+v", got)
	}
	select {
	case got := <-inbox:
		t.Fatalf("replay inside the window was delivered: %+v", got)
	case <-time.After(quietWindow):
	}

	fake.Advance(time.Minute)
	raw.Publish(frame)
	select {
	case got := <-inbox:
		if got.ID != "fixed" {
			t.Fatalf("got %+v", got)
		}
	case <-time.After(testTimeout):
		t.Fatal("replay after the window was not delivered")
	}
}
