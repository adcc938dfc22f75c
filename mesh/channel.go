// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"bytes"
	"sync"
)

// DefaultChannelName is the well-known broadcast channel every node
// joins.
const DefaultChannelName = "keymesh-ecosystem"

type channelKey struct {
	origin string
	name   string
}

// ChannelHub is the set of broadcast channels visible to one browser
// profile (or one process). Channels are isolated by origin: a frame
// published on (origin, name) reaches only listeners of the same pair.
type ChannelHub struct {
	mu       sync.Mutex
	channels map[channelKey]*listenerSet
}

// NewChannelHub returns an empty hub.
func NewChannelHub() *ChannelHub {
	return &ChannelHub{channels: make(map[channelKey]*listenerSet)}
}

// Open returns a handle on the (origin, name) channel.
func (h *ChannelHub) Open(origin, name string) *Channel {
	key := channelKey{origin: normalizeOrigin(origin), name: name}

	h.mu.Lock()
	listeners, ok := h.channels[key]
	if !ok {
		listeners = &listenerSet{}
		h.channels[key] = listeners
	}
	h.mu.Unlock()

	return &Channel{key: key, listeners: listeners}
}

// Compile-time interface check.
var _ Transport = (*Channel)(nil)

// Channel is one handle on a broadcast channel. Closing it stops only
// the listeners registered through it.
type Channel struct {
	key       channelKey
	listeners *listenerSet

	mu     sync.Mutex
	closed bool
	stops  map[*mailbox]func()
}

// Name returns "channel".
func (c *Channel) Name() string { return "channel" }

// Publish delivers frame to every listener on the channel, including
// listeners registered through this handle.
func (c *Channel) Publish(frame []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	c.listeners.post(Delivery{
		Data:      bytes.Clone(frame),
		Origin:    c.key.origin,
		Transport: c.Name(),
	})
	return nil
}

// Listen registers handler on the channel.
func (c *Channel) Listen(handler func(Delivery)) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrTransportClosed
	}

	box, remove := c.listeners.add(handler)
	if c.stops == nil {
		c.stops = make(map[*mailbox]func())
	}
	c.stops[box] = remove

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.stops, box)
			c.mu.Unlock()
			remove()
		})
	}, nil
}

// Close stops this handle's listeners. Idempotent.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	stops := c.stops
	c.stops = nil
	c.mu.Unlock()

	for _, remove := range stops {
		remove()
	}
	return nil
}
