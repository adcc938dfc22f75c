// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"bytes"
	"fmt"
	"slices"
	"sync"
)

// Window is one node of a frame tree: a top-level context or an
// embedded frame. Messages posted to a window carry the origin of the
// window that sent them.
type Window struct {
	origin    string
	listeners listenerSet

	mu       sync.Mutex
	parent   *Window
	children []*Window
}

// NewWindow returns a detached window served from origin.
func NewWindow(origin string) *Window {
	return &Window{origin: normalizeOrigin(origin)}
}

// Origin returns the window's origin.
func (w *Window) Origin() string { return w.origin }

// Attach embeds child in w. A window has at most one parent.
func (w *Window) Attach(child *Window) error {
	if child == w {
		return fmt.Errorf("mesh: window cannot embed itself")
	}

	child.mu.Lock()
	if child.parent != nil {
		child.mu.Unlock()
		return fmt.Errorf("mesh: window %s is already embedded", child.origin)
	}
	child.parent = w
	child.mu.Unlock()

	w.mu.Lock()
	w.children = append(w.children, child)
	w.mu.Unlock()
	return nil
}

// Detach removes child from w. No-op if child is not attached to w.
func (w *Window) Detach(child *Window) {
	w.mu.Lock()
	index := slices.Index(w.children, child)
	if index < 0 {
		w.mu.Unlock()
		return
	}
	w.children = slices.Delete(w.children, index, index+1)
	w.mu.Unlock()

	child.mu.Lock()
	if child.parent == w {
		child.parent = nil
	}
	child.mu.Unlock()
}

// Parent returns the embedding window, or nil for a top-level window.
func (w *Window) Parent() *Window {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.parent
}

// Children returns the currently attached child frames.
func (w *Window) Children() []*Window {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.children)
}

// PostMessage delivers data to w's listeners as sent by source. There
// is no origin filtering on the sending side, matching window messaging
// with a "*" target origin; receivers check the origin.
func (w *Window) PostMessage(data []byte, source *Window) {
	w.listeners.post(Delivery{
		Data:      bytes.Clone(data),
		Origin:    source.origin,
		Transport: "window",
	})
}

// Compile-time interface check.
var _ Transport = (*WindowTransport)(nil)

// WindowTransport publishes through a Window to its parent and its
// children, and listens for messages posted to the Window.
type WindowTransport struct {
	window *Window

	mu     sync.Mutex
	closed bool
	stops  []func()
}

// NewWindowTransport returns a transport bound to window.
func NewWindowTransport(window *Window) *WindowTransport {
	return &WindowTransport{window: window}
}

// Name returns "window".
func (t *WindowTransport) Name() string { return "window" }

// Publish posts frame to the parent window, if any, and to every child
// frame attached at the time of the call.
func (t *WindowTransport) Publish(frame []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	if parent := t.window.Parent(); parent != nil {
		parent.PostMessage(frame, t.window)
	}
	for _, child := range t.window.Children() {
		child.PostMessage(frame, t.window)
	}
	return nil
}

// Listen registers handler for messages posted to the window.
func (t *WindowTransport) Listen(handler func(Delivery)) (func(), error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportClosed
	}

	_, remove := t.window.listeners.add(handler)
	var once sync.Once
	stop := func() { once.Do(remove) }
	t.stops = append(t.stops, stop)
	return stop, nil
}

// Close stops every listener registered through t. Idempotent.
func (t *WindowTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	stops := t.stops
	t.stops = nil
	t.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	return nil
}
