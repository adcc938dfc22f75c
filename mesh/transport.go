// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"errors"
	"sync"
)

// ErrTransportClosed is returned by Publish and Listen after Close.
var ErrTransportClosed = errors.New("mesh: transport closed")

// Transport moves opaque frames between execution contexts.
type Transport interface {
	// Name identifies the transport in logs ("channel", "window",
	// "socket").
	Name() string

	// Publish sends frame to every reachable listener. Success means
	// only that the frame was handed off.
	Publish(frame []byte) error

	// Listen registers handler for arriving frames. Handlers for one
	// listener run sequentially on a dedicated goroutine. stop is
	// idempotent and does not wait for a running handler.
	Listen(handler func(Delivery)) (stop func(), err error)

	// Close releases the transport and stops its listeners.
	Close() error
}

// Delivery is one frame as received by a listener.
type Delivery struct {
	Data      []byte
	Origin    string
	Transport string
}

// mailbox queues deliveries for one listener and runs its handler on
// a dedicated goroutine, preserving arrival order.
type mailbox struct {
	handler func(Delivery)

	mu      sync.Mutex
	queue   []Delivery
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

func newMailbox(handler func(Delivery)) *mailbox {
	m := &mailbox{
		handler: handler,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *mailbox) post(delivery Delivery) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.queue = append(m.queue, delivery)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
		}
		for {
			delivery, ok := m.next()
			if !ok {
				break
			}
			m.handler(delivery)
		}
	}
}

func (m *mailbox) next() (Delivery, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || len(m.queue) == 0 {
		return Delivery{}, false
	}
	delivery := m.queue[0]
	m.queue[0] = Delivery{}
	m.queue = m.queue[1:]
	return delivery, true
}

func (m *mailbox) stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	m.queue = nil
	close(m.done)
}

// listenerSet is a concurrency-safe set of mailboxes shared by the
// transports.
type listenerSet struct {
	mu        sync.Mutex
	mailboxes map[*mailbox]struct{}
}

func (s *listenerSet) add(handler func(Delivery)) (*mailbox, func()) {
	box := newMailbox(handler)
	s.mu.Lock()
	if s.mailboxes == nil {
		s.mailboxes = make(map[*mailbox]struct{})
	}
	s.mailboxes[box] = struct{}{}
	s.mu.Unlock()

	return box, func() {
		s.mu.Lock()
		delete(s.mailboxes, box)
		s.mu.Unlock()
		box.stop()
	}
}

func (s *listenerSet) post(delivery Delivery) {
	s.mu.Lock()
	targets := make([]*mailbox, 0, len(s.mailboxes))
	for box := range s.mailboxes {
		targets = append(targets, box)
	}
	s.mu.Unlock()

	for _, box := range targets {
		box.post(delivery)
	}
}

func (s *listenerSet) stopAll() {
	s.mu.Lock()
	mailboxes := s.mailboxes
	s.mailboxes = nil
	s.mu.Unlock()

	for box := range mailboxes {
		box.stop()
	}
}
