// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/keymesh/lib/clock"
)

// Config holds the parameters for New.
type Config struct {
	// NodeID labels this bus in log output. Optional.
	NodeID string

	// Origin is the origin of the execution context that owns the bus.
	// Deliveries from this origin are always accepted.
	Origin string

	// Transports are owned by the bus and closed by Close. At least one
	// is required.
	Transports []Transport

	// AllowedOrigins lists additional origins whose window and socket messages are
	// accepted. AnyOrigin accepts everything.
	AllowedOrigins []string

	// DedupWindow is how long each subscription remembers envelope IDs.
	// Zero means DefaultDedupWindow.
	DedupWindow time.Duration

	// Clock stamps SentAt and drives dedup expiry. Nil means the real
	// clock.
	Clock clock.Clock

	// Logger is required.
	Logger *slog.Logger
}

// Bus publishes envelopes on every transport and delivers received
// envelopes to subscribers. Delivery is best effort: there are no
// acknowledgements, retries, or ordering across transports.
type Bus struct {
	nodeID      string
	origin      string
	transports  []Transport
	allowed     AllowList
	dedupWindow time.Duration
	clock       clock.Clock
	logger      *slog.Logger

	closeOnce sync.Once
}

// New creates a Bus.
func New(config Config) (*Bus, error) {
	if len(config.Transports) == 0 {
		return nil, errors.New("mesh: at least one transport is required")
	}
	for index, transport := range config.Transports {
		if transport == nil {
			return nil, fmt.Errorf("mesh: transport %d is nil", index)
		}
	}
	origin := normalizeOrigin(config.Origin)
	if origin == "" {
		return nil, errors.New("mesh: origin is required")
	}
	if config.Logger == nil {
		return nil, errors.New("mesh: logger is required")
	}
	if config.DedupWindow < 0 {
		return nil, fmt.Errorf("mesh: negative dedup window %s", config.DedupWindow)
	}

	dedupWindow := config.DedupWindow
	if dedupWindow == 0 {
		dedupWindow = DefaultDedupWindow
	}
	busClock := config.Clock
	if busClock == nil {
		busClock = clock.Real()
	}

	allowed := NewAllowList(append([]string{origin}, config.AllowedOrigins...)...)
	logger := config.Logger
	if config.NodeID != "" {
		logger = logger.With("node", config.NodeID)
	}
	if allowed.AllowsAny() {
		logger.Warn("bus accepts window messages from any origin")
	}

	return &Bus{
		nodeID:      config.NodeID,
		origin:      origin,
		transports:  append([]Transport(nil), config.Transports...),
		allowed:     allowed,
		dedupWindow: dedupWindow,
		clock:       busClock,
		logger:      logger,
	}, nil
}

// Origin returns the bus's normalized origin.
func (b *Bus) Origin() string { return b.origin }

// Broadcast stamps draft with a fresh ID, the current time, and source,
// then publishes it on every transport. A transport that fails to
// publish is logged and skipped. The only error is an envelope that
// cannot be encoded.
func (b *Bus) Broadcast(draft Draft, source string) (Envelope, error) {
	envelope := Envelope{
		ID:      uuid.NewString(),
		Source:  source,
		Target:  draft.Target,
		Kind:    draft.Kind,
		Payload: draft.Payload,
		SentAt:  b.clock.Now().UnixMilli(),
	}
	frame, err := encodeEnvelope(envelope)
	if err != nil {
		return Envelope{}, fmt.Errorf("encoding envelope: %w", err)
	}

	for _, transport := range b.transports {
		if err := transport.Publish(frame); err != nil {
			b.logger.Debug("publish failed",
				"transport", transport.Name(),
				"kind", envelope.Kind,
				"error", err,
			)
		}
	}
	return envelope, nil
}

// Subscribe delivers every valid, allowed, not-yet-seen envelope to
// handler. Handlers may run concurrently when the bus has more than one
// transport. The returned function stops delivery and is idempotent.
func (b *Bus) Subscribe(handler func(Envelope)) func() {
	dedup := newDedupCache(b.dedupWindow, b.clock)

	receive := func(delivery Delivery) {
		if !b.allowed.Allowed(delivery.Origin) {
			b.logger.Debug("dropping frame from disallowed origin",
				"origin", delivery.Origin,
				"transport", delivery.Transport,
			)
			return
		}
		envelope, err := decodeEnvelope(delivery.Data)
		if err != nil {
			b.logger.Debug("dropping undecodable frame",
				"transport", delivery.Transport,
				"error", err,
			)
			return
		}
		if !envelope.Valid() {
			b.logger.Debug("dropping malformed envelope",
				"transport", delivery.Transport,
				"id", envelope.ID,
			)
			return
		}
		if envelope.ID != "" && !dedup.firstSighting(envelope.ID) {
			return
		}
		handler(envelope)
	}

	var stops []func()
	for _, transport := range b.transports {
		stop, err := transport.Listen(receive)
		if err != nil {
			b.logger.Debug("listen failed", "transport", transport.Name(), "error", err)
			continue
		}
		stops = append(stops, stop)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, stop := range stops {
				stop()
			}
		})
	}
}

// Close closes every transport. Subscriptions stop receiving.
func (b *Bus) Close() error {
	var errs []error
	b.closeOnce.Do(func() {
		for _, transport := range b.transports {
			if err := transport.Close(); err != nil {
				errs = append(errs, fmt.Errorf("closing %s transport: %w", transport.Name(), err))
			}
		}
	})
	return errors.Join(errs...)
}
