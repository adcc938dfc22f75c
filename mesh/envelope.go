// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mesh

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/keymesh/lib/codec"
)

// TargetAll addresses an envelope to every node.
const TargetAll = "all"

// Kind classifies an envelope.
type Kind string

const (
	KindRPCRequest  Kind = "RPC_REQUEST"
	KindRPCResponse Kind = "RPC_RESPONSE"
	KindStateSync   Kind = "STATE_SYNC"
	KindPulse       Kind = "PULSE"
	KindCommand     Kind = "COMMAND"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRPCRequest, KindRPCResponse, KindStateSync, KindPulse, KindCommand:
		return true
	}
	return false
}

// Envelope is one message on the bus. It exists only in transit.
type Envelope struct {
	ID        string           `cbor:"id"`
	Source    string           `cbor:"source"`
	Target    string           `cbor:"target"`
	Kind      Kind             `cbor:"kind"`
	Payload   codec.RawMessage `cbor:"payload,omitempty"`
	SentAt    int64            `cbor:"sent_at"`
	Signature []byte           `cbor:"signature,omitempty"` // reserved, never set or checked
}

// Valid is the minimal shape check applied to every received frame.
func (e Envelope) Valid() bool {
	return e.Source != "" && e.Kind.Valid()
}

// AddressedTo reports whether nodeID should act on the envelope.
func (e Envelope) AddressedTo(nodeID string) bool {
	return e.Target == TargetAll || e.Target == nodeID
}

// Time returns SentAt as a time.Time.
func (e Envelope) Time() time.Time {
	return time.UnixMilli(e.SentAt)
}

// Draft is an envelope before the bus stamps its ID, source, and time.
type Draft struct {
	Target  string
	Kind    Kind
	Payload codec.RawMessage
}

// NewDraft encodes payload and returns a Draft.
func NewDraft[T any](target string, kind Kind, payload T) (Draft, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return Draft{}, fmt.Errorf("encoding %s payload: %w", kind, err)
	}
	return Draft{Target: target, Kind: kind, Payload: encoded}, nil
}

// DecodePayload decodes the envelope's payload as T.
func DecodePayload[T any](envelope Envelope) (T, error) {
	var payload T
	if len(envelope.Payload) == 0 {
		return payload, fmt.Errorf("envelope %s has no payload", envelope.ID)
	}
	if err := codec.Unmarshal(envelope.Payload, &payload); err != nil {
		return payload, fmt.Errorf("decoding payload of envelope %s: %w", envelope.ID, err)
	}
	return payload, nil
}

func encodeEnvelope(envelope Envelope) ([]byte, error) {
	return codec.Marshal(envelope)
}

func decodeEnvelope(frame []byte) (Envelope, error) {
	var envelope Envelope
	if err := codec.Unmarshal(frame, &envelope); err != nil {
		return Envelope{}, err
	}
	return envelope, nil
}
