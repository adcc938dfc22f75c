// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custodian

// Actions carried in the payload of custodian envelopes.
const (
	// ActionRequestKeySync is an RPC_REQUEST from a locked node to the
	// control node.
	ActionRequestKeySync = "request_key_sync"

	// ActionSyncMasterKey is a COMMAND from the control node carrying
	// the master key.
	ActionSyncMasterKey = "sync_master_key"

	// ActionLockSystem is a COMMAND that locks every node.
	ActionLockSystem = "lock_system"
)

// Message is the payload of every custodian envelope. Fields other
// than Action are set only for the actions that use them.
type Message struct {
	Action string `cbor:"action"`

	// Recipient is the requester's ephemeral age X25519 public key
	// (request_key_sync). Empty asks for the raw key.
	Recipient string `cbor:"recipient,omitempty"`

	// Key is the raw 32-byte master key (sync_master_key).
	Key []byte `cbor:"key,omitempty"`

	// SealedKey is the master key sealed to Recipient
	// (sync_master_key).
	SealedKey []byte `cbor:"sealed_key,omitempty"`
}
