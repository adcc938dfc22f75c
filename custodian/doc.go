// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package custodian holds the master key for one execution context and
// keeps it in step with the other nodes of the ecosystem over a mesh
// bus.
//
// A [Custodian] starts Locked. It becomes Unlocked either locally, by
// [Custodian.Unlock] with the user's password and key-chain entry, or
// remotely, when the control node sends it the key in a
// sync_master_key command. Non-control nodes ask for the key as soon as
// they are initialized: they broadcast a request_key_sync request
// carrying a fresh age recipient, and the control node (if unlocked)
// answers with the key sealed to that recipient. Requests are retried
// on a timer and the node gives up in the SyncFailed phase after
// [Config.SyncAttempts] unanswered requests.
//
// When the control node unlocks it pushes the raw key to every node.
// The bus is trusted as a same-origin boundary; the key is never
// written to durable storage and lives only in locked memory
// ([secret.Buffer]).
//
// A lock_system command from any node locks every custodian that hears
// it. [Custodian.Lock] on its own is local only.
//
// Data encryption is AES-256-GCM with a fresh 16-byte IV per call. The
// plaintext is JSON-encoded before encryption and the result is
// base64(IV || ciphertext || tag).
package custodian
