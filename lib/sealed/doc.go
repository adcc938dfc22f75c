// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed wraps filippo.io/age for the one asymmetric operation
// keymesh performs: sealing the master key to a single requesting node.
//
// A node waiting for the key generates a throwaway X25519 keypair with
// [GenerateKeypair] and puts the public half in its sync request. The
// control node answers with [Seal] output instead of raw key bytes, so
// an eavesdropper on the bus sees only age ciphertext. The requester
// opens it with [Open] and discards the keypair.
//
// Private keys and opened plaintext are returned in *secret.Buffer
// values. Ciphertext is raw age binary; the bus carries it inside a
// CBOR byte string, so no armor or base64 is applied.
package sealed
