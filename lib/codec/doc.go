// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds keymesh's single CBOR configuration.
//
// CBOR is used for everything keymesh puts on a wire or on disk: mesh
// envelopes and their payloads, socket hub frames, key-chain entry
// files, and the node's local service socket. JSON appears only at the
// edges: configuration and registry files, and the plaintext
// serialization inside the custodian's ciphertexts.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same envelope always produces the same bytes. Decoding ignores
// unknown fields, which lets newer nodes add payload fields without
// breaking older peers.
//
// Types that only ever travel as CBOR use `cbor` struct tags.
package codec
