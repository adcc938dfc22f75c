// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keychain defines key-chain entries: the salt and wrapped
// master key that let a password holder recover the ecosystem master
// key.
//
// Wrapping (format is fixed; existing entries depend on it):
//
//	KEK        = PBKDF2-HMAC-SHA256(password, salt, 600000 iterations, 32 bytes)
//	WrappedKey = IV (16 random bytes) || AES-256-GCM(KEK, IV, masterKey)
//
// [Unwrap] is what the custodian calls during unlock. [Wrap] and
// [GenerateMasterKey] create entries for a new user or ecosystem.
//
// A [Store] is the credential store collaborator that hands an entry
// to the unlock path. [FileStore] keeps one CBOR file per user.
package keychain
