// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custodian

import "errors"

var (
	// ErrVaultLocked is returned by Encrypt and Decrypt when no master
	// key is held.
	ErrVaultLocked = errors.New("vault is locked")

	// ErrDecryptionFailed covers malformed input, tampered ciphertext,
	// ciphertext from a different key, and undecodable plaintext.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidPlaintext is returned by Encrypt for a string that is
	// not valid UTF-8. Such strings cannot survive the JSON encoding of
	// the plaintext unchanged.
	ErrInvalidPlaintext = errors.New("plaintext is not valid UTF-8")

	// ErrUnknownNode is returned by Init for an id missing from the
	// registry.
	ErrUnknownNode = errors.New("unknown node")

	// ErrNotInitialized is returned by operations that need a node
	// identity before Init has succeeded.
	ErrNotInitialized = errors.New("custodian not initialized")
)

var errNoPendingRequest = errors.New("sealed key sync without a pending request")
