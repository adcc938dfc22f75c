// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custodian

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/keymesh/lib/keychain"
	"github.com/bureau-foundation/keymesh/lib/secret"
)

// fingerprintContext is hashed under the master key to produce
// Status.Fingerprint.
const fingerprintContext = "keymesh master key fingerprint v1"

// Encrypt encrypts plaintext under the master key. It returns
// ErrInvalidPlaintext when plaintext is not valid UTF-8 and
// ErrVaultLocked when no key is held.
func (c *Custodian) Encrypt(plaintext string) (string, error) {
	if !utf8.ValidString(plaintext) {
		return "", ErrInvalidPlaintext
	}
	return EncryptValue(c, plaintext)
}

// Decrypt reverses Encrypt. It returns ErrVaultLocked when no key is
// held and ErrDecryptionFailed for anything that does not
// authenticate.
func (c *Custodian) Decrypt(ciphertext string) (string, error) {
	return DecryptValue[string](c, ciphertext)
}

// EncryptValue JSON-encodes value and encrypts it like Encrypt.
func EncryptValue[T any](c *Custodian, value T) (string, error) {
	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encoding plaintext: %w", err)
	}
	defer secret.Zero(plaintext)

	sealed, err := c.seal(plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptValue decrypts ciphertext and JSON-decodes the plaintext into
// T.
func DecryptValue[T any](c *Custodian, ciphertext string) (T, error) {
	var value T

	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		// Locked takes precedence over malformed input.
		if c.locked() {
			return value, ErrVaultLocked
		}
		return value, fmt.Errorf("%w: invalid base64", ErrDecryptionFailed)
	}

	plaintext, err := c.open(raw)
	if err != nil {
		return value, err
	}
	defer secret.Zero(plaintext)

	if err := json.Unmarshal(plaintext, &value); err != nil {
		return value, fmt.Errorf("%w: decoding plaintext", ErrDecryptionFailed)
	}
	return value, nil
}

// seal returns IV || AES-GCM(plaintext) with a fresh random IV.
func (c *Custodian) seal(plaintext []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key == nil {
		return nil, ErrVaultLocked
	}

	aead, err := keychain.NewGCM(c.key.Bytes())
	if err != nil {
		return nil, err
	}
	output := make([]byte, keychain.IVSize, keychain.IVSize+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(output); err != nil {
		return nil, fmt.Errorf("generating IV: %w", err)
	}
	return aead.Seal(output, output[:keychain.IVSize], plaintext, nil), nil
}

func (c *Custodian) open(raw []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.key == nil {
		return nil, ErrVaultLocked
	}

	aead, err := keychain.NewGCM(c.key.Bytes())
	if err != nil {
		return nil, err
	}
	if len(raw) < keychain.IVSize+aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	plaintext, err := aead.Open(nil, raw[:keychain.IVSize], raw[keychain.IVSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrDecryptionFailed)
	}
	return plaintext, nil
}

func (c *Custodian) locked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key == nil
}

// fingerprintLocked returns a short identifier of the master key, or ""
// when locked. Two nodes with equal fingerprints hold the same key.
func (c *Custodian) fingerprintLocked() string {
	if c.key == nil {
		return ""
	}
	hasher, err := blake3.NewKeyed(c.key.Bytes())
	if err != nil {
		return ""
	}
	hasher.Write([]byte(fingerprintContext))
	return hex.EncodeToString(hasher.Sum(nil)[:8])
}
