// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keychain

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"github.com/bureau-foundation/keymesh/lib/secret"
)

const (
	// Iterations is the PBKDF2 work factor.
	Iterations = 600_000

	// KeySize is the size of the master key and of the KEK.
	KeySize = 32

	// SaltSize is the size of Entry.Salt.
	SaltSize = 16

	// IVSize is the GCM nonce length used for wrapping and by the
	// custodian for data encryption.
	IVSize = 16
)

// ErrUnwrapFailed covers every reason an entry cannot be opened: wrong
// password, corrupt entry, or a wrapped key of the wrong size. Callers
// cannot tell these apart on purpose.
var ErrUnwrapFailed = errors.New("keychain: unable to unwrap master key")

// Entry is one user's key-chain record.
type Entry struct {
	Salt       []byte `cbor:"salt"`
	WrappedKey []byte `cbor:"wrapped_key"`
}

// Validate checks the entry's shape without touching the password.
func (e Entry) Validate() error {
	if len(e.Salt) != SaltSize {
		return fmt.Errorf("keychain: salt is %d bytes, want %d", len(e.Salt), SaltSize)
	}
	if minimum := IVSize + KeySize + 16; len(e.WrappedKey) < minimum {
		return fmt.Errorf("keychain: wrapped key is %d bytes, want at least %d", len(e.WrappedKey), minimum)
	}
	return nil
}

// GenerateMasterKey returns a fresh random master key.
func GenerateMasterKey() (*secret.Buffer, error) {
	key, err := secret.New(KeySize)
	if err != nil {
		return nil, err
	}
	if _, err := rand.Read(key.Bytes()); err != nil {
		key.Close()
		return nil, fmt.Errorf("keychain: generating master key: %w", err)
	}
	return key, nil
}

// DeriveWrappingKey runs PBKDF2 over password and salt. Both are
// borrowed. The caller must Close the result.
func DeriveWrappingKey(password *secret.Buffer, salt []byte) (*secret.Buffer, error) {
	derived := pbkdf2.Key(password.Bytes(), salt, Iterations, KeySize, sha256.New)
	return secret.NewFromBytes(derived)
}

// Wrap seals masterKey under password with a fresh salt and IV.
func Wrap(password, masterKey *secret.Buffer) (Entry, error) {
	if masterKey.Len() != KeySize {
		return Entry{}, fmt.Errorf("keychain: master key is %d bytes, want %d", masterKey.Len(), KeySize)
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return Entry{}, fmt.Errorf("keychain: generating salt: %w", err)
	}

	wrappingKey, err := DeriveWrappingKey(password, salt)
	if err != nil {
		return Entry{}, fmt.Errorf("keychain: deriving wrapping key: %w", err)
	}
	defer wrappingKey.Close()

	aead, err := NewGCM(wrappingKey.Bytes())
	if err != nil {
		return Entry{}, err
	}

	wrapped := make([]byte, IVSize, IVSize+KeySize+aead.Overhead())
	if _, err := rand.Read(wrapped); err != nil {
		return Entry{}, fmt.Errorf("keychain: generating IV: %w", err)
	}
	wrapped = aead.Seal(wrapped, wrapped[:IVSize], masterKey.Bytes(), nil)

	return Entry{Salt: salt, WrappedKey: wrapped}, nil
}

// Unwrap recovers the master key from entry. Every failure returns an
// error wrapping ErrUnwrapFailed. The caller must Close the result.
func Unwrap(password *secret.Buffer, entry Entry) (*secret.Buffer, error) {
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrapFailed, err)
	}

	wrappingKey, err := DeriveWrappingKey(password, entry.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: deriving wrapping key: %v", ErrUnwrapFailed, err)
	}
	defer wrappingKey.Close()

	aead, err := NewGCM(wrappingKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrapFailed, err)
	}

	iv := entry.WrappedKey[:IVSize]
	masterKey, err := aead.Open(nil, iv, entry.WrappedKey[IVSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: authentication failed", ErrUnwrapFailed)
	}
	if len(masterKey) != KeySize {
		secret.Zero(masterKey)
		return nil, fmt.Errorf("%w: unwrapped key is %d bytes", ErrUnwrapFailed, len(masterKey))
	}
	return secret.NewFromBytes(masterKey)
}

// NewGCM returns AES-256-GCM with the 16-byte nonce keymesh uses for
// both key wrapping and data encryption. key must be KeySize bytes.
func NewGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("keychain: AES key is %d bytes, want %d", len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keychain: creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("keychain: creating GCM: %w", err)
	}
	return aead, nil
}
