// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keychain

import (
	"bytes"
	"errors"
	"testing"

	"github.com/bureau-foundation/keymesh/lib/secret"
)

func password(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(value))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func masterKey(t *testing.T) *secret.Buffer {
	t.Helper()
	key, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("GenerateMasterKey: %v", err)
	}
	t.Cleanup(func() { key.Close() })
	return key
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	key := masterKey(t)
	entry, err := Wrap(password(t, "open sesame"), key)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if err := entry.Validate(); err != nil {
		t.Fatalf("Validate(wrapped entry): %v", err)
	}
	if len(entry.WrappedKey) != IVSize+KeySize+16 {
		t.Errorf("wrapped key is %d bytes, want %d", len(entry.WrappedKey), IVSize+KeySize+16)
	}

	recovered, err := Unwrap(password(t, "open sesame"), entry)
	if err != nil {
		t.Fatalf("Unwrap: %v", err)
	}
	defer recovered.Close()
	if !recovered.Equal(key) {
		t.Error("unwrapped key differs from the original")
	}

	t.Run("wrong password", func(t *testing.T) {
		_, err := Unwrap(password(t, "open sesame!"), entry)
		if !errors.Is(err, ErrUnwrapFailed) {
			t.Fatalf("Unwrap error = %v, want ErrUnwrapFailed", err)
		}
	})

	t.Run("flipped ciphertext bit", func(t *testing.T) {
		corrupt := Entry{Salt: entry.Salt, WrappedKey: bytes.Clone(entry.WrappedKey)}
		corrupt.WrappedKey[IVSize+3] ^= 0x01
		_, err := Unwrap(password(t, "open sesame"), corrupt)
		if !errors.Is(err, ErrUnwrapFailed) {
			t.Fatalf("Unwrap error = %v, want ErrUnwrapFailed", err)
		}
	})
}

func TestWrapUsesFreshSaltAndIV(t *testing.T) {
	key := masterKey(t)
	pass := password(t, "same password")
	first, err := Wrap(pass, key)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	second, err := Wrap(pass, key)
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if bytes.Equal(first.Salt, second.Salt) {
		t.Error("two wraps share a salt")
	}
	if bytes.Equal(first.WrappedKey[:IVSize], second.WrappedKey[:IVSize]) {
		t.Error("two wraps share an IV")
	}
}

func TestUnwrapRejectsMalformedEntriesWithoutDeriving(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
	}{
		{name: "empty", entry: Entry{}},
		{name: "short salt", entry: Entry{Salt: make([]byte, 8), WrappedKey: make([]byte, 64)}},
		{name: "short wrapped key", entry: Entry{Salt: make([]byte, SaltSize), WrappedKey: make([]byte, IVSize+4)}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Unwrap(password(t, "irrelevant"), test.entry)
			if !errors.Is(err, ErrUnwrapFailed) {
				t.Fatalf("Unwrap error = %v, want ErrUnwrapFailed", err)
			}
		})
	}
}

func TestWrapRejectsWrongKeySize(t *testing.T) {
	short, err := secret.NewFromBytes([]byte("sixteen byte key"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer short.Close()
	if _, err := Wrap(password(t, "pw"), short); err == nil {
		t.Fatal("Wrap accepted a 16-byte master key")
	}
}

func TestNewGCMNonceSize(t *testing.T) {
	aead, err := NewGCM(make([]byte, KeySize))
	if err != nil {
		t.Fatalf("NewGCM: %v", err)
	}
	if aead.NonceSize() != IVSize {
		t.Errorf("NonceSize() = %d, want %d", aead.NonceSize(), IVSize)
	}
	if _, err := NewGCM(make([]byte, 16)); err == nil {
		t.Error("NewGCM accepted an AES-128 key")
	}
}
