// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"strings"
	"testing"
)

func newKeypair(t *testing.T) *Keypair {
	t.Helper()
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })
	return keypair
}

func TestGenerateKeypairFormat(t *testing.T) {
	keypair := newKeypair(t)

	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Errorf("private key has unexpected prefix")
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want age1 prefix", keypair.PublicKey)
	}
	if err := ParsePublicKey(keypair.PublicKey); err != nil {
		t.Errorf("ParsePublicKey(generated): %v", err)
	}
}

func TestGenerateKeypairUnique(t *testing.T) {
	first := newKeypair(t)
	second := newKeypair(t)
	if first.PublicKey == second.PublicKey {
		t.Error("two keypairs share a public key")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	keypair := newKeypair(t)
	key := bytes.Repeat([]byte{0xA5}, 32)

	ciphertext, err := Seal(key, keypair.PublicKey)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(ciphertext, key) {
		t.Fatal("ciphertext contains the plaintext key")
	}

	opened, err := Open(ciphertext, keypair.PrivateKey)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer opened.Close()
	if !bytes.Equal(opened.Bytes(), key) {
		t.Errorf("opened %x, want %x", opened.Bytes(), key)
	}
}

func TestOpenWithWrongKeyFails(t *testing.T) {
	intended := newKeypair(t)
	other := newKeypair(t)

	ciphertext, err := Seal([]byte("master key"), intended.PublicKey)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(ciphertext, other.PrivateKey); err == nil {
		t.Fatal("Open with the wrong identity succeeded")
	}
}

func TestSealRejectsBadRecipient(t *testing.T) {
	if _, err := Seal([]byte("x"), "not-a-recipient"); err == nil {
		t.Fatal("Seal with invalid recipient succeeded")
	}
	if err := ParsePublicKey("age1bogus"); err == nil {
		t.Fatal("ParsePublicKey accepted garbage")
	}
}
