// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keychain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/bureau-foundation/keymesh/lib/codec"
)

// ErrNotFound is returned by a Store that has no entry for a user.
var ErrNotFound = errors.New("keychain: no entry for user")

// Store looks up key-chain entries. Lookups happen out of band, before
// the custodian's unlock is called.
type Store interface {
	Lookup(ctx context.Context, user string) (Entry, error)
}

// userPattern keeps user names safe to use as file names.
var userPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._@-]{0,127}$`)

// FileStore keeps each entry in <Directory>/<user>.keychain as CBOR.
type FileStore struct {
	Directory string
}

// Compile-time interface check.
var _ Store = (*FileStore)(nil)

// NewFileStore returns a FileStore rooted at directory.
func NewFileStore(directory string) *FileStore {
	return &FileStore{Directory: directory}
}

func (s *FileStore) path(user string) (string, error) {
	if !userPattern.MatchString(user) {
		return "", fmt.Errorf("keychain: invalid user name %q", user)
	}
	return filepath.Join(s.Directory, user+".keychain"), nil
}

// Lookup reads the entry for user.
func (s *FileStore) Lookup(ctx context.Context, user string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	path, err := s.path(user)
	if err != nil {
		return Entry{}, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, fmt.Errorf("%w %q", ErrNotFound, user)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("keychain: reading %s: %w", path, err)
	}

	var entry Entry
	if err := codec.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("keychain: decoding %s: %w", path, err)
	}
	if err := entry.Validate(); err != nil {
		return Entry{}, fmt.Errorf("%s: %w", path, err)
	}
	return entry, nil
}

// Save writes entry for user with mode 0600, replacing any existing
// entry atomically.
func (s *FileStore) Save(user string, entry Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	path, err := s.path(user)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Directory, 0o700); err != nil {
		return fmt.Errorf("keychain: creating %s: %w", s.Directory, err)
	}

	data, err := codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("keychain: encoding entry: %w", err)
	}

	temporary, err := os.CreateTemp(s.Directory, "."+user+".*")
	if err != nil {
		return fmt.Errorf("keychain: creating temporary file: %w", err)
	}
	defer os.Remove(temporary.Name())

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("keychain: writing %s: %w", temporary.Name(), err)
	}
	if err := temporary.Chmod(0o600); err != nil {
		temporary.Close()
		return fmt.Errorf("keychain: chmod %s: %w", temporary.Name(), err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("keychain: closing %s: %w", temporary.Name(), err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return fmt.Errorf("keychain: installing %s: %w", path, err)
	}
	return nil
}
