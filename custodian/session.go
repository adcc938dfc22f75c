// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custodian

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SessionFlag records whether the vault is unlocked for the current
// login session. It is advisory: the custodian never reads it back to
// decide whether it holds a key.
type SessionFlag interface {
	Set(unlocked bool) error
}

// FileSessionFlag is a marker file that exists while the vault is
// unlocked. Put it on tmpfs so it does not outlive the session.
type FileSessionFlag struct {
	Path string
}

// DefaultSessionFlagPath returns $XDG_RUNTIME_DIR/keymesh/<nodeID>.unlocked.
func DefaultSessionFlagPath(nodeID string) (string, error) {
	runtimeDirectory := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDirectory == "" {
		return "", errors.New("XDG_RUNTIME_DIR is not set")
	}
	return filepath.Join(runtimeDirectory, "keymesh", nodeID+".unlocked"), nil
}

// Set creates or removes the marker file.
func (f *FileSessionFlag) Set(unlocked bool) error {
	if !unlocked {
		if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clearing session flag: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("creating session flag directory: %w", err)
	}
	if err := os.WriteFile(f.Path, []byte("unlocked\n"), 0o600); err != nil {
		return fmt.Errorf("writing session flag: %w", err)
	}
	return nil
}

// MemorySessionFlag keeps the flag in memory.
type MemorySessionFlag struct {
	mu       sync.Mutex
	unlocked bool
}

func (f *MemorySessionFlag) Set(unlocked bool) error {
	f.mu.Lock()
	f.unlocked = unlocked
	f.mu.Unlock()
	return nil
}

// Unlocked returns the last value set.
func (f *MemorySessionFlag) Unlocked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unlocked
}
