// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/keymesh/custodian"
	"github.com/bureau-foundation/keymesh/lib/config"
	"github.com/bureau-foundation/keymesh/lib/secret"
	"github.com/bureau-foundation/keymesh/lib/testutil"
	"github.com/bureau-foundation/keymesh/mesh"
)

// startHub serves a socket hub for the duration of the test.
func startHub(t *testing.T, directory string) string {
	t.Helper()
	socketPath := filepath.Join(directory, "hub.sock")
	hub := mesh.NewSocketHub(socketPath, testutil.Logger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, testTimeout, "hub shutdown")
	})
	select {
	case <-hub.Ready():
	case err := <-done:
		t.Fatalf("hub exited early: %v", err)
	}
	return socketPath
}

func nodeConfig(directory, hubSocket, storeDirectory, nodeID string) *config.Config {
	cfg := config.Default()
	cfg.Node.ID = nodeID
	cfg.Node.Origin = testOrigin
	cfg.Mesh.HubSocket = hubSocket
	cfg.Custodian.SessionFlag = filepath.Join(directory, nodeID+".unlocked")
	cfg.Keychain.Store = storeDirectory
	cfg.Service.SocketPath = filepath.Join(directory, nodeID+".sock")
	return cfg
}

// runNode starts Run in the background and waits for its control
// socket to answer.
func runNode(t *testing.T, options Options) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, options) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, testTimeout, "node shutdown"); err != nil {
			t.Errorf("Run(%s): %v", options.Config.Node.ID, err)
		}
	})

	socketPath := options.Config.Service.SocketPath
	testutil.Eventually(t, testTimeout, func() bool {
		select {
		case err := <-done:
			t.Fatalf("Run(%s) exited early: %v", options.Config.Node.ID, err)
		default:
		}
		return call(t, socketPath, ActionStatus, nil, nil) == nil
	}, "control socket for %s", options.Config.Node.ID)
}

func TestRunPropagatesUnlockAcrossHub(t *testing.T) {
	t.Parallel()
	directory := testutil.SocketDir(t)
	hubSocket := startHub(t, directory)
	store := newStore(t)
	storeDirectory := store.Directory

	notes := nodeConfig(directory, hubSocket, storeDirectory, "notes-data")
	runNode(t, Options{Config: notes, Logger: testutil.Logger(t)})

	if got := status(t, notes.Service.SocketPath); got.Phase != custodian.PhaseAwaitingSync {
		t.Fatalf("notes phase = %q, want %q", got.Phase, custodian.PhaseAwaitingSync)
	}

	password, err := secret.NewFromBytes([]byte(testPassword))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer password.Close()

	control := nodeConfig(directory, hubSocket, storeDirectory, "vault-control")
	runNode(t, Options{
		Config:         control,
		Logger:         testutil.Logger(t),
		UnlockUser:     testUser,
		UnlockPassword: password,
	})

	testutil.Eventually(t, testTimeout, func() bool {
		return status(t, notes.Service.SocketPath).IsUnlocked
	}, "notes-data never received the key")

	controlStatus := status(t, control.Service.SocketPath)
	notesStatus := status(t, notes.Service.SocketPath)
	if controlStatus.Fingerprint != notesStatus.Fingerprint {
		t.Errorf("fingerprints differ: control %s, notes %s", controlStatus.Fingerprint, notesStatus.Fingerprint)
	}
	if _, err := os.Stat(notes.Custodian.SessionFlag); err != nil {
		t.Errorf("session flag not written: %v", err)
	}

	// Ciphertext from one node opens on the other.
	var encrypted, decrypted TextResponse
	if err := call(t, control.Service.SocketPath, ActionEncrypt, map[string]any{"plaintext": "shared"}, &encrypted); err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if err := call(t, notes.Service.SocketPath, ActionDecrypt, map[string]any{"ciphertext": encrypted.Text}, &decrypted); err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if decrypted.Text != "shared" {
		t.Errorf("decrypted = %q", decrypted.Text)
	}

	if err := call(t, control.Service.SocketPath, ActionLockSystem, nil, nil); err != nil {
		t.Fatalf("lock-system: %v", err)
	}
	testutil.Eventually(t, testTimeout, func() bool {
		return !status(t, notes.Service.SocketPath).IsUnlocked
	}, "notes-data stayed unlocked after lock_system")
	testutil.Eventually(t, testTimeout, func() bool {
		_, err := os.Stat(notes.Custodian.SessionFlag)
		return errors.Is(err, os.ErrNotExist)
	}, "session flag not cleared")
}

func TestRunRejectsUnknownNode(t *testing.T) {
	t.Parallel()
	directory := testutil.SocketDir(t)
	cfg := nodeConfig(directory, filepath.Join(directory, "hub.sock"), t.TempDir(), "printer")

	err := Run(context.Background(), Options{Config: cfg, Logger: testutil.Logger(t)})
	if err == nil || !strings.Contains(err.Error(), "not in the registry") {
		t.Fatalf("Run = %v, want registry error", err)
	}
}

func TestRunWrongInitialPassword(t *testing.T) {
	t.Parallel()
	directory := testutil.SocketDir(t)
	hubSocket := startHub(t, directory)
	store := newStore(t)

	password, err := secret.NewFromBytes([]byte("not the password"))
	if err != nil {
		t.Fatalf("NewFromBytes: %v", err)
	}
	defer password.Close()

	cfg := nodeConfig(directory, hubSocket, store.Directory, "vault-control")
	err = Run(context.Background(), Options{
		Config:         cfg,
		Logger:         testutil.Logger(t),
		UnlockUser:     testUser,
		UnlockPassword: password,
	})
	if !errors.Is(err, errIncorrectPassword) {
		t.Fatalf("Run = %v, want %v", err, errIncorrectPassword)
	}
}

func TestRunInvalidConfig(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	err := Run(context.Background(), Options{Config: cfg, Logger: testutil.Logger(t)})
	if err == nil || !strings.Contains(err.Error(), "node.id is required") {
		t.Fatalf("Run = %v, want validation error", err)
	}
}
