// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/keymesh/custodian"
	"github.com/bureau-foundation/keymesh/lib/clock"
	"github.com/bureau-foundation/keymesh/lib/config"
	"github.com/bureau-foundation/keymesh/lib/keychain"
	"github.com/bureau-foundation/keymesh/lib/registry"
	"github.com/bureau-foundation/keymesh/lib/secret"
	"github.com/bureau-foundation/keymesh/lib/service"
	"github.com/bureau-foundation/keymesh/mesh"
)

// Options configures Run.
type Options struct {
	Config *config.Config
	Logger *slog.Logger

	// Clock is optional; nil means the real clock.
	Clock clock.Clock

	// UnlockUser and UnlockPassword, when both set, unlock the vault
	// right after Init. The password is borrowed.
	UnlockUser     string
	UnlockPassword *secret.Buffer
}

// LoadRegistry returns the registry named by the config, or the
// built-in one.
func LoadRegistry(cfg *config.Config) (*registry.Registry, error) {
	if cfg.Node.RegistryFile == "" {
		return registry.Default(), nil
	}
	return registry.Load(cfg.Node.RegistryFile)
}

// Run starts the node and blocks until ctx is cancelled or the hub
// connection is lost.
func Run(ctx context.Context, options Options) error {
	cfg, logger := options.Config, options.Logger
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	nodes, err := LoadRegistry(cfg)
	if err != nil {
		return fmt.Errorf("loading registry: %w", err)
	}
	identity, ok := nodes.Lookup(cfg.Node.ID)
	if !ok {
		return fmt.Errorf("node %q is not in the registry", cfg.Node.ID)
	}
	logger = logger.With("node", identity.ID)

	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	transport, err := mesh.DialSocket(ctx, cfg.Mesh.HubSocket, cfg.Node.Origin, logger)
	if err != nil {
		return err
	}
	bus, err := mesh.New(mesh.Config{
		NodeID:         identity.ID,
		Origin:         cfg.Node.Origin,
		Transports:     []mesh.Transport{transport},
		AllowedOrigins: cfg.Mesh.AllowedOrigins,
		DedupWindow:    cfg.DedupWindow(),
		Clock:          options.Clock,
		Logger:         logger,
	})
	if err != nil {
		transport.Close()
		return err
	}
	defer bus.Close()

	var session custodian.SessionFlag
	if cfg.Custodian.SessionFlag != "" {
		session = &custodian.FileSessionFlag{Path: cfg.Custodian.SessionFlag}
	}
	vault, err := custodian.New(custodian.Config{
		Bus:          bus,
		Registry:     nodes,
		Logger:       logger,
		Clock:        options.Clock,
		Session:      session,
		SyncTimeout:  cfg.SyncTimeout(),
		SyncAttempts: cfg.Custodian.SyncAttempts,
	})
	if err != nil {
		return err
	}
	defer vault.Close()

	if err := vault.Init(identity.ID); err != nil {
		return err
	}

	store := keychain.NewFileStore(cfg.Keychain.Store)
	if options.UnlockUser != "" && options.UnlockPassword != nil {
		entry, err := store.Lookup(ctx, options.UnlockUser)
		if err != nil {
			return fmt.Errorf("looking up key-chain entry for %s: %w", options.UnlockUser, err)
		}
		if !vault.Unlock(options.UnlockPassword, entry) {
			return errIncorrectPassword
		}
	}

	server := service.NewSocketServer(cfg.Service.SocketPath, logger)
	RegisterActions(server, vault, store, logger)

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve(serveCtx) }()

	logger.Info("node running",
		"role", identity.Role,
		"hub", cfg.Mesh.HubSocket,
		"socket", cfg.Service.SocketPath,
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-transport.Done():
		runErr = errors.New("lost connection to socket hub")
	case runErr = <-serveDone:
		if runErr == nil {
			runErr = errors.New("control socket stopped unexpectedly")
		}
		return runErr
	}

	cancel()
	if err := <-serveDone; err != nil {
		logger.Error("control socket error", "error", err)
	}
	return runErr
}
