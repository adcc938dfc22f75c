// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/keymesh/cmd/keymesh/cli"
	"github.com/bureau-foundation/keymesh/lib/config"
	"github.com/bureau-foundation/keymesh/mesh"
)

func hubCommand() *cli.Command {
	var socketPath, configPath string

	return &cli.Command{
		Name:    "hub",
		Summary: "Run the socket hub that relays frames between nodes",
		Description: `Run the socket hub. Every node dials the hub; each frame a node
writes is relayed to every other connected node. Only processes of the
same user may connect.`,
		Usage: "keymesh hub [--socket PATH | --config PATH]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("hub", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", config.ExpandPath(config.Default().Mesh.HubSocket, ""), "hub socket path")
			flagSet.StringVar(&configPath, "config", "", "take the socket path from this config file's mesh.hub_socket")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if configPath != "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				socketPath = cfg.Mesh.HubSocket
			}
			if err := os.MkdirAll(filepath.Dir(socketPath), 0o700); err != nil {
				return fmt.Errorf("creating socket directory: %w", err)
			}

			hub := mesh.NewSocketHub(socketPath, logger)
			go func() {
				select {
				case <-hub.Ready():
					logger.Info("hub listening", "socket", socketPath)
				case <-ctx.Done():
				}
			}()
			return hub.Serve(ctx)
		},
	}
}
