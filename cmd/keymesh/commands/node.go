// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/keymesh/cmd/keymesh/cli"
	"github.com/bureau-foundation/keymesh/internal/node"
	"github.com/bureau-foundation/keymesh/lib/config"
	"github.com/bureau-foundation/keymesh/lib/version"
)

func nodeCommand() *cli.Command {
	var (
		configPath   string
		unlock       bool
		user         string
		passwordFile string
	)

	return &cli.Command{
		Name:    "node",
		Summary: "Run one node: bus, custodian and control socket",
		Description: `Run one node of the mesh. The node joins the hub named by
mesh.hub_socket, runs a key custodian for node.id and serves its control
socket at service.socket_path.

The config file comes from --config or, failing that, the ` + config.EnvironmentVariable + `
environment variable. There is no other lookup.

With --unlock (control node only), the node unwraps the master key for
--user right after joining, which pushes it to every node already
connected.`,
		Usage: "keymesh node [--config PATH] [--unlock --user NAME [--password-file PATH]]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("node", pflag.ContinueOnError)
			flagSet.StringVar(&configPath, "config", "", "config file (default $"+config.EnvironmentVariable+")")
			flagSet.BoolVar(&unlock, "unlock", false, "unlock the vault at startup")
			flagSet.StringVar(&user, "user", "", "key-chain user for --unlock")
			flagSet.StringVar(&passwordFile, "password-file", "", `file holding the password for --unlock ("-" for stdin); prompts if unset`)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if unlock && user == "" {
				return errors.New("--unlock requires --user")
			}

			var cfg *config.Config
			var err error
			if configPath != "" {
				cfg, err = config.Load(configPath)
			} else {
				cfg, err = config.LoadFromEnv()
			}
			if err != nil {
				return err
			}

			logger := cli.NewLogger(os.Stderr, cfg.Logging.Format, cli.ParseLevel(cfg.Logging.Level))
			logger.Info("keymesh node starting", "version", version.Info(), "environment", cfg.Environment)

			options := node.Options{Config: cfg, Logger: logger}
			if unlock {
				password, err := readPassword(passwordFile, "Password for "+user, false)
				if err != nil {
					return err
				}
				defer password.Close()
				options.UnlockUser = user
				options.UnlockPassword = password
			}
			return node.Run(ctx, options)
		},
	}
}
