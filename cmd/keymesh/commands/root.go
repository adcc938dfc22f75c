// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the keymesh command tree.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/keymesh/cmd/keymesh/cli"
	"github.com/bureau-foundation/keymesh/lib/version"
)

// Root returns the complete command tree. Command output goes to out;
// logs and help go to stderr.
func Root(out io.Writer) *cli.Command {
	versionCommand := &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
			fmt.Fprintln(out, version.Info())
			return nil
		},
	}

	return &cli.Command{
		Name: "keymesh",
		Description: `keymesh: master-key distribution across a mesh of co-located nodes.

One control node unwraps the master key from a password-protected
key-chain entry and hands it to every other node over a shared broadcast
bus. Each node encrypts and decrypts locally.`,
		Subcommands: []*cli.Command{
			hubCommand(),
			nodeCommand(),
			keychainCommand(out),
			callCommand(out),
			nodesCommand(out),
			versionCommand,
		},
		Examples: []cli.Example{
			{Description: "Run the hub, then a node per config file", Command: "keymesh hub &\nkeymesh node --config notes.yaml"},
			{Description: "Unlock the control node", Command: "keymesh call --node vault-control unlock --user alice"},
		},
	}
}

// IsVersionFlag reports whether args asks for the version rather than a
// command.
func IsVersionFlag(args []string) bool {
	return len(args) == 1 && (args[0] == "--version" || args[0] == "-v")
}
