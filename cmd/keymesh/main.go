// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Keymesh runs and operates a key-distribution mesh: the socket hub,
// individual nodes, key-chain management and calls into running nodes.
// Run "keymesh --help" for the command list.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/keymesh/cmd/keymesh/commands"
	"github.com/bureau-foundation/keymesh/lib/process"
	"github.com/bureau-foundation/keymesh/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	args := os.Args[1:]
	if commands.IsVersionFlag(args) {
		fmt.Println(version.Info())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return commands.Root(os.Stdout).Execute(ctx, args)
}
