// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/keymesh/cmd/keymesh/cli"
	"github.com/bureau-foundation/keymesh/lib/registry"
)

func nodesCommand(out io.Writer) *cli.Command {
	var registryFile string

	return &cli.Command{
		Name:    "nodes",
		Summary: "List the node registry",
		Usage:   "keymesh nodes [--registry FILE]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("nodes", pflag.ContinueOnError)
			flagSet.StringVar(&registryFile, "registry", "", "registry file (.yaml or .jsonc); built-in registry if unset")
			return flagSet
		},
		Run: func(_ context.Context, args []string, _ *slog.Logger) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			nodes := registry.Default()
			if registryFile != "" {
				var err error
				if nodes, err = registry.Load(registryFile); err != nil {
					return err
				}
			}

			tw := tabwriter.NewWriter(out, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "ID\tROLE\tSTATUS\tENDPOINT\tCAPABILITIES")
			for _, identity := range nodes.Nodes() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					identity.ID, identity.Role, identity.Status, identity.Endpoint,
					strings.Join(identity.Capabilities, ","))
			}
			return tw.Flush()
		},
	}
}
