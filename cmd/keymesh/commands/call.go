// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/keymesh/cmd/keymesh/cli"
	"github.com/bureau-foundation/keymesh/custodian"
	"github.com/bureau-foundation/keymesh/internal/node"
	"github.com/bureau-foundation/keymesh/lib/config"
	"github.com/bureau-foundation/keymesh/lib/service"
)

// callTimeout bounds one call. Unlock runs PBKDF2 on the node.
const callTimeout = 60 * time.Second

func callCommand(out io.Writer) *cli.Command {
	var (
		socketPath   string
		nodeID       string
		user         string
		passwordFile string
	)

	return &cli.Command{
		Name:    "call",
		Summary: "Invoke an action on a running node",
		Description: `Invoke one action on a node's control socket and print the result.

Actions:
  status              print the node's status; exits 1 while locked
  encrypt TEXT        print the ciphertext of TEXT
  decrypt CIPHERTEXT  print the plaintext
  unlock              unlock with --user and a password
  lock                drop the key on this node only
  lock-system         lock every node in the mesh
  request-sync        ask the control node for the key again`,
		Usage: "keymesh call (--socket PATH | --node ID) ACTION [ARG]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("call", pflag.ContinueOnError)
			flagSet.StringVar(&socketPath, "socket", "", "node control socket")
			flagSet.StringVar(&nodeID, "node", "", "node ID; derives the socket path from the default layout")
			flagSet.StringVar(&user, "user", "", "key-chain user for unlock")
			flagSet.StringVar(&passwordFile, "password-file", "", `file holding the password for unlock ("-" for stdin); prompts if unset`)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) == 0 {
				return errors.New("action required (see --help)")
			}
			path, err := callSocketPath(socketPath, nodeID)
			if err != nil {
				return err
			}
			action, rest := args[0], args[1:]

			fields, err := callFields(action, rest)
			if err != nil {
				return err
			}
			if action == node.ActionUnlock {
				if user == "" {
					return errors.New("unlock requires --user")
				}
				password, err := readPassword(passwordFile, "Password for "+user, false)
				if err != nil {
					return err
				}
				defer password.Close()
				fields = map[string]any{"user": user, "password": password.Bytes()}
			}

			ctx, cancel := context.WithTimeout(ctx, callTimeout)
			defer cancel()

			switch action {
			case node.ActionEncrypt, node.ActionDecrypt:
				var response node.TextResponse
				if err := service.Call(ctx, path, action, fields, &response); err != nil {
					return err
				}
				fmt.Fprintln(out, response.Text)
				return nil
			default:
				var status custodian.Status
				if err := service.Call(ctx, path, action, fields, &status); err != nil {
					return err
				}
				if err := printStatus(out, status); err != nil {
					return err
				}
				if action == node.ActionStatus && !status.IsUnlocked {
					return &cli.ExitError{Code: 1}
				}
				return nil
			}
		},
	}
}

func callSocketPath(socketPath, nodeID string) (string, error) {
	switch {
	case socketPath != "" && nodeID != "":
		return "", errors.New("--socket and --node are mutually exclusive")
	case socketPath != "":
		return socketPath, nil
	case nodeID != "":
		return config.ExpandPath(config.Default().Service.SocketPath, nodeID), nil
	default:
		return "", errors.New("one of --socket or --node is required")
	}
}

// callFields validates the positional arguments for action and returns
// the request fields.
func callFields(action string, args []string) (map[string]any, error) {
	switch action {
	case node.ActionEncrypt, node.ActionDecrypt:
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes exactly one argument", action)
		}
		if action == node.ActionEncrypt {
			return map[string]any{"plaintext": args[0]}, nil
		}
		return map[string]any{"ciphertext": args[0]}, nil
	case node.ActionStatus, node.ActionUnlock, node.ActionLock, node.ActionLockSystem, node.ActionRequestSync:
		if len(args) != 0 {
			return nil, fmt.Errorf("%s takes no arguments", action)
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown action %q", action)
	}
}

func printStatus(out io.Writer, status custodian.Status) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
