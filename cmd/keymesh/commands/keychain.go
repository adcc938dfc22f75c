// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/keymesh/cmd/keymesh/cli"
	"github.com/bureau-foundation/keymesh/lib/config"
	"github.com/bureau-foundation/keymesh/lib/keychain"
)

func keychainCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "keychain",
		Summary: "Manage password-wrapped master keys",
		Subcommands: []*cli.Command{
			keychainCreateCommand(out),
			keychainVerifyCommand(out),
		},
	}
}

// keychainFlags holds the flags shared by the keychain subcommands.
type keychainFlags struct {
	store        string
	user         string
	passwordFile string
}

func (f *keychainFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.store, "store", config.ExpandPath(config.Default().Keychain.Store, ""), "key-chain directory")
	flagSet.StringVar(&f.user, "user", "", "user the entry belongs to (required)")
	flagSet.StringVar(&f.passwordFile, "password-file", "", `file holding the password ("-" for stdin); prompts if unset`)
}

func (f *keychainFlags) check(args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected argument %q", args[0])
	}
	if f.user == "" {
		return errors.New("--user is required")
	}
	return nil
}

func keychainCreateCommand(out io.Writer) *cli.Command {
	var flags keychainFlags
	var force bool

	return &cli.Command{
		Name:    "create",
		Summary: "Generate a master key and wrap it under a password",
		Description: `Generate a fresh 256-bit master key, wrap it under a key derived
from the password, and write the entry to the key-chain store.

Replacing an entry makes everything encrypted under the old master key
unreadable, so an existing entry is only overwritten with --force.`,
		Usage: "keymesh keychain create --user NAME [--store DIR] [--password-file PATH] [--force]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("create", pflag.ContinueOnError)
			flags.register(flagSet)
			flagSet.BoolVar(&force, "force", false, "replace an existing entry")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := flags.check(args); err != nil {
				return err
			}
			store := keychain.NewFileStore(flags.store)

			_, err := store.Lookup(ctx, flags.user)
			switch {
			case err == nil && !force:
				return fmt.Errorf("key-chain entry for %q already exists in %s (use --force to replace it)", flags.user, flags.store)
			case err != nil && !errors.Is(err, keychain.ErrNotFound):
				if !force {
					return err
				}
				logger.Warn("replacing unreadable key-chain entry", "user", flags.user, "error", err)
			}

			password, err := readPassword(flags.passwordFile, "New password for "+flags.user, true)
			if err != nil {
				return err
			}
			defer password.Close()

			masterKey, err := keychain.GenerateMasterKey()
			if err != nil {
				return err
			}
			defer masterKey.Close()

			entry, err := keychain.Wrap(password, masterKey)
			if err != nil {
				return err
			}
			if err := store.Save(flags.user, entry); err != nil {
				return err
			}
			logger.Info("key-chain entry written", "user", flags.user, "store", flags.store)
			fmt.Fprintf(out, "created key-chain entry for %s in %s\n", flags.user, flags.store)
			return nil
		},
	}
}

func keychainVerifyCommand(out io.Writer) *cli.Command {
	var flags keychainFlags

	return &cli.Command{
		Name:    "verify",
		Summary: "Check a password against a key-chain entry",
		Usage:   "keymesh keychain verify --user NAME [--store DIR] [--password-file PATH]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flags.register(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if err := flags.check(args); err != nil {
				return err
			}
			entry, err := keychain.NewFileStore(flags.store).Lookup(ctx, flags.user)
			if err != nil {
				return err
			}

			password, err := readPassword(flags.passwordFile, "Password for "+flags.user, false)
			if err != nil {
				return err
			}
			defer password.Close()

			masterKey, err := keychain.Unwrap(password, entry)
			if err != nil {
				return errors.New("incorrect password")
			}
			masterKey.Close()
			fmt.Fprintf(out, "password for %s is correct\n", flags.user)
			return nil
		},
	}
}
