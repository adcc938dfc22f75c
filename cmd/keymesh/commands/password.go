// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/keymesh/lib/secret"
)

// readPassword returns the password from path ("-" is stdin) or, with
// no path, prompts on the terminal. confirm asks twice.
func readPassword(path, prompt string, confirm bool) (*secret.Buffer, error) {
	if path != "" {
		return secret.ReadFromPath(path)
	}

	descriptor := int(os.Stdin.Fd())
	if !term.IsTerminal(descriptor) {
		return nil, errors.New("stdin is not a terminal; use --password-file")
	}

	first, err := promptOnce(descriptor, prompt)
	if err != nil {
		return nil, err
	}
	if !confirm {
		return first, nil
	}

	second, err := promptOnce(descriptor, "Confirm "+prompt)
	if err != nil {
		first.Close()
		return nil, err
	}
	defer second.Close()
	if !first.Equal(second) {
		first.Close()
		return nil, errors.New("passwords do not match")
	}
	return first, nil
}

func promptOnce(descriptor int, prompt string) (*secret.Buffer, error) {
	fmt.Fprintf(os.Stderr, "%s: ", prompt)
	data, err := term.ReadPassword(descriptor)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty password")
	}
	return secret.NewFromBytes(data)
}
