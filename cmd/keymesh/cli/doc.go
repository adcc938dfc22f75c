// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the keymesh
// binary: a tree of [Command] values with pflag-parsed flags, help
// output, and typo suggestions for unknown commands and flags.
package cli
