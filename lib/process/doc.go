// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint error handling shared by
// keymesh binaries: the one place outside the CLI that writes raw text
// to stderr, used before a structured logger exists or after it is
// gone.
package process
