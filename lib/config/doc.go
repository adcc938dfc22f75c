// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for keymesh nodes
// and hubs.
//
// Configuration is loaded from a single file named by either the
// KEYMESH_CONFIG environment variable (via [LoadFromEnv]) or a --config
// flag (via [Load]). There are no fallbacks, no ~/.config discovery,
// and no automatic file search.
//
// The file may carry development and production sections that
// override base values when [Config].Environment matches. Production
// is stricter: [Config.Validate] rejects the "*" origin wildcard.
//
// ${HOME}, ${XDG_RUNTIME_DIR}, ${KEYMESH_NODE} and ${VAR:-default}
// patterns are expanded in path fields after loading. No environment
// variable overrides a config value.
//
// This package depends on no other keymesh packages.
package config
