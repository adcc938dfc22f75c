// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry is the fixed table of ecosystem nodes.
//
// Every node knows the whole table at build or deploy time; nothing is
// discovered at runtime and nothing in the table changes while a node
// runs. A [Registry] validates its table once in [New] and hands out
// copies afterwards, so callers cannot mutate shared state.
//
// Exactly one node carries [RoleControl]. The key custodian uses the
// table to decide whether it is the control node (it answers key sync
// requests) and which node id sync commands must come from.
//
// [Default] is the built-in ecosystem. [Load] reads an alternative
// table from YAML or JSONC, chosen by file extension.
package registry
