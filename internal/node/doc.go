// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package node assembles one running keymesh node: a mesh bus over the
// socket hub, a custodian bound to the node's identity, and the local
// control socket exposing the custodian to hosting applications.
package node
