// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the local control socket of a keymesh node.
//
// The protocol is one CBOR request and one CBOR [Response] per
// connection. A request is a map with an "action" field plus
// action-specific fields; handlers registered with
// [SocketServer.Handle] decode the fields they need from the raw
// request. [Call] is the matching client.
//
// Only the node's own user may connect: the socket is created with mode
// 0600 and each connection's SO_PEERCRED uid is checked.
package service
