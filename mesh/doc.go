// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mesh is the message bus that carries typed envelopes between
// the execution contexts of keymesh nodes.
//
// A [Bus] publishes every envelope on every [Transport] it was given
// and delivers envelopes arriving on any of them to its subscribers.
// Delivery is fire-and-forget: no acknowledgement, no retry, and no
// ordering between transports. The same envelope commonly arrives more
// than once when two contexts share several transports; each
// subscription drops repeats by envelope ID for [Config.DedupWindow].
//
// Transports:
//
//   - [ChannelHub] / [Channel]: a same-origin broadcast channel keyed
//     by (origin, name). Every listener on the channel receives every
//     frame, including listeners of the publishing bus.
//   - [Window] / [WindowTransport]: window messaging in a parent/child
//     frame tree. A publish posts to the parent and to every attached
//     child. Frames carry the sending window's origin, which must be on
//     the bus allow-list ([Config.AllowedOrigins]).
//   - [SocketHub] / [DialSocket]: the broadcast channel stretched
//     across processes through a Unix socket. The hub only admits
//     peers running as its own uid.
//
// Frames are CBOR-encoded [Envelope] values. Anything that does not
// decode, lacks a source or a known kind, or comes from a disallowed
// origin is dropped with a debug log and never reaches a handler.
//
// Handlers run on a per-listener goroutine, never on the publisher's
// stack, so a handler may itself Broadcast without re-entering the
// caller.
package mesh
