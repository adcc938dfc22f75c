// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for keymesh packages.
//
// [RequireReceive], [RequireClosed], and [RequireNoReceive] wrap the
// select-with-timeout pattern so tests waiting on asynchronous bus
// deliveries never hang and never call time.After directly. They are
// the only place tests touch the wall clock; protocol timeouts use
// lib/clock's fake instead.
//
// [SocketDir] returns a short directory under /tmp for Unix sockets,
// whose paths are limited to 108 bytes. [Logger] returns a slog.Logger
// that writes through t.Log so log output is attached to the test that
// produced it.
//
// All helpers fail the test with t.Fatalf rather than returning errors.
package testutil
