// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material and passwords outside the Go heap.
//
// [Buffer] memory comes from an anonymous mmap, is locked into RAM with
// mlock so it never reaches swap, and is marked MADV_DONTDUMP so it
// never lands in a core dump. Close zeroes, unlocks, and unmaps it.
// The garbage collector never sees the region, so it cannot leave
// stale copies behind when it moves objects.
//
// The custodian keeps the master key in a Buffer for exactly as long as
// the vault is unlocked; locking closes the Buffer. Wrapping keys and
// passwords live in Buffers for the duration of one unlock call.
//
// Constructors: [New] (zero-filled), [NewFromBytes] (copies then zeroes
// the source), [ReadFromPath] (file or stdin, whitespace trimmed).
// After Close every accessor except Len panics.
package secret
