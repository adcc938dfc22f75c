// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the mesh
// bus (envelope timestamps, dedup retention) and the key custodian
// (sync request timeouts).
//
// Production code receives [Real]. Tests receive [Fake], whose time
// stands still until [FakeClock.Advance] is called, so timeout paths
// run deterministically without sleeping.
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	keeper := custodian.New(custodian.Config{Clock: fake, ...})
//	keeper.Init("notes-data")
//	fake.WaitForTimers(1)
//	fake.Advance(10 * time.Second)
package clock
