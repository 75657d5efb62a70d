// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for the custody subsystem. Route
// cache expiry, ledger event polling, and retention sweeps all take a
// [Clock] instead of calling the time package, so tests can drive them
// with [Fake] and [FakeClock.Advance].
//
// A test that starts a polling goroutine calls WaitForTimers before
// advancing, to avoid racing the goroutine's ticker registration:
//
//	fake := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
//	go poller.Run(ctx)
//	fake.WaitForTimers(1)
//	fake.Advance(pollInterval)
package clock
