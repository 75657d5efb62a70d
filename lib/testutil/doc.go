// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for custody packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the select
// with a wall-clock fallback so individual tests never call time.After
// directly. Everything else in the suite runs on clock.Fake.
//
// [SocketDir] creates a short temporary directory for Unix sockets,
// whose paths are limited to 108 bytes. [PostgresURL] returns the test
// database URL or skips the test when none is configured, and
// [UniqueName] produces identifiers for isolating tests that share
// such a database.
//
// All helpers call t.Fatalf (or t.Skip) rather than returning errors,
// since test setup failures are not recoverable.
package testutil
