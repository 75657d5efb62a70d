// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool behind the
// custody sqlite storage driver.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Callers either
// [Pool.Take] a connection and [Pool.Put] it back, or use [Pool.Read]
// and [Pool.Write], which also manage the transaction. Connections are
// not safe for concurrent use; each goroutine holds its own for the
// duration of its work.
//
// # Pragmas
//
// Every connection is initialized with:
//
//   - journal_mode=WAL: readers never block the single writer.
//   - synchronous=FULL: a committed secret record survives power loss.
//     The secret store is the only copy of each shipment secret, so
//     the cheaper NORMAL level is not acceptable here.
//   - busy_timeout=5000: wait up to 5 seconds for the write lock
//     instead of failing with SQLITE_BUSY.
//   - foreign_keys=OFF: routes may reference nodes that are missing;
//     the resolver reports that as inconsistent reference data rather
//     than the database refusing the import.
//   - temp_store=MEMORY.
//
// Schema setup runs in [Config.OnConnect] and must be idempotent
// (CREATE TABLE IF NOT EXISTS), since it runs once per connection.
package sqlitepool
