// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package keystore is the encrypted secret store: it holds the plaintext
// half of each shipment's commit/reveal secret, encrypted under a single
// process-wide master key, one record per ledger token id.
//
// # Record format
//
// Each record is (token id, IV, ciphertext‖tag):
//
//	IV:     12 random bytes, fresh for every write
//	Sealed: AES-256-GCM ciphertext followed by the 16-byte GCM tag
//
// The additional authenticated data is the format tag
// "custody.secret.v1" followed by the token id as 8 big-endian bytes.
// Binding the token id into the tag means a record copied onto another
// token's row fails authentication instead of revealing the wrong
// secret.
//
// # Invariants
//
//   - IVs come from crypto/rand on every Put and are never derived or
//     reused. At 96 bits, 2^32 records under one key keep the collision
//     probability below 2^-32.
//   - Get never returns plaintext that failed authentication. Tag
//     mismatch, truncated records, and wrong IV lengths all surface as
//     custody.ErrIntegrity, distinct from the not-found result.
//   - Put is insert-only. A second Put for the same token fails with
//     custody.ErrConflict and the stored record is untouched; Replace
//     is the explicit overwrite.
//   - The master key is held in a secret.Buffer owned by the Store. It
//     is never logged or returned and is released by Close.
//
// Persistence is delegated to a [Repository]; lib/store provides SQLite,
// PostgreSQL, and in-memory implementations.
package keystore
