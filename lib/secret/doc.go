// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds key material and revealed shipment secrets in
// memory the Go runtime never sees.
//
// [Buffer] allocates via mmap(MAP_ANONYMOUS), locks the pages with
// mlock so they are never swapped, and marks them MADV_DONTDUMP so a
// core dump of custodyd does not contain the master encryption key.
// Close zeroes, unlocks, and unmaps. After Close any access panics.
//
// Constructors:
//
//   - [New] allocates a zero-filled buffer
//   - [NewFromBytes] copies into protected memory and zeros the source
//   - [ParseHex] decodes a hex string (the MASTER_ENCRYPTION_KEY
//     format) straight into protected memory
//   - [ReadFromPath] reads a file, or stdin with echo disabled
//
// [Buffer.Equal] compares in constant time.
package secret
