// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bootstrap assembles the custody components from a loaded
// configuration. It is shared by custodyd and custodyctl so both
// binaries open storage, load the master key, and bind the ledger the
// same way, and neither imports the other.
//
//   - [OpenStore] selects the storage driver (sqlite, postgres,
//     memory).
//   - [LoadMasterKey] reads the master key from the environment or an
//     age-sealed file.
//   - [DialLedger] binds the custody contracts over JSON-RPC.
//   - [Open] does all of the above and builds the keystore, secret
//     manager, route resolver, and tracking reader.
package bootstrap
