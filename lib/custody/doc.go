// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package custody defines the shared vocabulary of the custody
// subsystem: catalog nodes and routes, ledger addresses, shipment
// token identifiers, and the error taxonomy every component reports
// through.
//
// Errors are sentinels matched with errors.Is. Components wrap them
// with context ("resolving WH-1 → DC-1: not found") but never replace
// them, so callers can branch on the kind of failure:
//
//   - [ErrNotFound]: the secret, route, or node does not exist
//   - [ErrConflict]: a secret record already exists for the token
//   - [ErrIntegrity]: authenticated decryption failed (tampering or
//     corruption); never downgraded to not-found
//   - [ErrInconsistent]: routes reference nodes that do not exist
//   - [ErrUnavailable]: storage or network failure, retryable by the
//     caller (nothing in this module retries on its own)
//   - [ErrPrecondition]: the call was made in a state that forbids it,
//     such as persisting a secret before the token id is known
//
// This package depends only on go-ethereum's common package for the
// address type.
package custody
