// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed keeps the keystore master key encrypted at rest with
// filippo.io/age.
//
// An operator generates an age keypair, seals a master key to the
// public key (and optionally an escrow key), and configures the daemon
// with the sealed file plus the identity file. The daemon unseals the
// key once at startup into a secret.Buffer and hands it to the
// keystore, which owns it from then on.
//
// Sealed files are ASCII-armored age payloads whose plaintext is the
// key as 64 hex characters, so they can also be opened with the age
// command line tool during recovery.
package sealed
