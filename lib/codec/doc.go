// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the standard CBOR configuration for the
// custody socket protocol.
//
// JSON is used for the public HTTP API and CLI output; CBOR is used
// on the privileged unix socket between custodyctl (or a verification
// agent) and custodyd. Request and response types carry `json` tags,
// which fxamacker/cbor reads as a fallback, so one tag controls field
// naming for both formats.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
package codec
