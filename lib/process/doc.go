// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for custodyd and
// custodyctl: fatal error reporting to stderr before or after the
// structured logger exists, and exit codes derived from the custody
// error taxonomy so scripts can tell a missing secret from a tampered
// one without parsing messages.
package process
