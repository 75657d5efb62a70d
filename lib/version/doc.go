// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for custodyd and
// custodyctl.
//
// Four package-level variables are injected at build time via
// -ldflags -X, for example:
//
//	go build -ldflags "-X github.com/bureau-foundation/custody/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Without ldflags, [Current] falls back to the VCS stamp the go
// command embeds in the binary.
package version
