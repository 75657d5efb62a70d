// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the custody
// daemon and CLI.
//
// Configuration is loaded from a single file specified by either the
// CUSTODY_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search.
//
// The file may contain environment-specific sections (development,
// staging, production) that override base values when
// [Config].Environment matches. Production is stricter: the master
// key must come from an age-sealed file, the retention policy must be
// explicit, and the in-memory storage driver is refused.
//
// ${VAR} and ${VAR:-default} patterns are expanded in path and URL
// fields after loading. No other environment variables override
// config values.
//
// This package depends on no other custody packages.
package config
