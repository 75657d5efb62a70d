// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for custodyctl.
//
// The central type is [Command], a named subcommand with optional
// nested [Command.Subcommands], a [pflag.FlagSet] factory, and a Run
// function. Commands are assembled into a tree in cmd/custodyctl and
// dispatched via [Command.Execute], which handles flag parsing,
// subcommand routing, and help output with examples.
//
// Flags are declared as tagged struct fields and bound with
// [FlagsFromParams]:
//
//	type resolveParams struct {
//	    cli.JSONOutput
//	    Origin string `flag:"origin,o" desc:"origin node id"`
//	}
//
// When a user types an unknown subcommand or flag, the framework
// suggests the closest known name by Levenshtein distance (at most 3).
//
// Usage mistakes are reported with [Validation], which wraps
// custody.ErrPrecondition so the process exits with the precondition
// exit code.
package cli
