// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"

	"github.com/bureau-foundation/custody/lib/custody"
)

// UsageError is a mistake in the command line: unknown command, bad
// flag, missing or malformed argument. It matches
// custody.ErrPrecondition.
type UsageError struct {
	message string
}

func (e *UsageError) Error() string { return e.message }

// Unwrap places usage errors in the precondition class.
func (e *UsageError) Unwrap() error { return custody.ErrPrecondition }

// Validation reports bad command-line input.
func Validation(format string, args ...any) error {
	return &UsageError{message: fmt.Sprintf(format, args...)}
}

// ExitError ends the process with Code without printing anything: the
// command has already written its own output. "secret verify" uses it
// for a mismatch, which is a result rather than a failure.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}
