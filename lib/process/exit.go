// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"

	"github.com/bureau-foundation/custody/lib/custody"
)

// Exit codes. Unavailable uses EX_TEMPFAIL from sysexits.h so service
// managers and scripts treat it as retryable.
const (
	ExitFailure      = 1
	ExitNotFound     = 2
	ExitConflict     = 3
	ExitIntegrity    = 4
	ExitPrecondition = 5
	ExitUnavailable  = 75
)

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, custody.ErrIntegrity):
		return ExitIntegrity
	case errors.Is(err, custody.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, custody.ErrConflict):
		return ExitConflict
	case errors.Is(err, custody.ErrPrecondition), errors.Is(err, custody.ErrInconsistent):
		return ExitPrecondition
	case errors.Is(err, custody.ErrUnavailable):
		return ExitUnavailable
	}
	return ExitFailure
}

// Fatal writes "error: err" to stderr and exits with ExitCode(err).
// Use it in main() for errors from run() where the structured logger
// may not be initialized.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(ExitCode(err))
}
