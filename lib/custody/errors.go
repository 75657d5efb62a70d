// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrIntegrity    = errors.New("integrity check failed")
	ErrInconsistent = errors.New("inconsistent reference data")
	ErrUnavailable  = errors.New("unavailable")
	ErrPrecondition = errors.New("precondition failed")
)

// Unavailable wraps a storage or transport failure so that it matches
// both ErrUnavailable and the underlying cause.
func Unavailable(operation string, cause error) error {
	return fmt.Errorf("%s: %w: %w", operation, ErrUnavailable, cause)
}

// Retryable reports whether err is a transient failure the calling
// workflow may retry.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

var codes = []struct {
	code string
	err  error
}{
	{"not_found", ErrNotFound},
	{"conflict", ErrConflict},
	{"integrity", ErrIntegrity},
	{"inconsistent", ErrInconsistent},
	{"unavailable", ErrUnavailable},
	{"precondition", ErrPrecondition},
}

// Code returns a stable name for the taxonomy member err matches, for
// wire protocols. Errors outside the taxonomy are "internal".
func Code(err error) string {
	for _, entry := range codes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "internal"
}

// FromCode returns the sentinel named by code, or nil if code is not
// part of the taxonomy.
func FromCode(code string) error {
	for _, entry := range codes {
		if entry.code == code {
			return entry.err
		}
	}
	return nil
}
