// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"testing"

	"github.com/bureau-foundation/custody/lib/custody"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("plain"), ExitFailure},
		{fmt.Errorf("token 4: %w", custody.ErrNotFound), ExitNotFound},
		{fmt.Errorf("token 4: %w", custody.ErrConflict), ExitConflict},
		{fmt.Errorf("token 4: %w", custody.ErrIntegrity), ExitIntegrity},
		{fmt.Errorf("route r1: %w", custody.ErrInconsistent), ExitPrecondition},
		{custody.Unavailable("ping", errors.New("refused")), ExitUnavailable},
	}
	for _, test := range tests {
		if got := ExitCode(test.err); got != test.want {
			t.Errorf("ExitCode(%v) = %d, want %d", test.err, got, test.want)
		}
	}
}
