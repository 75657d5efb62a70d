// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"os"
	"sync/atomic"
	"testing"
)

// PostgresURLVariable names the environment variable holding the
// connection string for database tests.
const PostgresURLVariable = "CUSTODY_TEST_DATABASE_URL"

// PostgresURL returns the test database connection string, or skips
// the test if the variable is unset.
func PostgresURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv(PostgresURLVariable)
	if url == "" {
		t.Skipf("%s not set; skipping PostgreSQL test", PostgresURLVariable)
	}
	return url
}

// SocketDir creates a temporary directory directly under /tmp, short
// enough for Unix socket paths, removed when the test completes.
func SocketDir(t *testing.T) string {
	t.Helper()
	directory, err := os.MkdirTemp("/tmp", "custody-test-*")
	if err != nil {
		t.Fatalf("creating socket directory: %v", err)
	}
	t.Cleanup(func() {
		_ = os.RemoveAll(directory)
	})
	return directory
}

var uniqueCounter atomic.Uint64

// UniqueName returns prefix followed by the process id and a
// monotonically increasing counter, safe for use as an SQL identifier
// when prefix is.
func UniqueName(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, os.Getpid(), uniqueCounter.Add(1))
}
