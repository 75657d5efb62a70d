// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfoUsesLinkerValues(t *testing.T) {
	saved := [...]string{GitCommit, GitDirty, BuildTime, Version}
	t.Cleanup(func() {
		GitCommit, GitDirty, BuildTime, Version = saved[0], saved[1], saved[2], saved[3]
	})
	GitCommit, GitDirty, BuildTime, Version = "abc1234", "true", "2026-10-01T00:00:00Z", "1.2.3"

	if got, want := Info(), "1.2.3 (abc1234-dirty, 2026-10-01T00:00:00Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
	build := Current()
	if !build.Dirty || build.Commit != "abc1234" || build.Go == "" {
		t.Errorf("Current() = %+v", build)
	}
	if !strings.Contains(Full(), "Platform: ") {
		t.Errorf("Full() = %q, missing platform", Full())
	}
}

func TestShorten(t *testing.T) {
	if got := shorten("0123456789abcdef0123"); got != "0123456789ab" {
		t.Errorf("shorten = %q", got)
	}
	if got := shorten("abc"); got != "abc" {
		t.Errorf("shorten = %q", got)
	}
}
