// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

type recordingFataler struct {
	failure string
}

func (r *recordingFataler) Helper() {}

func (r *recordingFataler) Fatalf(format string, args ...any) {
	r.failure = fmt.Sprintf(format, args...)
	panic(r)
}

func captureFailure(run func(t Fataler)) (failure string) {
	recorder := &recordingFataler{}
	defer func() {
		if recovered := recover(); recovered != nil && recovered != recorder {
			panic(recovered)
		}
		failure = recorder.failure
	}()
	run(recorder)
	return ""
}

func TestRequireReceive(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 7
	if got := RequireReceive(t, ch, time.Second); got != 7 {
		t.Fatalf("got %d", got)
	}

	failure := captureFailure(func(f Fataler) {
		RequireReceive(f, make(chan int), time.Millisecond, "waiting for %s", "token 3")
	})
	if !strings.Contains(failure, "waiting for token 3") {
		t.Errorf("failure message = %q", failure)
	}

	closed := make(chan int)
	close(closed)
	failure = captureFailure(func(f Fataler) { RequireReceive(f, closed, time.Second) })
	if !strings.Contains(failure, "closed") {
		t.Errorf("closed-channel failure = %q", failure)
	}
}

func TestRequireClosedAndSend(t *testing.T) {
	done := make(chan struct{})
	close(done)
	RequireClosed(t, done, time.Second)

	ch := make(chan string, 1)
	RequireSend(t, ch, "x", time.Second)

	failure := captureFailure(func(f Fataler) { RequireSend(f, ch, "y", time.Millisecond) })
	if !strings.Contains(failure, "send blocked") {
		t.Errorf("failure = %q", failure)
	}
}

func TestUniqueName(t *testing.T) {
	first, second := UniqueName("custody"), UniqueName("custody")
	if first == second || !strings.HasPrefix(first, "custody_") {
		t.Errorf("UniqueName produced %q and %q", first, second)
	}
}
