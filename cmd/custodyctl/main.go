// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Custodyctl is the operator command line for a custody deployment:
// master key sealing, catalog import, route inspection, secret
// administration through custodyd, and shipment tracking.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/custody/lib/process"
)

func main() {
	if err := run(); err != nil {
		var coder interface{ ExitCode() int }
		if errors.As(err, &coder) {
			os.Exit(coder.ExitCode())
		}
		process.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return newApp(os.Stdout, os.Stderr).root().Execute(ctx, os.Args[1:])
}
