// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/cmd/custodyctl/cli"
)

type daemonStatus struct {
	Version         string `cbor:"version" json:"version"`
	Uptime          string `cbor:"uptime" json:"uptime"`
	Ledger          bool   `cbor:"ledger" json:"ledger"`
	RetentionPolicy string `cbor:"retention_policy" json:"retention_policy"`
}

type statusParams struct {
	connectionParams
	cli.JSONOutput
}

func (a *app) statusCommand() *cli.Command {
	var params statusParams
	return &cli.Command{
		Name:    "status",
		Summary: "Show the running daemon's status",
		Usage:   "custodyctl status [--socket path] [--json]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("status", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			client, err := params.socketClient()
			if err != nil {
				return err
			}
			var status daemonStatus
			if err := client.Call(ctx, "status", nil, &status); err != nil {
				return err
			}
			if done, err := params.EmitJSON(a.stdout, status); done {
				return err
			}
			ledger := "not configured"
			if status.Ledger {
				ledger = "connected"
			}
			fmt.Fprintf(a.stdout, "version:    %s\n", status.Version)
			fmt.Fprintf(a.stdout, "uptime:     %s\n", status.Uptime)
			fmt.Fprintf(a.stdout, "ledger:     %s\n", ledger)
			fmt.Fprintf(a.stdout, "retention:  %s\n", status.RetentionPolicy)
			return nil
		},
	}
}
