// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/cmd/custodyctl/cli"
	"github.com/bureau-foundation/custody/lib/bootstrap"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/tracking"
	"github.com/bureau-foundation/custody/lib/tui"
)

type trackParams struct {
	connectionParams
	cli.JSONOutput
	Viewer string `flag:"viewer" desc:"ledger address to list available actions for"`
	Watch  bool   `flag:"watch,w" desc:"keep running and print the shipment again after every custody transfer"`
}

// trackedShipment is the --json form of one view.
type trackedShipment struct {
	tracking.View
	Actions []tracking.Action `json:"actions,omitempty"`
}

type shipmentWatcher interface {
	Watch(ctx context.Context, tokenID custody.TokenID) (<-chan tracking.View, error)
}

func (a *app) trackCommand() *cli.Command {
	var params trackParams
	return &cli.Command{
		Name:    "track",
		Summary: "Show a shipment's custody state from the ledger",
		Description: `Read a shipment from the ledger and show its status, parties, and
progress along its route. Node names come from the local catalog.

With --viewer, the actions that address may take next are listed.
With --watch, the view is printed again after every custody transfer
until interrupted.`,
		Usage: "custodyctl track <token-id> [--viewer 0x...] [--watch] [--json]",
		Examples: []cli.Example{
			{
				Description: "Follow shipment 42 as its recipient",
				Command:     "custodyctl track 42 --viewer 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed --watch",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("track", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			tokenID, err := parseTokenArg(args)
			if err != nil {
				return err
			}
			var viewer custody.Address
			if params.Viewer != "" {
				viewer, err = custody.ParseAddress(params.Viewer)
				if err != nil {
					return cli.Validation("--viewer: %v", err)
				}
			}

			components, logger, err := a.openComponents(ctx, &params.connectionParams, bootstrap.Options{SkipMasterKey: true})
			if err != nil {
				return err
			}
			defer components.Close()
			if components.Tracking == nil {
				return custody.Unavailable("ledger", errors.New("no ledger.rpc_url configured"))
			}

			var watcher shipmentWatcher
			if params.Watch {
				watcher = tracking.NewWatcher(components.Tracking, components.Ledger.Events, logger)
			}
			return a.track(ctx, components.Tracking, watcher, tokenID, viewer, &params.JSONOutput)
		},
	}
}

// track prints the shipment once, or every view the watcher delivers
// when watcher is non-nil. Actions are listed only for a viewer.
func (a *app) track(ctx context.Context, reader *tracking.Reader, watcher shipmentWatcher, tokenID custody.TokenID, viewer custody.Address, output *cli.JSONOutput) error {
	emit := func(view tracking.View) error {
		var actions []tracking.Action
		if viewer != (custody.Address{}) {
			actions = view.Actions(viewer)
			if actions == nil {
				actions = []tracking.Action{}
			}
		}
		if done, err := output.EmitJSON(a.stdout, trackedShipment{View: view, Actions: actions}); done {
			return err
		}
		fmt.Fprintln(a.stdout, tui.RenderShipment(view, actions, a.theme()))
		return nil
	}

	if watcher == nil {
		view, err := reader.Read(ctx, tokenID)
		if err != nil {
			return err
		}
		return emit(view)
	}

	views, err := watcher.Watch(ctx, tokenID)
	if err != nil {
		return err
	}
	for view := range views {
		if err := emit(view); err != nil {
			return err
		}
	}
	// Interrupting a watch is the normal way to end it.
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}
