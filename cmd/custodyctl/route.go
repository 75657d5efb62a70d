// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/cmd/custodyctl/cli"
	"github.com/bureau-foundation/custody/lib/bootstrap"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/routing"
	"github.com/bureau-foundation/custody/lib/tui"
)

func (a *app) routeCommand() *cli.Command {
	return &cli.Command{
		Name:    "route",
		Summary: "Inspect origins, destinations, and resolved routes",
		Description: `Query the route resolver against the configured storage, exactly
as custodyd would answer. No master key or ledger is needed.`,
		Subcommands: []*cli.Command{
			a.routeOriginsCommand(),
			a.routeDestinationsCommand(),
			a.routeResolveCommand(),
		},
	}
}

type routeParams struct {
	connectionParams
	cli.JSONOutput
}

// withResolver opens storage and routing only and runs fn.
func (a *app) withResolver(ctx context.Context, params *routeParams, fn func(*routing.Resolver) error) error {
	components, _, err := a.openComponents(ctx, &params.connectionParams, bootstrap.Options{SkipMasterKey: true, SkipLedger: true})
	if err != nil {
		return err
	}
	defer components.Close()
	return fn(components.Resolver)
}

func (a *app) routeOriginsCommand() *cli.Command {
	var params routeParams
	return &cli.Command{
		Name:    "origins",
		Summary: "List nodes shipments can start from",
		Usage:   "custodyctl route origins [--json]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("origins", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			return a.withResolver(ctx, &params, func(resolver *routing.Resolver) error {
				origins, err := resolver.Origins(ctx)
				if err != nil {
					return err
				}
				return a.emitNodes(&params.JSONOutput, origins)
			})
		},
	}
}

func (a *app) routeDestinationsCommand() *cli.Command {
	var params routeParams
	return &cli.Command{
		Name:    "destinations",
		Summary: "List destinations reachable from an origin",
		Usage:   "custodyctl route destinations <origin-id> [--json]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("destinations", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, "origin-id"); err != nil {
				return err
			}
			return a.withResolver(ctx, &params, func(resolver *routing.Resolver) error {
				destinations, err := resolver.ReachableDestinations(ctx, args[0])
				if err != nil {
					return err
				}
				return a.emitNodes(&params.JSONOutput, destinations)
			})
		},
	}
}

type resolvedRoute struct {
	RouteID     string            `json:"routeId"`
	Rank        int               `json:"rank"`
	Nodes       []custody.Node    `json:"nodes"`
	Route       []custody.Address `json:"route"`
	Fingerprint string            `json:"fingerprint"`
}

func (a *app) routeResolveCommand() *cli.Command {
	var params routeParams
	return &cli.Command{
		Name:    "resolve",
		Summary: "Resolve the preferred route between two nodes",
		Description: `Resolve the lowest-rank route from origin to destination and list
its nodes in travel order with their ledger addresses. The fingerprint
identifies the exact path; it changes whenever the chosen route or any
node address on it changes.`,
		Usage: "custodyctl route resolve <origin-id> <destination-id> [--json]",
		Examples: []cli.Example{
			{
				Description: "Show the route a shipment from WH-1 to DC-1 would take",
				Command:     "custodyctl route resolve WH-1 DC-1",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("resolve", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, "origin-id", "destination-id"); err != nil {
				return err
			}
			return a.withResolver(ctx, &params, func(resolver *routing.Resolver) error {
				path, err := resolver.ResolvePath(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				result := resolvedRoute{
					RouteID:     path.Route.ID,
					Rank:        path.Route.Rank,
					Nodes:       path.Nodes,
					Route:       path.Addresses,
					Fingerprint: path.Fingerprint.Hex(),
				}
				if done, err := params.EmitJSON(a.stdout, result); done {
					return err
				}
				ids := make([]string, len(path.Nodes))
				for index, node := range path.Nodes {
					ids[index] = node.ID
				}
				fmt.Fprintf(a.stdout, "route %s (rank %d): %s\n", result.RouteID, result.Rank, strings.Join(ids, " → "))
				fmt.Fprintf(a.stdout, "fingerprint %s\n\n", result.Fingerprint)
				fmt.Fprint(a.stdout, tui.RenderNodes(path.Nodes, a.theme()))
				return nil
			})
		},
	}
}
