// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/cmd/custodyctl/cli"
	"github.com/bureau-foundation/custody/lib/bootstrap"
	"github.com/bureau-foundation/custody/lib/catalog"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/tui"
)

func (a *app) catalogCommand() *cli.Command {
	return &cli.Command{
		Name:    "catalog",
		Summary: "Import and inspect node and route reference data",
		Description: `Load nodes and routes from JSONC seed files.

A seed file holds "nodes" and "routes" arrays. Comments and trailing
commas are allowed. Import validates the whole file against itself
and the nodes already stored, then writes it in one transaction.`,
		Subcommands: []*cli.Command{
			a.catalogImportCommand(),
			a.catalogValidateCommand(),
			a.catalogListCommand(),
		},
	}
}

type catalogSummary struct {
	File   string `json:"file"`
	Nodes  int    `json:"nodes"`
	Routes int    `json:"routes"`
	Digest string `json:"digest"`
}

type catalogImportParams struct {
	connectionParams
	cli.JSONOutput
}

func (a *app) catalogImportCommand() *cli.Command {
	var params catalogImportParams
	return &cli.Command{
		Name:    "import",
		Summary: "Validate and store a seed file",
		Usage:   "custodyctl catalog import <file> [--config path]",
		Examples: []cli.Example{
			{
				Description: "Import the production catalog",
				Command:     "custodyctl catalog import deploy/catalog.jsonc",
			},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("import", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, "file"); err != nil {
				return err
			}
			seed, err := catalog.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", custody.ErrPrecondition, err)
			}

			cfg, err := params.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			logger := a.logger(&params.connectionParams)
			store, err := bootstrap.OpenStore(ctx, cfg.Storage, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := catalog.Apply(ctx, store, seed, logger); err != nil {
				return err
			}
			summary := catalogSummary{
				File:   args[0],
				Nodes:  len(seed.Nodes),
				Routes: len(seed.Routes),
				Digest: seed.Digest(),
			}
			if done, err := params.EmitJSON(a.stdout, summary); done {
				return err
			}
			fmt.Fprintf(a.stdout, "imported %d nodes and %d routes from %s (digest %s)\n",
				summary.Nodes, summary.Routes, summary.File, summary.Digest[:16])
			return nil
		},
	}
}

type catalogValidateParams struct {
	cli.JSONOutput
}

func (a *app) catalogValidateCommand() *cli.Command {
	var params catalogValidateParams
	return &cli.Command{
		Name:    "validate",
		Summary: "Check a self-contained seed file without storing it",
		Description: `Check a seed file on its own. Every problem is reported, not just
the first. Routes referencing nodes that only exist in the store fail
here; use import to validate against stored nodes.`,
		Usage: "custodyctl catalog validate <file>",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("validate", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args, "file"); err != nil {
				return err
			}
			seed, err := catalog.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("%w: %w", custody.ErrPrecondition, err)
			}
			if err := catalog.Validate(seed, nil); err != nil {
				return fmt.Errorf("%s is invalid: %w:\n%w", args[0], custody.ErrPrecondition, err)
			}
			summary := catalogSummary{
				File:   args[0],
				Nodes:  len(seed.Nodes),
				Routes: len(seed.Routes),
				Digest: seed.Digest(),
			}
			if done, err := params.EmitJSON(a.stdout, summary); done {
				return err
			}
			fmt.Fprintf(a.stdout, "%s is valid: %d nodes, %d routes\n", summary.File, summary.Nodes, summary.Routes)
			return nil
		},
	}
}

type catalogListParams struct {
	connectionParams
	cli.JSONOutput
}

func (a *app) catalogListCommand() *cli.Command {
	var params catalogListParams
	return &cli.Command{
		Name:    "list",
		Summary: "List stored nodes",
		Usage:   "custodyctl catalog list [--json]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if err := requireArgs(args); err != nil {
				return err
			}
			components, _, err := a.openComponents(ctx, &params.connectionParams, bootstrap.Options{SkipMasterKey: true, SkipLedger: true})
			if err != nil {
				return err
			}
			defer components.Close()

			nodes, err := components.Resolver.Catalog(ctx)
			if err != nil {
				return err
			}
			return a.emitNodes(&params.JSONOutput, nodes)
		},
	}
}

func (a *app) emitNodes(output *cli.JSONOutput, nodes []custody.Node) error {
	if done, err := output.EmitJSON(a.stdout, nodes); done {
		return err
	}
	fmt.Fprint(a.stdout, tui.RenderNodes(nodes, a.theme()))
	return nil
}
