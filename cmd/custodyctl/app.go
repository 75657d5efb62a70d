// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/custody/cmd/custodyctl/cli"
	"github.com/bureau-foundation/custody/lib/bootstrap"
	"github.com/bureau-foundation/custody/lib/config"
	"github.com/bureau-foundation/custody/lib/service"
	"github.com/bureau-foundation/custody/lib/tui"
	"github.com/bureau-foundation/custody/lib/version"
)

// app carries the output streams every command writes to, so tests
// can capture them.
type app struct {
	stdout io.Writer
	stderr io.Writer
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr}
}

func (a *app) root() *cli.Command {
	return &cli.Command{
		Name: "custodyctl",
		Description: `custodyctl manages a custody deployment.

Commands that touch secrets talk to the running custodyd over its unix
socket. Catalog and route commands open storage directly and need no
master key. Key commands work offline.`,
		HelpOutput: a.stderr,
		Subcommands: []*cli.Command{
			a.statusCommand(),
			a.keyCommand(),
			a.catalogCommand(),
			a.routeCommand(),
			a.secretCommand(),
			a.shipmentCommand(),
			a.trackCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(context.Context, []string) error {
					fmt.Fprintf(a.stdout, "custodyctl %s\n", version.Full())
					return nil
				},
			},
		},
	}
}

// connectionParams are the flags shared by every command that needs
// the deployment's configuration or its daemon.
type connectionParams struct {
	ConfigPath string `flag:"config" desc:"path to custody.yaml (default: $CUSTODY_CONFIG)"`
	SocketPath string `flag:"socket" desc:"custodyd socket path (default: socket.path from the config)"`
	Verbose    bool   `flag:"verbose,v" desc:"log debug output to stderr"`
}

func (p *connectionParams) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if p.ConfigPath != "" {
		cfg, err = config.LoadFile(p.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if p.SocketPath != "" {
		cfg.Socket.Path = p.SocketPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// socketClient connects to custodyd. An explicit --socket avoids
// reading the config file at all.
func (p *connectionParams) socketClient() (*service.ServiceClient, error) {
	if p.SocketPath != "" {
		return service.NewServiceClient(p.SocketPath), nil
	}
	cfg, err := p.loadConfig()
	if err != nil {
		return nil, err
	}
	return service.NewServiceClient(cfg.Socket.Path), nil
}

func (a *app) logger(params *connectionParams) *slog.Logger {
	return cli.NewCommandLogger(a.stderr, params.Verbose)
}

// openComponents opens storage, and optionally the master key and
// ledger, in-process.
func (a *app) openComponents(ctx context.Context, params *connectionParams, options bootstrap.Options) (*bootstrap.Components, *slog.Logger, error) {
	cfg, err := params.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, nil, err
	}
	logger := a.logger(params)
	components, err := bootstrap.Open(ctx, cfg, options, logger)
	if err != nil {
		return nil, nil, err
	}
	return components, logger, nil
}

// theme picks colors for a terminal and plain text otherwise.
func (a *app) theme() tui.Theme {
	if file, ok := a.stdout.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return tui.DefaultTheme
	}
	return tui.PlainTheme
}

// requireArgs checks the positional argument count.
func requireArgs(args []string, names ...string) error {
	if len(args) < len(names) {
		return cli.Validation("missing argument <%s>", names[len(args)])
	}
	if len(args) > len(names) {
		return cli.Validation("unexpected argument %q", args[len(names)])
	}
	return nil
}
