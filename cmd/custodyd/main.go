// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Custodyd is the custody daemon. It holds the master key, stores
// encrypted shipment secrets, resolves routes from the node catalog,
// and reads shipment state from the custody ledger.
//
// It serves two interfaces:
//
//   - A public JSON API over HTTP: origins, reachable destinations,
//     route resolution, secret intake, and shipment tracking views
//     (one-shot and as server-sent events).
//   - A privileged CBOR API on a unix socket (mode 0600): secret
//     generation, reveal, verification, destruction, retention sweeps
//     and shipment creation. Plaintext secrets only leave the daemon
//     through this socket.
//
// When the retention policy is purge-terminal, secrets of delivered,
// completed and disputed shipments are destroyed on a periodic sweep
// and as custody events arrive.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/custody/lib/bootstrap"
	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/config"
	"github.com/bureau-foundation/custody/lib/process"
	"github.com/bureau-foundation/custody/lib/service"
	"github.com/bureau-foundation/custody/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		listen      string
		socketPath  string
		logLevel    string
		showVersion bool
	)

	flags := pflag.NewFlagSet("custodyd", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to custody.yaml (default: $"+config.ConfigVariable+")")
	flags.StringVar(&listen, "listen", "", "HTTP listen address (overrides http.listen)")
	flags.StringVar(&socketPath, "socket", "", "unix socket path (overrides socket.path)")
	flags.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("custodyd %s\n", version.Info())
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.HTTP.Listen = listen
	}
	if socketPath != "" {
		cfg.Socket.Path = socketPath
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()
	components, err := bootstrap.Open(ctx, cfg, bootstrap.Options{Clock: clk}, logger)
	if err != nil {
		return err
	}
	defer components.Close()

	daemonConfig, err := configFromComponents(components, clk, logger)
	if err != nil {
		return err
	}
	d, err := newDaemon(daemonConfig)
	if err != nil {
		return err
	}

	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.HTTP.Listen,
		Handler: d.handler(),
		Logger:  logger,
	})
	socketServer := service.NewSocketServer(cfg.Socket.Path, logger)
	d.registerActions(socketServer)

	logger.Info("custodyd starting",
		"version", version.Info(),
		"environment", string(cfg.Environment),
		"storage", cfg.Storage.Driver,
		"ledger", components.Ledger != nil,
		"retention_policy", string(d.retention.Policy()),
	)
	err = d.serve(ctx, httpServer, socketServer)
	logger.Info("custodyd stopped")
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
