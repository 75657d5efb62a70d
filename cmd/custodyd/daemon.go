// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/custody/lib/bootstrap"
	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/commitment"
	"github.com/bureau-foundation/custody/lib/ledger"
	"github.com/bureau-foundation/custody/lib/routing"
	"github.com/bureau-foundation/custody/lib/service"
	"github.com/bureau-foundation/custody/lib/tracking"
	"github.com/bureau-foundation/custody/lib/workflow"
)

// daemonConfig names everything the daemon serves. The ledger fields
// are all nil when no RPC endpoint is configured; the shipment
// endpoints and socket actions that need them then report
// custody.ErrUnavailable.
type daemonConfig struct {
	Secrets  *commitment.Manager
	Tokens   workflow.TokenLister
	Resolver *routing.Resolver
	Catalog  tracking.NodeCatalog

	Reader ledger.Reader
	Writer ledger.Writer
	Events ledger.EventSource

	Policy        workflow.Policy
	SweepInterval time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

type daemon struct {
	secrets  *commitment.Manager
	resolver *routing.Resolver

	// Nil without a ledger.
	tracking     *tracking.Reader
	watcher      *tracking.Watcher
	verification *workflow.Verification
	creation     *workflow.Creation
	events       ledger.EventSource

	retention     *workflow.Retention
	sweepInterval time.Duration

	clock     clock.Clock
	logger    *slog.Logger
	startedAt time.Time
}

func newDaemon(config daemonConfig) (*daemon, error) {
	if config.Secrets == nil || config.Tokens == nil || config.Resolver == nil {
		return nil, errors.New("custodyd: secrets, tokens and resolver are required")
	}
	if config.Policy == workflow.PolicyPurgeTerminal && config.Reader == nil {
		return nil, errors.New("custodyd: retention policy purge-terminal needs a ledger to read shipment status from")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}

	d := &daemon{
		secrets:       config.Secrets,
		resolver:      config.Resolver,
		retention:     workflow.NewRetention(config.Policy, config.Secrets, config.Tokens, config.Reader, logger),
		sweepInterval: config.SweepInterval,
		clock:         clk,
		logger:        logger,
		startedAt:     clk.Now(),
	}
	if config.Reader != nil {
		d.tracking = tracking.NewReader(config.Reader, config.Catalog, logger)
		d.verification = workflow.NewVerification(config.Secrets, config.Reader, config.Writer, logger)
	}
	if config.Writer != nil {
		d.creation = workflow.NewCreation(config.Resolver, config.Secrets, config.Writer, logger)
	}
	if config.Events != nil && d.tracking != nil {
		d.events = config.Events
		d.watcher = tracking.NewWatcher(d.tracking, config.Events, logger)
	}
	return d, nil
}

// configFromComponents adapts the bootstrap result. Interface fields
// are only set from non-nil ledger handles.
func configFromComponents(components *bootstrap.Components, clk clock.Clock, logger *slog.Logger) (daemonConfig, error) {
	policy, err := workflow.ParsePolicy(components.Config.RetentionPolicy())
	if err != nil {
		return daemonConfig{}, err
	}
	interval, err := components.Config.SweepInterval()
	if err != nil {
		return daemonConfig{}, err
	}
	config := daemonConfig{
		Secrets:       components.Secrets,
		Tokens:        components.Keystore,
		Resolver:      components.Resolver,
		Catalog:       components.Store,
		Policy:        policy,
		SweepInterval: interval,
		Clock:         clk,
		Logger:        logger,
	}
	if components.Ledger != nil {
		config.Reader = components.Ledger.Contract
		config.Writer = components.Ledger.Contract
		config.Events = components.Ledger.Events
	}
	return config, nil
}

// serve runs the HTTP server, the socket server and the retention
// loop until ctx is cancelled or one of them fails. A failure cancels
// the others; every error is returned.
func (d *daemon) serve(ctx context.Context, httpServer *service.HTTPServer, socketServer *service.SocketServer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wait     sync.WaitGroup
		mutex    sync.Mutex
		failures []error
	)
	start := func(name string, run func(context.Context) error) {
		wait.Add(1)
		go func() {
			defer wait.Done()
			if err := run(ctx); err != nil {
				mutex.Lock()
				failures = append(failures, fmt.Errorf("%s: %w", name, err))
				mutex.Unlock()
				cancel()
			}
		}()
	}

	if httpServer != nil {
		start("http", httpServer.Serve)
	}
	if socketServer != nil {
		start("socket", socketServer.Serve)
	}
	if d.retention.Policy() == workflow.PolicyPurgeTerminal {
		d.logger.Info("retention sweeps enabled", "interval", d.sweepInterval.String())
		start("retention", func(ctx context.Context) error {
			return d.retention.Run(ctx, d.events, d.sweepInterval, d.clock)
		})
	}

	wait.Wait()
	return errors.Join(failures...)
}
