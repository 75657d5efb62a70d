// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/custody/lib/custody"
)

// Writer stores reference data. Implementations write all nodes and
// routes atomically: either the whole catalog is visible or none of
// it.
type Writer interface {
	UpsertCatalog(ctx context.Context, nodes []custody.Node, routes []custody.Route) error
}

// NodeLister lists nodes already stored, for validating routes that
// reference them.
type NodeLister interface {
	ListNodes(ctx context.Context) ([]custody.Node, error)
}

// Store is what Apply needs from a storage driver.
type Store interface {
	Writer
	NodeLister
}

// Apply validates catalog against itself and the stored nodes, then
// writes it. Nothing is written if validation fails.
func Apply(ctx context.Context, store Store, catalog *Catalog, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	existing, err := store.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("listing existing nodes: %w", err)
	}
	if err := Validate(catalog, existing); err != nil {
		return fmt.Errorf("catalog is invalid: %w", err)
	}
	if err := store.UpsertCatalog(ctx, catalog.Nodes, catalog.Routes); err != nil {
		return fmt.Errorf("writing catalog: %w", err)
	}
	logger.Info("catalog applied",
		"nodes", len(catalog.Nodes),
		"routes", len(catalog.Routes),
		"digest", catalog.Digest()[:16],
	)
	return nil
}
