// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"context"

	"github.com/bureau-foundation/custody/lib/custody"
)

// Repository reads node and route reference data. Storage failures
// wrap custody.ErrUnavailable.
type Repository interface {
	// FindRoutes returns the routes leaving originID. A non-empty
	// destinationID restricts the result to routes ending there. No
	// ordering is required of the implementation.
	FindRoutes(ctx context.Context, originID, destinationID string) ([]custody.Route, error)

	// FindNodes returns the nodes with the given ids, keyed by id.
	// Unknown ids are absent from the map rather than an error.
	FindNodes(ctx context.Context, ids []string) (map[string]custody.Node, error)

	// ListNodes returns every node in the catalog.
	ListNodes(ctx context.Context) ([]custody.Node, error)
}
