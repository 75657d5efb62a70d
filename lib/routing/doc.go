// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package routing turns the node/route reference data into the ordered
// ledger address sequence a shipment travels.
//
// A route is an immutable row: origin node id, destination node id,
// an ordered node-id path (origin and destination inclusive), and a
// rank where lower is preferred. [Resolver.ResolvePath] selects the
// lowest-ranked route between two nodes, breaking rank ties by route
// id ascending so repeated resolutions always pick the same route,
// then maps every node id in the path to its ledger address. A path
// that references a node missing from the catalog, or that does not
// start at the origin and end at the destination, is reported as
// [custody.ErrInconsistent] and is never truncated.
//
// [Resolver] reads through a bounded cache with a fixed TTL. Reference
// data changes rarely; the TTL bounds how long a catalog import can
// take to become visible.
package routing
