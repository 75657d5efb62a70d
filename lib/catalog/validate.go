// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/custody/lib/custody"
)

// Validate checks the catalog for internal consistency and returns
// every problem found, joined. existing supplies nodes already in the
// store, so a file may add routes between previously imported nodes;
// nil means the file must be self-contained.
func Validate(catalog *Catalog, existing []custody.Node) error {
	var problems []error
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	nodes := make(map[string]custody.Node, len(existing)+len(catalog.Nodes))
	for _, node := range existing {
		nodes[node.ID] = node
	}

	seenNodes := make(map[string]bool, len(catalog.Nodes))
	for index, node := range catalog.Nodes {
		switch {
		case node.ID == "":
			report("nodes[%d]: id is empty", index)
			continue
		case seenNodes[node.ID]:
			report("nodes[%d]: duplicate node id %q", index, node.ID)
			continue
		}
		seenNodes[node.ID] = true
		if node.Name == "" {
			report("node %q: name is empty", node.ID)
		}
		if node.Address == (custody.Address{}) {
			report("node %q: address is missing or zero", node.ID)
		}
		if _, err := custody.ParseCategory(string(node.Category)); err != nil {
			report("node %q: %v", node.ID, err)
		}
		nodes[node.ID] = node
	}

	seenRoutes := make(map[string]bool, len(catalog.Routes))
	for index, route := range catalog.Routes {
		switch {
		case route.ID == "":
			report("routes[%d]: id is empty", index)
			continue
		case seenRoutes[route.ID]:
			report("routes[%d]: duplicate route id %q", index, route.ID)
			continue
		}
		seenRoutes[route.ID] = true

		if route.Rank < 1 {
			report("route %q: rank must be at least 1, got %d", route.ID, route.Rank)
		}
		if len(route.Path) < 2 {
			report("route %q: path needs at least origin and destination", route.ID)
			continue
		}
		if route.Path[0] != route.OriginID {
			report("route %q: path starts at %q, not origin %q", route.ID, route.Path[0], route.OriginID)
		}
		if last := route.Path[len(route.Path)-1]; last != route.DestinationID {
			report("route %q: path ends at %q, not destination %q", route.ID, last, route.DestinationID)
		}
		for position, nodeID := range route.Path {
			if _, ok := nodes[nodeID]; !ok {
				report("route %q: path[%d] references unknown node %q", route.ID, position, nodeID)
			}
		}
		if origin, ok := nodes[route.OriginID]; ok && !origin.Category.CanOriginate() {
			report("route %q: origin %q is category %q and cannot originate", route.ID, route.OriginID, origin.Category)
		}
		if destination, ok := nodes[route.DestinationID]; ok && !destination.Category.CanReceive() {
			report("route %q: destination %q is category %q and cannot receive", route.ID, route.DestinationID, destination.Category)
		}
	}

	return errors.Join(problems...)
}
