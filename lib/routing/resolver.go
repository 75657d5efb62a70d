// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/custody"
)

const (
	// DefaultCacheTTL applies when Config.CacheTTL is zero.
	DefaultCacheTTL = 30 * time.Second

	// DefaultCacheEntries applies when Config.CacheEntries is zero.
	DefaultCacheEntries = 1024
)

// Config holds the parameters for creating a Resolver.
type Config struct {
	// Repository supplies node and route rows. Required.
	Repository Repository

	// Clock drives cache expiry. Nil uses the real clock.
	Clock clock.Clock

	// CacheTTL bounds how stale a cached read may be. Negative
	// disables caching.
	CacheTTL time.Duration

	// CacheEntries bounds the number of cached route lookups.
	CacheEntries int

	// Logger receives resolution messages. Nil discards.
	Logger *slog.Logger
}

// Resolver answers route queries against the reference data. Safe for
// concurrent use.
type Resolver struct {
	repository Repository
	clock      clock.Clock
	logger     *slog.Logger

	// routes caches FindRoutes results keyed by origin and
	// destination. nil when caching is disabled.
	routes *ttlCache[[]custody.Route]
	nodes  *ttlCache[custody.Node]
}

// Path is a resolved route: the chosen route row, its nodes and their
// ledger addresses in travel order, and a fingerprint of the result.
type Path struct {
	Route       custody.Route     `json:"route"`
	Nodes       []custody.Node    `json:"nodes"`
	Addresses   []custody.Address `json:"addresses"`
	Fingerprint Fingerprint       `json:"-"`
}

// NewResolver constructs a Resolver.
func NewResolver(config Config) (*Resolver, error) {
	if config.Repository == nil {
		return nil, fmt.Errorf("routing: Repository is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = DefaultCacheTTL
	}
	if config.CacheEntries <= 0 {
		config.CacheEntries = DefaultCacheEntries
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	resolver := &Resolver{
		repository: config.Repository,
		clock:      config.Clock,
		logger:     logger,
	}
	if config.CacheTTL > 0 {
		resolver.routes = newTTLCache[[]custody.Route](config.CacheTTL, config.CacheEntries)
		resolver.nodes = newTTLCache[custody.Node](config.CacheTTL, config.CacheEntries)
	}
	return resolver, nil
}

// Invalidate drops every cached read. Called after a catalog import so
// new reference data is visible immediately in this process.
func (r *Resolver) Invalidate() {
	if r.routes != nil {
		r.routes.clear()
		r.nodes.clear()
	}
}

// ReachableDestinations returns each distinct destination node that
// has at least one route from originID, sorted by name then id. An
// origin with no routes yields an empty slice, not an error. A route
// whose destination node is missing from the catalog is
// custody.ErrInconsistent.
func (r *Resolver) ReachableDestinations(ctx context.Context, originID string) ([]custody.Node, error) {
	if originID == "" {
		return nil, fmt.Errorf("listing destinations: origin node id is empty")
	}

	routes, err := r.findRoutes(ctx, originID, "")
	if err != nil {
		return nil, fmt.Errorf("listing destinations from %q: %w", originID, err)
	}

	seen := make(map[string]bool, len(routes))
	var destinationIDs []string
	for _, route := range routes {
		if !seen[route.DestinationID] {
			seen[route.DestinationID] = true
			destinationIDs = append(destinationIDs, route.DestinationID)
		}
	}
	if len(destinationIDs) == 0 {
		return []custody.Node{}, nil
	}

	nodes, err := r.findNodes(ctx, destinationIDs)
	if err != nil {
		return nil, fmt.Errorf("listing destinations from %q: %w", originID, err)
	}

	destinations := make([]custody.Node, 0, len(destinationIDs))
	for _, id := range destinationIDs {
		node, ok := nodes[id]
		if !ok {
			err := fmt.Errorf("route from %q ends at unknown node %q: %w", originID, id, custody.ErrInconsistent)
			r.reportInconsistent(err, "origin", originID, "node_id", id)
			return nil, err
		}
		destinations = append(destinations, node)
	}
	sort.Slice(destinations, func(i, j int) bool {
		if destinations[i].Name != destinations[j].Name {
			return destinations[i].Name < destinations[j].Name
		}
		return destinations[i].ID < destinations[j].ID
	})
	return destinations, nil
}

// ResolvePath returns the preferred route from originID to
// destinationID with every path node mapped to its ledger address.
// The lowest rank wins; equal ranks are ordered by route id. Fails
// with custody.ErrNotFound if no route connects the two nodes.
func (r *Resolver) ResolvePath(ctx context.Context, originID, destinationID string) (Path, error) {
	if originID == "" || destinationID == "" {
		return Path{}, fmt.Errorf("resolving path: origin and destination node ids are required")
	}

	routes, err := r.findRoutes(ctx, originID, destinationID)
	if err != nil {
		return Path{}, fmt.Errorf("resolving path %s -> %s: %w", originID, destinationID, err)
	}
	route, ok := preferredRoute(routes, destinationID)
	if !ok {
		return Path{}, fmt.Errorf("no route from %q to %q: %w", originID, destinationID, custody.ErrNotFound)
	}

	if err := checkEndpoints(route); err != nil {
		r.reportInconsistent(err, "route_id", route.ID, "origin", originID, "destination", destinationID)
		return Path{}, err
	}

	nodes, err := r.findNodes(ctx, route.Path)
	if err != nil {
		return Path{}, fmt.Errorf("resolving route %q: %w", route.ID, err)
	}

	path := Path{
		Route:     route,
		Nodes:     make([]custody.Node, len(route.Path)),
		Addresses: make([]custody.Address, len(route.Path)),
	}
	for index, nodeID := range route.Path {
		node, ok := nodes[nodeID]
		if !ok {
			err := fmt.Errorf("route %q references unknown node %q at position %d: %w",
				route.ID, nodeID, index, custody.ErrInconsistent)
			r.reportInconsistent(err, "route_id", route.ID, "node_id", nodeID, "position", index)
			return Path{}, err
		}
		path.Nodes[index] = node
		path.Addresses[index] = node.Address
	}
	path.Fingerprint = fingerprintPath(route, path.Addresses)

	r.logger.Debug("route resolved",
		"origin", originID,
		"destination", destinationID,
		"route_id", route.ID,
		"rank", route.Rank,
		"hops", len(path.Addresses),
		"fingerprint", path.Fingerprint.String(),
	)
	return path, nil
}

// Origins lists nodes that can originate a shipment, sorted by name.
func (r *Resolver) Origins(ctx context.Context) ([]custody.Node, error) {
	return r.listByCategory(ctx, custody.Category.CanOriginate)
}

// Destinations lists nodes that can receive a shipment, sorted by name.
func (r *Resolver) Destinations(ctx context.Context) ([]custody.Node, error) {
	return r.listByCategory(ctx, custody.Category.CanReceive)
}

// Catalog returns every node. Used by the tracking view for name
// substitution.
func (r *Resolver) Catalog(ctx context.Context) ([]custody.Node, error) {
	nodes, err := r.repository.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing nodes: %w", err)
	}
	return nodes, nil
}

func (r *Resolver) listByCategory(ctx context.Context, keep func(custody.Category) bool) ([]custody.Node, error) {
	all, err := r.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	var nodes []custody.Node
	for _, node := range all {
		if keep(node.Category) {
			nodes = append(nodes, node)
		}
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Name != nodes[j].Name {
			return nodes[i].Name < nodes[j].Name
		}
		return nodes[i].ID < nodes[j].ID
	})
	return nodes, nil
}

// OnChainRoute builds the full address sequence the ledger records for
// a shipment: the shipper, every resolved node, then the recipient.
func OnChainRoute(shipper custody.Address, path Path, recipient custody.Address) []custody.Address {
	route := make([]custody.Address, 0, len(path.Addresses)+2)
	route = append(route, shipper)
	route = append(route, path.Addresses...)
	route = append(route, recipient)
	return route
}

// preferredRoute picks the lowest (rank, id) among routes ending at
// destinationID. Rows for other destinations are ignored, which keeps
// the choice correct even if a repository over-returns.
func preferredRoute(routes []custody.Route, destinationID string) (custody.Route, bool) {
	var best custody.Route
	found := false
	for _, route := range routes {
		if route.DestinationID != destinationID {
			continue
		}
		if !found || route.Rank < best.Rank || (route.Rank == best.Rank && route.ID < best.ID) {
			best, found = route, true
		}
	}
	return best, found
}

// reportInconsistent logs a broken reference between the route and
// node tables. Callers only see a failed request, so the catalog
// problem itself is surfaced here for the operator.
func (r *Resolver) reportInconsistent(err error, attrs ...any) {
	r.logger.Error("route catalog is inconsistent", append(attrs, "error", err)...)
}

func checkEndpoints(route custody.Route) error {
	if len(route.Path) == 0 {
		return fmt.Errorf("route %q has an empty path: %w", route.ID, custody.ErrInconsistent)
	}
	if route.Path[0] != route.OriginID || route.Path[len(route.Path)-1] != route.DestinationID {
		return fmt.Errorf("route %q path runs %s -> %s, want %s -> %s: %w",
			route.ID, route.Path[0], route.Path[len(route.Path)-1],
			route.OriginID, route.DestinationID, custody.ErrInconsistent)
	}
	return nil
}

func (r *Resolver) findRoutes(ctx context.Context, originID, destinationID string) ([]custody.Route, error) {
	key := originID + "\x00" + destinationID
	if r.routes != nil {
		if routes, ok := r.routes.get(key, r.clock.Now()); ok {
			return routes, nil
		}
	}
	routes, err := r.repository.FindRoutes(ctx, originID, destinationID)
	if err != nil {
		return nil, err
	}
	if r.routes != nil {
		r.routes.put(key, routes, r.clock.Now())
	}
	return routes, nil
}

// findNodes serves what it can from the cache and fetches the rest in
// one repository call. Missing nodes are not cached.
func (r *Resolver) findNodes(ctx context.Context, ids []string) (map[string]custody.Node, error) {
	result := make(map[string]custody.Node, len(ids))
	var missing []string
	now := r.clock.Now()
	for _, id := range ids {
		if _, done := result[id]; done {
			continue
		}
		if r.nodes != nil {
			if node, ok := r.nodes.get(id, now); ok {
				result[id] = node
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := r.repository.FindNodes(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, node := range fetched {
		result[id] = node
		if r.nodes != nil {
			r.nodes.put(id, node, now)
		}
	}
	return result, nil
}
