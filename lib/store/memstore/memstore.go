// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package memstore is an in-memory implementation of the custody
// repositories: encrypted secret records, nodes, and routes. It backs
// unit tests and the daemon's "memory" storage driver for local
// development. Contents are lost when the process exits.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/keystore"
)

// Store holds all custody tables behind a single mutex. Safe for
// concurrent use.
type Store struct {
	mu      sync.Mutex
	secrets map[custody.TokenID]keystore.Record
	nodes   map[string]custody.Node
	routes  map[string]custody.Route
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		secrets: make(map[custody.TokenID]keystore.Record),
		nodes:   make(map[string]custody.Node),
		routes:  make(map[string]custody.Route),
	}
}

// Close implements io.Closer. The contents are discarded with the
// Store.
func (s *Store) Close() error { return nil }

// Insert implements keystore.Repository.
func (s *Store) Insert(_ context.Context, record keystore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.secrets[record.TokenID]; exists {
		return fmt.Errorf("secret for token %s: %w", record.TokenID, custody.ErrConflict)
	}
	s.secrets[record.TokenID] = cloneRecord(record)
	return nil
}

// Replace implements keystore.Repository.
func (s *Store) Replace(_ context.Context, record keystore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[record.TokenID] = cloneRecord(record)
	return nil
}

// Load implements keystore.Repository.
func (s *Store) Load(_ context.Context, tokenID custody.TokenID) (keystore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.secrets[tokenID]
	if !ok {
		return keystore.Record{}, fmt.Errorf("secret for token %s: %w", tokenID, custody.ErrNotFound)
	}
	return cloneRecord(record), nil
}

// Delete implements keystore.Repository.
func (s *Store) Delete(_ context.Context, tokenID custody.TokenID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.secrets, tokenID)
	return nil
}

// ListTokens implements keystore.Repository. Ascending order.
func (s *Store) ListTokens(_ context.Context) ([]custody.TokenID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := make([]custody.TokenID, 0, len(s.secrets))
	for tokenID := range s.secrets {
		tokens = append(tokens, tokenID)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].Uint64() < tokens[j].Uint64() })
	return tokens, nil
}

// Tamper applies mutate to the stored record for tokenID, bypassing
// the keystore. Tests use it to simulate storage corruption.
func (s *Store) Tamper(tokenID custody.TokenID, mutate func(*keystore.Record)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.secrets[tokenID]
	if !ok {
		return false
	}
	mutate(&record)
	s.secrets[tokenID] = record
	return true
}

// FindRoutes implements routing.Repository.
func (s *Store) FindRoutes(_ context.Context, originID, destinationID string) ([]custody.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var routes []custody.Route
	for _, route := range s.routes {
		if route.OriginID != originID {
			continue
		}
		if destinationID != "" && route.DestinationID != destinationID {
			continue
		}
		routes = append(routes, cloneRoute(route))
	}
	return routes, nil
}

// FindNodes implements routing.Repository.
func (s *Store) FindNodes(_ context.Context, ids []string) (map[string]custody.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := make(map[string]custody.Node, len(ids))
	for _, id := range ids {
		if node, ok := s.nodes[id]; ok {
			nodes[id] = node
		}
	}
	return nodes, nil
}

// ListNodes implements routing.Repository. Sorted by id.
func (s *Store) ListNodes(_ context.Context) ([]custody.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := make([]custody.Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

// UpsertCatalog inserts or overwrites the given nodes and routes
// atomically with respect to readers.
func (s *Store) UpsertCatalog(_ context.Context, nodes []custody.Node, routes []custody.Route) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, node := range nodes {
		s.nodes[node.ID] = node
	}
	for _, route := range routes {
		s.routes[route.ID] = cloneRoute(route)
	}
	return nil
}

// DeleteNode removes a node without touching routes that reference
// it. Tests use it to produce inconsistent reference data.
func (s *Store) DeleteNode(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, id)
}

func cloneRecord(record keystore.Record) keystore.Record {
	return keystore.Record{
		TokenID: record.TokenID,
		IV:      slices.Clone(record.IV),
		Sealed:  slices.Clone(record.Sealed),
	}
}

func cloneRoute(route custody.Route) custody.Route {
	route.Path = slices.Clone(route.Path)
	return route
}
