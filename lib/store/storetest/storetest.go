// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package storetest is a conformance suite every custody storage
// driver runs against itself, so the in-memory, SQLite, and PostgreSQL
// drivers agree on the error taxonomy and on insert-once semantics.
package storetest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/keystore"
)

// Store is the full driver surface.
type Store interface {
	keystore.Repository
	FindRoutes(ctx context.Context, originID, destinationID string) ([]custody.Route, error)
	FindNodes(ctx context.Context, ids []string) (map[string]custody.Node, error)
	ListNodes(ctx context.Context) ([]custody.Node, error)
	UpsertCatalog(ctx context.Context, nodes []custody.Node, routes []custody.Route) error
}

// Run exercises a driver. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) Store) {
	t.Run("InsertLoad", func(t *testing.T) { testInsertLoad(t, open(t)) })
	t.Run("InsertConflict", func(t *testing.T) { testInsertConflict(t, open(t)) })
	t.Run("ConcurrentInsert", func(t *testing.T) { testConcurrentInsert(t, open(t)) })
	t.Run("ReplaceDelete", func(t *testing.T) { testReplaceDelete(t, open(t)) })
	t.Run("Catalog", func(t *testing.T) { testCatalog(t, open(t)) })
}

func record(tokenID uint64, fill byte) keystore.Record {
	return keystore.Record{
		TokenID: custody.NewTokenID(tokenID),
		IV:      bytes.Repeat([]byte{fill}, keystore.IVSize),
		Sealed:  bytes.Repeat([]byte{fill ^ 0xFF}, 40),
	}
}

func testInsertLoad(t *testing.T, store Store) {
	ctx := context.Background()
	if _, err := store.Load(ctx, custody.NewTokenID(1)); !errors.Is(err, custody.ErrNotFound) {
		t.Fatalf("Load of a missing record: %v, want ErrNotFound", err)
	}

	want := record(1, 0x11)
	if err := store.Insert(ctx, want); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := store.Load(ctx, want.TokenID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TokenID != want.TokenID || !bytes.Equal(got.IV, want.IV) || !bytes.Equal(got.Sealed, want.Sealed) {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}

	if err := store.Insert(ctx, record(0, 0x22)); err != nil {
		t.Fatalf("Insert token 0: %v", err)
	}
	tokens, err := store.ListTokens(ctx)
	if err != nil {
		t.Fatalf("ListTokens: %v", err)
	}
	if len(tokens) != 2 || tokens[0] != custody.NewTokenID(0) || tokens[1] != custody.NewTokenID(1) {
		t.Fatalf("ListTokens = %v, want [0 1]", tokens)
	}
}

func testInsertConflict(t *testing.T, store Store) {
	ctx := context.Background()
	if err := store.Insert(ctx, record(5, 0x01)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := store.Insert(ctx, record(5, 0x02)); !errors.Is(err, custody.ErrConflict) {
		t.Fatalf("duplicate Insert: %v, want ErrConflict", err)
	}
	got, _ := store.Load(ctx, custody.NewTokenID(5))
	if got.IV[0] != 0x01 {
		t.Fatal("duplicate Insert overwrote the first record")
	}
}

func testConcurrentInsert(t *testing.T, store Store) {
	ctx := context.Background()
	const writers = 8
	var wait sync.WaitGroup
	results := make(chan error, writers)
	for writer := range writers {
		wait.Add(1)
		go func() {
			defer wait.Done()
			results <- store.Insert(ctx, record(9, byte(writer+1)))
		}()
	}
	wait.Wait()
	close(results)

	successes := 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case !errors.Is(err, custody.ErrConflict):
			t.Errorf("Insert: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("%d concurrent inserts succeeded, want 1", successes)
	}
}

func testReplaceDelete(t *testing.T, store Store) {
	ctx := context.Background()
	if err := store.Replace(ctx, record(3, 0x01)); err != nil {
		t.Fatalf("Replace of a missing record: %v", err)
	}
	if err := store.Replace(ctx, record(3, 0x02)); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	got, err := store.Load(ctx, custody.NewTokenID(3))
	if err != nil || got.IV[0] != 0x02 {
		t.Fatalf("Load after Replace = %+v, %v", got, err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		if err := store.Delete(ctx, custody.NewTokenID(3)); err != nil {
			t.Fatalf("Delete attempt %d: %v", attempt, err)
		}
	}
	if _, err := store.Load(ctx, custody.NewTokenID(3)); !errors.Is(err, custody.ErrNotFound) {
		t.Fatalf("Load after Delete: %v, want ErrNotFound", err)
	}
}

func testCatalog(t *testing.T, store Store) {
	ctx := context.Background()
	nodes := []custody.Node{
		{ID: "WH-1", Name: "Warehouse", Address: common.HexToAddress("0x1000000000000000000000000000000000000001"), Category: custody.CategoryOrigin},
		{ID: "DC-1", Name: "Center", Address: common.HexToAddress("0x3000000000000000000000000000000000000003"), Category: custody.CategoryDestination},
	}
	routes := []custody.Route{
		{ID: "r1", OriginID: "WH-1", DestinationID: "DC-1", Path: []string{"WH-1", "DC-1"}, Rank: 2},
		{ID: "r2", OriginID: "WH-1", DestinationID: "DC-1", Path: []string{"WH-1", "DC-1"}, Rank: 1},
	}
	if err := store.UpsertCatalog(ctx, nodes, routes); err != nil {
		t.Fatalf("UpsertCatalog: %v", err)
	}

	found, err := store.FindRoutes(ctx, "WH-1", "DC-1")
	if err != nil || len(found) != 2 {
		t.Fatalf("FindRoutes = %v, %v", found, err)
	}
	all, err := store.FindRoutes(ctx, "WH-1", "")
	if err != nil || len(all) != 2 {
		t.Fatalf("FindRoutes any destination = %v, %v", all, err)
	}
	if none, err := store.FindRoutes(ctx, "DC-1", ""); err != nil || len(none) != 0 {
		t.Fatalf("FindRoutes from a destination = %v, %v", none, err)
	}

	byID, err := store.FindNodes(ctx, []string{"WH-1", "MISSING"})
	if err != nil {
		t.Fatalf("FindNodes: %v", err)
	}
	if len(byID) != 1 || byID["WH-1"].Address != nodes[0].Address {
		t.Fatalf("FindNodes = %v", byID)
	}

	renamed := nodes[0]
	renamed.Name = "Renamed Warehouse"
	if err := store.UpsertCatalog(ctx, []custody.Node{renamed}, nil); err != nil {
		t.Fatalf("UpsertCatalog update: %v", err)
	}
	listed, err := store.ListNodes(ctx)
	if err != nil || len(listed) != 2 {
		t.Fatalf("ListNodes = %v, %v", listed, err)
	}
	for _, node := range listed {
		if node.ID == "WH-1" && node.Name != "Renamed Warehouse" {
			t.Errorf("upsert did not update the name: %q", node.Name)
		}
	}
}
