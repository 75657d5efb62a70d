// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitestore is the SQLite storage driver: encrypted secret
// records, nodes, and routes in one database file. It implements
// keystore.Repository, routing.Repository, and catalog.Store.
package sqlitestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/keystore"
	"github.com/bureau-foundation/custody/lib/sqlitepool"
)

const schema = `
CREATE TABLE IF NOT EXISTS nodes (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	address  TEXT NOT NULL,
	category TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS routes (
	id             TEXT PRIMARY KEY,
	origin_id      TEXT NOT NULL,
	destination_id TEXT NOT NULL,
	path           TEXT NOT NULL,
	rank           INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS routes_by_endpoints ON routes (origin_id, destination_id);

CREATE TABLE IF NOT EXISTS encrypted_secrets (
	token_id   INTEGER PRIMARY KEY,
	iv         BLOB NOT NULL,
	ciphertext BLOB NOT NULL,
	created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
`

// Config holds the parameters for opening a Store.
type Config struct {
	Path     string
	PoolSize int
	Logger   *slog.Logger
}

// Store is a SQLite-backed custody store. Safe for concurrent use.
type Store struct {
	pool *sqlitepool.Pool
}

// Open opens (creating if needed) the database at config.Path and
// ensures the schema exists.
func Open(ctx context.Context, config Config) (*Store, error) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     config.Path,
		PoolSize: config.PoolSize,
		Logger:   config.Logger,
		OnConnect: func(conn *sqlite.Conn) error {
			return sqlitex.ExecuteScript(conn, schema, nil)
		},
	})
	if err != nil {
		return nil, err
	}

	// Take one connection now so a bad path or schema fails at open
	// rather than on the first request.
	conn, err := pool.Take(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlitestore: %w", err)
	}
	pool.Put(conn)
	return &Store{pool: pool}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.pool.Close()
}

func tokenKey(tokenID custody.TokenID) (int64, error) {
	if !tokenID.Assigned() {
		return 0, fmt.Errorf("token id %w: not assigned", custody.ErrPrecondition)
	}
	if tokenID.Uint64() > math.MaxInt64 {
		return 0, fmt.Errorf("token id %s exceeds the sqlite integer range: %w", tokenID, custody.ErrPrecondition)
	}
	return int64(tokenID.Uint64()), nil
}

// translate maps sqlite errors onto the custody taxonomy.
func translate(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, custody.ErrNotFound) || errors.Is(err, custody.ErrPrecondition) ||
		errors.Is(err, custody.ErrConflict) || errors.Is(err, custody.ErrInconsistent) {
		return err
	}
	if sqlite.ErrCode(err).ToPrimary() == sqlite.ResultConstraint {
		return fmt.Errorf("%s: %w", operation, custody.ErrConflict)
	}
	return custody.Unavailable(operation, err)
}

func columnBlob(stmt *sqlite.Stmt, column int) []byte {
	buffer := make([]byte, stmt.ColumnLen(column))
	stmt.ColumnBytes(column, buffer)
	return buffer
}

// Insert implements keystore.Repository. The primary key on token_id
// makes concurrent inserts for one token race to a single winner.
func (s *Store) Insert(ctx context.Context, record keystore.Record) error {
	key, err := tokenKey(record.TokenID)
	if err != nil {
		return err
	}
	err = s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"INSERT INTO encrypted_secrets (token_id, iv, ciphertext) VALUES (?, ?, ?)",
			&sqlitex.ExecOptions{Args: []any{key, record.IV, record.Sealed}})
	})
	return translate("inserting secret for token "+record.TokenID.String(), err)
}

// Replace implements keystore.Repository.
func (s *Store) Replace(ctx context.Context, record keystore.Record) error {
	key, err := tokenKey(record.TokenID)
	if err != nil {
		return err
	}
	err = s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO encrypted_secrets (token_id, iv, ciphertext) VALUES (?, ?, ?)
			ON CONFLICT (token_id) DO UPDATE SET iv = excluded.iv, ciphertext = excluded.ciphertext`,
			&sqlitex.ExecOptions{Args: []any{key, record.IV, record.Sealed}})
	})
	return translate("replacing secret for token "+record.TokenID.String(), err)
}

// Load implements keystore.Repository.
func (s *Store) Load(ctx context.Context, tokenID custody.TokenID) (keystore.Record, error) {
	key, err := tokenKey(tokenID)
	if err != nil {
		return keystore.Record{}, err
	}
	record := keystore.Record{TokenID: tokenID}
	found := false
	err = s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT iv, ciphertext FROM encrypted_secrets WHERE token_id = ?",
			&sqlitex.ExecOptions{
				Args: []any{key},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					record.IV = columnBlob(stmt, 0)
					record.Sealed = columnBlob(stmt, 1)
					found = true
					return nil
				},
			})
	})
	if err != nil {
		return keystore.Record{}, translate("loading secret for token "+tokenID.String(), err)
	}
	if !found {
		return keystore.Record{}, fmt.Errorf("secret for token %s: %w", tokenID, custody.ErrNotFound)
	}
	return record, nil
}

// Delete implements keystore.Repository.
func (s *Store) Delete(ctx context.Context, tokenID custody.TokenID) error {
	key, err := tokenKey(tokenID)
	if err != nil {
		return err
	}
	err = s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "DELETE FROM encrypted_secrets WHERE token_id = ?",
			&sqlitex.ExecOptions{Args: []any{key}})
	})
	return translate("deleting secret for token "+tokenID.String(), err)
}

// ListTokens implements keystore.Repository.
func (s *Store) ListTokens(ctx context.Context) ([]custody.TokenID, error) {
	var tokens []custody.TokenID
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT token_id FROM encrypted_secrets ORDER BY token_id",
			&sqlitex.ExecOptions{ResultFunc: func(stmt *sqlite.Stmt) error {
				tokens = append(tokens, custody.NewTokenID(uint64(stmt.ColumnInt64(0))))
				return nil
			}})
	})
	if err != nil {
		return nil, translate("listing secrets", err)
	}
	return tokens, nil
}

// FindRoutes implements routing.Repository.
func (s *Store) FindRoutes(ctx context.Context, originID, destinationID string) ([]custody.Route, error) {
	query := "SELECT id, origin_id, destination_id, path, rank FROM routes WHERE origin_id = ?"
	args := []any{originID}
	if destinationID != "" {
		query += " AND destination_id = ?"
		args = append(args, destinationID)
	}

	var routes []custody.Route
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				route := custody.Route{
					ID:            stmt.ColumnText(0),
					OriginID:      stmt.ColumnText(1),
					DestinationID: stmt.ColumnText(2),
					Rank:          stmt.ColumnInt(4),
				}
				if err := json.Unmarshal([]byte(stmt.ColumnText(3)), &route.Path); err != nil {
					return fmt.Errorf("route %q has a malformed path: %w", route.ID, custody.ErrInconsistent)
				}
				routes = append(routes, route)
				return nil
			},
		})
	})
	if err != nil {
		return nil, translate("finding routes from "+originID, err)
	}
	return routes, nil
}

// FindNodes implements routing.Repository.
func (s *Store) FindNodes(ctx context.Context, ids []string) (map[string]custody.Node, error) {
	nodes := make(map[string]custody.Node, len(ids))
	if len(ids) == 0 {
		return nodes, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for index, id := range ids {
		args[index] = id
	}
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			"SELECT id, name, address, category FROM nodes WHERE id IN ("+placeholders+")",
			&sqlitex.ExecOptions{Args: args, ResultFunc: collectNode(func(node custody.Node) { nodes[node.ID] = node })})
	})
	if err != nil {
		return nil, translate("finding nodes", err)
	}
	return nodes, nil
}

// ListNodes implements routing.Repository.
func (s *Store) ListNodes(ctx context.Context) ([]custody.Node, error) {
	var nodes []custody.Node
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT id, name, address, category FROM nodes ORDER BY id",
			&sqlitex.ExecOptions{ResultFunc: collectNode(func(node custody.Node) { nodes = append(nodes, node) })})
	})
	if err != nil {
		return nil, translate("listing nodes", err)
	}
	return nodes, nil
}

func collectNode(add func(custody.Node)) func(stmt *sqlite.Stmt) error {
	return func(stmt *sqlite.Stmt) error {
		id := stmt.ColumnText(0)
		address, err := custody.ParseAddress(stmt.ColumnText(2))
		if err != nil {
			return fmt.Errorf("node %q: %v: %w", id, err, custody.ErrInconsistent)
		}
		add(custody.Node{
			ID:       id,
			Name:     stmt.ColumnText(1),
			Address:  address,
			Category: custody.Category(stmt.ColumnText(3)),
		})
		return nil
	}
}

// UpsertCatalog implements catalog.Writer in one IMMEDIATE
// transaction.
func (s *Store) UpsertCatalog(ctx context.Context, nodes []custody.Node, routes []custody.Route) error {
	err := s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		for _, node := range nodes {
			err := sqlitex.Execute(conn, `
				INSERT INTO nodes (id, name, address, category) VALUES (?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET name = excluded.name, address = excluded.address, category = excluded.category`,
				&sqlitex.ExecOptions{Args: []any{node.ID, node.Name, node.Address.Hex(), string(node.Category)}})
			if err != nil {
				return fmt.Errorf("node %q: %w", node.ID, err)
			}
		}
		for _, route := range routes {
			path, err := json.Marshal(route.Path)
			if err != nil {
				return fmt.Errorf("route %q: %w", route.ID, err)
			}
			err = sqlitex.Execute(conn, `
				INSERT INTO routes (id, origin_id, destination_id, path, rank) VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET origin_id = excluded.origin_id,
					destination_id = excluded.destination_id, path = excluded.path, rank = excluded.rank`,
				&sqlitex.ExecOptions{Args: []any{route.ID, route.OriginID, route.DestinationID, string(path), route.Rank}})
			if err != nil {
				return fmt.Errorf("route %q: %w", route.ID, err)
			}
		}
		return nil
	})
	return translate("writing catalog", err)
}
