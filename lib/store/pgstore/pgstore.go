// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package pgstore is the PostgreSQL storage driver, for deployments
// where several daemons share one database. It implements the same
// interfaces as sqlitestore: keystore.Repository, routing.Repository,
// and catalog.Store.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/keystore"
)

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

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
	path           TEXT[] NOT NULL,
	rank           INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS routes_by_endpoints ON routes (origin_id, destination_id);

CREATE TABLE IF NOT EXISTS encrypted_secrets (
	token_id   BIGINT PRIMARY KEY,
	iv         BYTEA NOT NULL,
	ciphertext BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Config holds the parameters for opening a Store.
type Config struct {
	// URL is a PostgreSQL connection string.
	URL string

	// MaxConns bounds the pool. Zero uses 10.
	MaxConns int32

	// Schema, when set, is created if missing and used as the search
	// path, isolating this store's tables. Tests use it to share one
	// database.
	Schema string

	Logger *slog.Logger
}

// Store is a PostgreSQL-backed custody store. Safe for concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects, verifies the connection, and ensures the schema.
func Open(ctx context.Context, config Config) (*Store, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("pgstore: URL is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parsing URL: %w", err)
	}
	poolConfig.MaxConns = 10
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second
	if config.Schema != "" {
		poolConfig.ConnConfig.RuntimeParams["search_path"] = config.Schema
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, custody.Unavailable("pgstore: connecting", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, custody.Unavailable("pgstore: ping", err)
	}

	setup := schema
	if config.Schema != "" {
		setup = "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{config.Schema}.Sanitize() + ";\n" + schema
	}
	if _, err := pool.Exec(ctx, setup); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: creating schema: %w", err)
	}

	logger.Info("postgres store opened", "host", poolConfig.ConnConfig.Host, "database", poolConfig.ConnConfig.Database)
	return &Store{pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// DropSchema drops a schema created through Config.Schema. Tests use
// it for cleanup.
func (s *Store) DropSchema(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx, "DROP SCHEMA IF EXISTS "+pgx.Identifier{name}.Sanitize()+" CASCADE")
	return err
}

func tokenKey(tokenID custody.TokenID) (int64, error) {
	if !tokenID.Assigned() {
		return 0, fmt.Errorf("token id %w: not assigned", custody.ErrPrecondition)
	}
	if tokenID.Uint64() > math.MaxInt64 {
		return 0, fmt.Errorf("token id %s exceeds BIGINT: %w", tokenID, custody.ErrPrecondition)
	}
	return int64(tokenID.Uint64()), nil
}

func translate(operation string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", operation, custody.ErrConflict)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return custody.Unavailable(operation, err)
}

// Insert implements keystore.Repository.
func (s *Store) Insert(ctx context.Context, record keystore.Record) error {
	key, err := tokenKey(record.TokenID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO encrypted_secrets (token_id, iv, ciphertext) VALUES ($1, $2, $3)`,
		key, record.IV, record.Sealed)
	return translate("inserting secret for token "+record.TokenID.String(), err)
}

// Replace implements keystore.Repository.
func (s *Store) Replace(ctx context.Context, record keystore.Record) error {
	key, err := tokenKey(record.TokenID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO encrypted_secrets (token_id, iv, ciphertext) VALUES ($1, $2, $3)
		ON CONFLICT (token_id) DO UPDATE SET iv = EXCLUDED.iv, ciphertext = EXCLUDED.ciphertext`,
		key, record.IV, record.Sealed)
	return translate("replacing secret for token "+record.TokenID.String(), err)
}

// Load implements keystore.Repository.
func (s *Store) Load(ctx context.Context, tokenID custody.TokenID) (keystore.Record, error) {
	key, err := tokenKey(tokenID)
	if err != nil {
		return keystore.Record{}, err
	}
	record := keystore.Record{TokenID: tokenID}
	err = s.pool.QueryRow(ctx,
		`SELECT iv, ciphertext FROM encrypted_secrets WHERE token_id = $1`, key,
	).Scan(&record.IV, &record.Sealed)
	if errors.Is(err, pgx.ErrNoRows) {
		return keystore.Record{}, fmt.Errorf("secret for token %s: %w", tokenID, custody.ErrNotFound)
	}
	if err != nil {
		return keystore.Record{}, translate("loading secret for token "+tokenID.String(), err)
	}
	return record, nil
}

// Delete implements keystore.Repository.
func (s *Store) Delete(ctx context.Context, tokenID custody.TokenID) error {
	key, err := tokenKey(tokenID)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM encrypted_secrets WHERE token_id = $1`, key)
	return translate("deleting secret for token "+tokenID.String(), err)
}

// ListTokens implements keystore.Repository.
func (s *Store) ListTokens(ctx context.Context) ([]custody.TokenID, error) {
	rows, err := s.pool.Query(ctx, `SELECT token_id FROM encrypted_secrets ORDER BY token_id`)
	if err != nil {
		return nil, translate("listing secrets", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, translate("listing secrets", err)
	}
	tokens := make([]custody.TokenID, len(keys))
	for index, key := range keys {
		tokens[index] = custody.NewTokenID(uint64(key))
	}
	return tokens, nil
}

// FindRoutes implements routing.Repository.
func (s *Store) FindRoutes(ctx context.Context, originID, destinationID string) ([]custody.Route, error) {
	query := `SELECT id, origin_id, destination_id, path, rank FROM routes WHERE origin_id = $1`
	args := []any{originID}
	if destinationID != "" {
		query += ` AND destination_id = $2`
		args = append(args, destinationID)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, translate("finding routes from "+originID, err)
	}
	routes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (custody.Route, error) {
		var route custody.Route
		err := row.Scan(&route.ID, &route.OriginID, &route.DestinationID, &route.Path, &route.Rank)
		return route, err
	})
	if err != nil {
		return nil, translate("finding routes from "+originID, err)
	}
	return routes, nil
}

func scanNode(row pgx.CollectableRow) (custody.Node, error) {
	var node custody.Node
	var address, category string
	if err := row.Scan(&node.ID, &node.Name, &address, &category); err != nil {
		return node, err
	}
	parsed, err := custody.ParseAddress(address)
	if err != nil {
		return node, fmt.Errorf("node %q: %v: %w", node.ID, err, custody.ErrInconsistent)
	}
	node.Address = parsed
	node.Category = custody.Category(category)
	return node, nil
}

// FindNodes implements routing.Repository.
func (s *Store) FindNodes(ctx context.Context, ids []string) (map[string]custody.Node, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, address, category FROM nodes WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, translate("finding nodes", err)
	}
	nodes, err := pgx.CollectRows(rows, scanNode)
	if err != nil {
		if errors.Is(err, custody.ErrInconsistent) {
			return nil, err
		}
		return nil, translate("finding nodes", err)
	}
	byID := make(map[string]custody.Node, len(nodes))
	for _, node := range nodes {
		byID[node.ID] = node
	}
	return byID, nil
}

// ListNodes implements routing.Repository.
func (s *Store) ListNodes(ctx context.Context) ([]custody.Node, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, address, category FROM nodes ORDER BY id`)
	if err != nil {
		return nil, translate("listing nodes", err)
	}
	nodes, err := pgx.CollectRows(rows, scanNode)
	if err != nil {
		if errors.Is(err, custody.ErrInconsistent) {
			return nil, err
		}
		return nil, translate("listing nodes", err)
	}
	return nodes, nil
}

// UpsertCatalog implements catalog.Writer in one transaction.
func (s *Store) UpsertCatalog(ctx context.Context, nodes []custody.Node, routes []custody.Route) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return translate("beginning catalog transaction", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, node := range nodes {
		batch.Queue(`
			INSERT INTO nodes (id, name, address, category) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, address = EXCLUDED.address, category = EXCLUDED.category`,
			node.ID, node.Name, node.Address.Hex(), string(node.Category))
	}
	for _, route := range routes {
		batch.Queue(`
			INSERT INTO routes (id, origin_id, destination_id, path, rank) VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET origin_id = EXCLUDED.origin_id,
				destination_id = EXCLUDED.destination_id, path = EXCLUDED.path, rank = EXCLUDED.rank`,
			route.ID, route.OriginID, route.DestinationID, route.Path, route.Rank)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return translate("writing catalog", err)
	}
	return translate("committing catalog", tx.Commit(ctx))
}
