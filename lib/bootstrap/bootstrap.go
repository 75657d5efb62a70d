// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/commitment"
	"github.com/bureau-foundation/custody/lib/config"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/keystore"
	"github.com/bureau-foundation/custody/lib/ledger/evm"
	"github.com/bureau-foundation/custody/lib/routing"
	"github.com/bureau-foundation/custody/lib/sealed"
	"github.com/bureau-foundation/custody/lib/secret"
	"github.com/bureau-foundation/custody/lib/store/memstore"
	"github.com/bureau-foundation/custody/lib/store/pgstore"
	"github.com/bureau-foundation/custody/lib/store/sqlitestore"
	"github.com/bureau-foundation/custody/lib/tracking"
)

// Store is the surface every storage driver provides.
type Store interface {
	keystore.Repository
	routing.Repository
	UpsertCatalog(ctx context.Context, nodes []custody.Node, routes []custody.Route) error
	io.Closer
}

// OpenStore opens the configured storage driver.
func OpenStore(ctx context.Context, storage config.StorageConfig, logger *slog.Logger) (Store, error) {
	// Each driver is returned only on success so a failed open never
	// yields a non-nil interface around a nil pointer.
	switch storage.Driver {
	case config.DriverSQLite:
		store, err := sqlitestore.Open(ctx, sqlitestore.Config{
			Path:     storage.SQLite.Path,
			PoolSize: storage.SQLite.PoolSize,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverPostgres:
		store, err := pgstore.Open(ctx, pgstore.Config{
			URL:      storage.Postgres.URL,
			MaxConns: storage.Postgres.MaxConns,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.DriverMemory:
		logger.Warn("using in-memory storage; secrets are lost on exit")
		return memstore.New(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", storage.Driver)
}

// LoadMasterKey reads the master key from the configured source. A
// key read from the environment is removed from the environment so
// child processes never inherit it.
func LoadMasterKey(cfg *config.Config) (*secret.Buffer, error) {
	if cfg.MasterKey.SealedFile != "" {
		return sealed.LoadMasterKey(cfg.MasterKey.SealedFile, cfg.MasterKey.IdentityFile)
	}

	variable := cfg.MasterKeyVariable()
	encoded, present := os.LookupEnv(variable)
	if !present || strings.TrimSpace(encoded) == "" {
		return nil, fmt.Errorf("master key: %s is not set", variable)
	}
	key, err := secret.ParseHex(encoded, keystore.KeySize)
	if err != nil {
		return nil, fmt.Errorf("master key from %s: %w", variable, err)
	}
	os.Unsetenv(variable)
	return key, nil
}

// Ledger bundles the chain client with the contract binding and the
// event poller built on it.
type Ledger struct {
	Contract *evm.Contract
	Events   *evm.PollingEvents
	client   *ethclient.Client
}

// Close disconnects from the RPC endpoint.
func (l *Ledger) Close() {
	l.client.Close()
}

// DialLedger connects to the configured RPC endpoint. It returns nil
// without error when no endpoint is configured; ledger-backed
// operations are then unavailable.
func DialLedger(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *slog.Logger) (*Ledger, error) {
	if cfg.Ledger.RPCURL == "" {
		return nil, nil
	}

	collection, err := custody.ParseAddress(cfg.Ledger.Collection)
	if err != nil {
		return nil, fmt.Errorf("ledger.collection: %w", err)
	}
	var factory custody.Address
	if cfg.Ledger.Factory != "" {
		if factory, err = custody.ParseAddress(cfg.Ledger.Factory); err != nil {
			return nil, fmt.Errorf("ledger.factory: %w", err)
		}
	}
	pollInterval, err := cfg.PollInterval()
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, cfg.Ledger.RPCURL)
	if err != nil {
		return nil, custody.Unavailable("dialing ledger", err)
	}

	var signer *bind.TransactOpts
	if cfg.Ledger.SignerKeyFile != "" {
		signer, err = loadSigner(cfg.Ledger.SignerKeyFile, cfg.Ledger.ChainID)
		if err != nil {
			client.Close()
			return nil, err
		}
		logger.Info("ledger signer loaded", "address", signer.From.Hex())
	}

	contract, err := evm.New(evm.Config{
		Backend:       client,
		Collection:    collection,
		Factory:       factory,
		Signer:        signer,
		Confirmations: cfg.Ledger.Confirmations,
		Clock:         clk,
		PollInterval:  pollInterval,
		Logger:        logger,
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	events, err := evm.NewPollingEvents(evm.PollingConfig{
		Source:     client,
		Collection: collection,
		Interval:   pollInterval,
		Clock:      clk,
		Logger:     logger,
	})
	if err != nil {
		client.Close()
		return nil, err
	}
	return &Ledger{Contract: contract, Events: events, client: client}, nil
}

func loadSigner(path string, chainID int64) (*bind.TransactOpts, error) {
	encoded, err := secret.ReadFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("reading signer key: %w", err)
	}
	defer encoded.Close()

	// go-ethereum parses keys from strings; the heap copy lives only
	// for this call.
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(encoded.String(), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parsing signer key: %w", err)
	}
	signer, err := bind.NewKeyedTransactorWithChainID(privateKey, big.NewInt(chainID))
	if err != nil {
		return nil, fmt.Errorf("creating signer: %w", err)
	}
	return signer, nil
}

// Components are the assembled custody services.
type Components struct {
	Config   *config.Config
	Store    Store
	Keystore *keystore.Store
	Secrets  *commitment.Manager
	Resolver *routing.Resolver

	// Ledger and Tracking are nil when no RPC endpoint is configured.
	Ledger   *Ledger
	Tracking *tracking.Reader
}

// Options select which components Open builds.
type Options struct {
	// SkipMasterKey opens storage and routing only. Catalog and route
	// commands use it so they work without access to the key.
	SkipMasterKey bool

	// SkipLedger leaves Ledger and Tracking nil even when an RPC
	// endpoint is configured.
	SkipLedger bool

	Clock clock.Clock
}

// Open builds the components described by cfg. On error everything
// opened so far is closed.
func Open(ctx context.Context, cfg *config.Config, options Options, logger *slog.Logger) (_ *Components, err error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}

	components := &Components{Config: cfg}
	defer func() {
		if err != nil {
			components.Close()
		}
	}()

	components.Store, err = OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Storage.Driver, err)
	}

	cacheTTL, err := cfg.CacheTTL()
	if err != nil {
		return nil, err
	}
	if cacheTTL == 0 {
		cacheTTL = -1
	}
	components.Resolver, err = routing.NewResolver(routing.Config{
		Repository:   components.Store,
		Clock:        clk,
		CacheTTL:     cacheTTL,
		CacheEntries: cfg.Routing.CacheEntries,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	if !options.SkipMasterKey {
		masterKey, err := LoadMasterKey(cfg)
		if err != nil {
			return nil, err
		}
		components.Keystore, err = keystore.New(keystore.Config{
			MasterKey:  masterKey,
			Repository: components.Store,
			Logger:     logger,
		})
		if err != nil {
			masterKey.Close()
			return nil, err
		}
		components.Secrets, err = commitment.NewManager(commitment.Config{
			Keystore: components.Keystore,
			Logger:   logger,
		})
		if err != nil {
			return nil, err
		}
	}

	if !options.SkipLedger {
		components.Ledger, err = DialLedger(ctx, cfg, clk, logger)
		if err != nil {
			return nil, err
		}
		if components.Ledger != nil {
			components.Tracking = tracking.NewReader(components.Ledger.Contract, components.Store, logger)
		}
	}

	return components, nil
}

// Close releases everything Open acquired, in reverse order.
func (c *Components) Close() error {
	var errs []error
	if c.Ledger != nil {
		c.Ledger.Close()
	}
	if c.Keystore != nil {
		errs = append(errs, c.Keystore.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}
