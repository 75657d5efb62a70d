// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigVariable names the environment variable Load reads the config
// path from.
const ConfigVariable = "CUSTODY_CONFIG"

// DefaultMasterKeyVariable is the environment variable the master key
// is read from when master_key names neither a variable nor a sealed
// file.
const DefaultMasterKeyVariable = "MASTER_ENCRYPTION_KEY"

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config is the configuration for the custody daemon and CLI.
type Config struct {
	// Environment identifies the deployment type (development, staging, production).
	Environment Environment `yaml:"environment"`

	Storage   StorageConfig   `yaml:"storage"`
	MasterKey MasterKeyConfig `yaml:"master_key"`
	Retention RetentionConfig `yaml:"retention"`
	Routing   RoutingConfig   `yaml:"routing"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	HTTP      HTTPConfig      `yaml:"http"`
	Socket    SocketConfig    `yaml:"socket"`

	// EnvironmentOverrides contains per-environment overrides.
	// These are applied after the base config is loaded.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	Storage   *StorageConfig   `yaml:"storage,omitempty"`
	MasterKey *MasterKeyConfig `yaml:"master_key,omitempty"`
	Retention *RetentionConfig `yaml:"retention,omitempty"`
	Ledger    *LedgerConfig    `yaml:"ledger,omitempty"`
	HTTP      *HTTPConfig      `yaml:"http,omitempty"`
}

// StorageConfig selects and configures the storage driver.
type StorageConfig struct {
	// Driver is sqlite, postgres, or memory. Memory loses every
	// secret on restart and is refused in production.
	Driver string `yaml:"driver"`

	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig configures the embedded database.
type SQLiteConfig struct {
	// Path is the database file. Default: ${CUSTODY_ROOT}/custody.db
	Path string `yaml:"path"`

	// PoolSize is the number of connections. Default: 4
	PoolSize int `yaml:"pool_size"`
}

// PostgresConfig configures a shared PostgreSQL database.
type PostgresConfig struct {
	// URL is the connection string. ${VAR} expansion applies, so the
	// password can stay in the environment.
	URL string `yaml:"url"`

	// MaxConns bounds the connection pool. Default: 10
	MaxConns int32 `yaml:"max_conns"`
}

// MasterKeyConfig says where the 32-byte master key comes from.
// Exactly one of EnvVar or SealedFile is used.
type MasterKeyConfig struct {
	// EnvVar names an environment variable holding the key as 64 hex
	// characters. Default: MASTER_ENCRYPTION_KEY
	EnvVar string `yaml:"env_var"`

	// SealedFile is an age-encrypted file holding the hex key.
	SealedFile string `yaml:"sealed_file"`

	// IdentityFile is the age identity that opens SealedFile.
	IdentityFile string `yaml:"identity_file"`
}

// RetentionConfig configures when stored secrets are destroyed.
type RetentionConfig struct {
	// Policy is "retain" or "purge-terminal". Empty means retain,
	// except in production where it must be set.
	Policy string `yaml:"policy"`

	// SweepInterval is how often purge-terminal sweeps all stored
	// secrets. Default: 1h
	SweepInterval string `yaml:"sweep_interval"`
}

// RoutingConfig configures the route resolver.
type RoutingConfig struct {
	// CacheTTL bounds how stale a resolved route may be. "0s"
	// disables caching. Default: 30s
	CacheTTL string `yaml:"cache_ttl"`

	// CacheEntries caps the number of cached lookups. Default: 1024
	CacheEntries int `yaml:"cache_entries"`
}

// LedgerConfig configures the chain connection.
type LedgerConfig struct {
	// RPCURL is the JSON-RPC endpoint.
	RPCURL string `yaml:"rpc_url"`

	// Collection is the shipment collection contract address.
	Collection string `yaml:"collection"`

	// Factory is the shipment factory address, used only to create
	// shipments.
	Factory string `yaml:"factory"`

	// ChainID is required when SignerKeyFile is set.
	ChainID int64 `yaml:"chain_id"`

	// SignerKeyFile holds the hex secp256k1 key used to sign
	// transactions. Empty makes the daemon read-only on chain.
	SignerKeyFile string `yaml:"signer_key_file"`

	// PollInterval is the event polling period. Default: 5s
	PollInterval string `yaml:"poll_interval"`

	// Confirmations is the depth a receipt must reach. Default: 1
	Confirmations uint64 `yaml:"confirmations"`
}

// HTTPConfig configures the public API listener.
type HTTPConfig struct {
	// Listen is the TCP address. Default: 127.0.0.1:8080
	Listen string `yaml:"listen"`
}

// SocketConfig configures the privileged local socket.
type SocketConfig struct {
	// Path is the unix socket path. Default: ${CUSTODY_ROOT}/custody.sock
	Path string `yaml:"path"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
// They exist primarily to ensure all fields have sensible zero-values,
// not as a fallback - the config file is required.
func Default() *Config {
	return &Config{
		Environment: Development,
		Storage: StorageConfig{
			Driver: DriverSQLite,
			SQLite: SQLiteConfig{
				Path:     "${CUSTODY_ROOT:-${HOME}/.cache/custody}/custody.db",
				PoolSize: 4,
			},
			Postgres: PostgresConfig{MaxConns: 10},
		},
		Retention: RetentionConfig{SweepInterval: "1h"},
		Routing:   RoutingConfig{CacheTTL: "30s", CacheEntries: 1024},
		Ledger:    LedgerConfig{PollInterval: "5s", Confirmations: 1},
		HTTP:      HTTPConfig{Listen: "127.0.0.1:8080"},
		Socket:    SocketConfig{Path: "${CUSTODY_ROOT:-${HOME}/.cache/custody}/custody.sock"},
	}
}

// Load loads configuration from the CUSTODY_CONFIG environment variable.
//
// There are no fallbacks or defaults - if CUSTODY_CONFIG is not set, this fails.
func Load() (*Config, error) {
	configPath := os.Getenv(ConfigVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your custody.yaml config file, or use --config flag", ConfigVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. The only expansion
// performed is ${VAR} and ${VAR:-default} in path and URL fields.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the section matching Environment.
// Production fills the overrides with stricter defaults when the file
// has no production section.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &ConfigOverrides{
				Ledger: &LedgerConfig{Confirmations: 3},
			}
		}
	}

	if overrides == nil {
		return
	}

	if storage := overrides.Storage; storage != nil {
		if storage.Driver != "" {
			c.Storage.Driver = storage.Driver
		}
		if storage.SQLite.Path != "" {
			c.Storage.SQLite.Path = storage.SQLite.Path
		}
		if storage.SQLite.PoolSize != 0 {
			c.Storage.SQLite.PoolSize = storage.SQLite.PoolSize
		}
		if storage.Postgres.URL != "" {
			c.Storage.Postgres.URL = storage.Postgres.URL
		}
		if storage.Postgres.MaxConns != 0 {
			c.Storage.Postgres.MaxConns = storage.Postgres.MaxConns
		}
	}

	if masterKey := overrides.MasterKey; masterKey != nil {
		// The key source is replaced as a unit so an override cannot
		// leave both sources configured.
		if masterKey.EnvVar != "" || masterKey.SealedFile != "" {
			c.MasterKey = *masterKey
		}
	}

	if retention := overrides.Retention; retention != nil {
		if retention.Policy != "" {
			c.Retention.Policy = retention.Policy
		}
		if retention.SweepInterval != "" {
			c.Retention.SweepInterval = retention.SweepInterval
		}
	}

	if ledger := overrides.Ledger; ledger != nil {
		if ledger.RPCURL != "" {
			c.Ledger.RPCURL = ledger.RPCURL
		}
		if ledger.Collection != "" {
			c.Ledger.Collection = ledger.Collection
		}
		if ledger.Factory != "" {
			c.Ledger.Factory = ledger.Factory
		}
		if ledger.ChainID != 0 {
			c.Ledger.ChainID = ledger.ChainID
		}
		if ledger.SignerKeyFile != "" {
			c.Ledger.SignerKeyFile = ledger.SignerKeyFile
		}
		if ledger.PollInterval != "" {
			c.Ledger.PollInterval = ledger.PollInterval
		}
		if ledger.Confirmations > c.Ledger.Confirmations {
			c.Ledger.Confirmations = ledger.Confirmations
		}
	}

	if overrides.HTTP != nil && overrides.HTTP.Listen != "" {
		c.HTTP.Listen = overrides.HTTP.Listen
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in
// path and URL fields.
func (c *Config) expandVariables() {
	c.Storage.SQLite.Path = expandVars(c.Storage.SQLite.Path)
	c.Storage.Postgres.URL = expandVars(c.Storage.Postgres.URL)
	c.MasterKey.SealedFile = expandVars(c.MasterKey.SealedFile)
	c.MasterKey.IdentityFile = expandVars(c.MasterKey.IdentityFile)
	c.Ledger.RPCURL = expandVars(c.Ledger.RPCURL)
	c.Ledger.SignerKeyFile = expandVars(c.Ledger.SignerKeyFile)
	c.Socket.Path = expandVars(c.Socket.Path)
}

// varPattern matches the innermost ${VAR} or ${VAR:-default}, so
// nested defaults expand from the inside out.
var varPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^{}]*))?\}`)

func expandVars(s string) string {
	for range 8 {
		expanded := varPattern.ReplaceAllStringFunc(s, func(match string) string {
			parts := varPattern.FindStringSubmatch(match)
			if value := os.Getenv(parts[1]); value != "" {
				return value
			}
			return parts[2]
		})
		if expanded == s {
			return expanded
		}
		s = expanded
	}
	return s
}

// MasterKeyVariable returns the environment variable to read the
// master key from, or "" when a sealed file is configured.
func (c *Config) MasterKeyVariable() string {
	if c.MasterKey.SealedFile != "" {
		return ""
	}
	if c.MasterKey.EnvVar != "" {
		return c.MasterKey.EnvVar
	}
	return DefaultMasterKeyVariable
}

// RetentionPolicy returns the configured policy name, defaulting to
// retain.
func (c *Config) RetentionPolicy() string {
	if c.Retention.Policy == "" {
		return "retain"
	}
	return c.Retention.Policy
}

// SweepInterval parses retention.sweep_interval.
func (c *Config) SweepInterval() (time.Duration, error) {
	return parseDuration("retention.sweep_interval", c.Retention.SweepInterval, false)
}

// CacheTTL parses routing.cache_ttl. Zero means caching is disabled.
func (c *Config) CacheTTL() (time.Duration, error) {
	return parseDuration("routing.cache_ttl", c.Routing.CacheTTL, true)
}

// PollInterval parses ledger.poll_interval.
func (c *Config) PollInterval() (time.Duration, error) {
	return parseDuration("ledger.poll_interval", c.Ledger.PollInterval, false)
}

func parseDuration(field, value string, allowZero bool) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration < 0 || (duration == 0 && !allowZero) {
		return 0, fmt.Errorf("%s must be positive, got %s", field, value)
	}
	return duration, nil
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("storage.sqlite.path is required"))
		}
		if c.Storage.SQLite.PoolSize < 1 {
			errs = append(errs, fmt.Errorf("storage.sqlite.pool_size must be at least 1"))
		}
	case DriverPostgres:
		if c.Storage.Postgres.URL == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.url is required"))
		}
	case DriverMemory:
		if c.Environment == Production {
			errs = append(errs, fmt.Errorf("storage.driver memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be one of: %v", []string{DriverSQLite, DriverPostgres, DriverMemory}))
	}

	if c.MasterKey.EnvVar != "" && c.MasterKey.SealedFile != "" {
		errs = append(errs, fmt.Errorf("master_key: env_var and sealed_file are mutually exclusive"))
	}
	if c.MasterKey.SealedFile != "" && c.MasterKey.IdentityFile == "" {
		errs = append(errs, fmt.Errorf("master_key.identity_file is required with sealed_file"))
	}
	if c.Environment == Production && c.MasterKey.SealedFile == "" {
		errs = append(errs, fmt.Errorf("master_key.sealed_file is required in production"))
	}

	switch c.Retention.Policy {
	case "retain", "purge-terminal":
	case "":
		if c.Environment == Production {
			errs = append(errs, fmt.Errorf("retention.policy must be set explicitly in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("retention.policy must be one of: [retain purge-terminal]"))
	}
	if _, err := c.SweepInterval(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.CacheTTL(); err != nil {
		errs = append(errs, err)
	}
	if c.Routing.CacheEntries < 1 {
		errs = append(errs, fmt.Errorf("routing.cache_entries must be at least 1"))
	}

	if c.Ledger.RPCURL != "" && c.Ledger.Collection == "" {
		errs = append(errs, fmt.Errorf("ledger.collection is required with ledger.rpc_url"))
	}
	if c.Ledger.SignerKeyFile != "" && c.Ledger.ChainID <= 0 {
		errs = append(errs, fmt.Errorf("ledger.chain_id is required with ledger.signer_key_file"))
	}
	if _, err := c.PollInterval(); err != nil {
		errs = append(errs, err)
	}

	if c.HTTP.Listen == "" {
		errs = append(errs, fmt.Errorf("http.listen is required"))
	}
	if c.Socket.Path == "" {
		errs = append(errs, fmt.Errorf("socket.path is required"))
	}

	return errors.Join(errs...)
}

// EnsureDirectories creates the parent directories of the configured
// sqlite database and socket.
func (c *Config) EnsureDirectories() error {
	paths := []string{c.Socket.Path}
	if c.Storage.Driver == DriverSQLite {
		paths = append(paths, c.Storage.SQLite.Path)
	}
	for _, path := range paths {
		if path == "" {
			continue
		}
		directory := filepath.Dir(path)
		if err := os.MkdirAll(directory, 0o700); err != nil {
			return fmt.Errorf("creating %s: %w", directory, err)
		}
	}
	return nil
}
