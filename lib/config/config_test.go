// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "custody.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Errorf("expected storage.driver=sqlite, got %s", cfg.Storage.Driver)
	}
	if cfg.MasterKeyVariable() != DefaultMasterKeyVariable {
		t.Errorf("expected master key variable %s, got %s", DefaultMasterKeyVariable, cfg.MasterKeyVariable())
	}
	if cfg.RetentionPolicy() != "retain" {
		t.Errorf("expected retention policy retain, got %s", cfg.RetentionPolicy())
	}
	ttl, err := cfg.CacheTTL()
	if err != nil || ttl != 30*time.Second {
		t.Errorf("CacheTTL() = %v, %v; want 30s", ttl, err)
	}
}

func TestLoad_RequiresConfigVariable(t *testing.T) {
	t.Setenv(ConfigVariable, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when CUSTODY_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "CUSTODY_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithConfigVariable(t *testing.T) {
	path := writeConfig(t, `
environment: staging
storage:
  driver: postgres
  postgres:
    url: postgres://custody@db/custody
retention:
  policy: purge-terminal
`)
	t.Setenv(ConfigVariable, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.Storage.Driver != DriverPostgres {
		t.Errorf("expected driver postgres, got %s", cfg.Storage.Driver)
	}
	if cfg.Storage.Postgres.URL != "postgres://custody@db/custody" {
		t.Errorf("unexpected postgres url %q", cfg.Storage.Postgres.URL)
	}
	if cfg.RetentionPolicy() != "purge-terminal" {
		t.Errorf("expected purge-terminal, got %s", cfg.RetentionPolicy())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadFile_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "storage: [unterminated")
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: development
http:
  listen: 127.0.0.1:9000
development:
  http:
    listen: 127.0.0.1:9999
  retention:
    policy: purge-terminal
production:
  http:
    listen: 0.0.0.0:443
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.HTTP.Listen != "127.0.0.1:9999" {
		t.Errorf("expected development override, got %s", cfg.HTTP.Listen)
	}
	if cfg.Retention.Policy != "purge-terminal" {
		t.Errorf("expected retention override, got %q", cfg.Retention.Policy)
	}
}

func TestProductionDefaults(t *testing.T) {
	path := writeConfig(t, `
environment: production
master_key:
  sealed_file: /etc/custody/master.age
  identity_file: /etc/custody/identity.txt
retention:
  policy: retain
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Ledger.Confirmations != 3 {
		t.Errorf("expected production confirmations 3, got %d", cfg.Ledger.Confirmations)
	}
	if cfg.MasterKeyVariable() != "" {
		t.Errorf("sealed file configured; expected no key variable, got %q", cfg.MasterKeyVariable())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestMasterKeyOverrideReplacesSource(t *testing.T) {
	path := writeConfig(t, `
environment: staging
master_key:
  env_var: CUSTODY_KEY
staging:
  master_key:
    sealed_file: /keys/master.age
    identity_file: /keys/identity.txt
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.MasterKey.EnvVar != "" {
		t.Errorf("override should replace the key source, env_var = %q", cfg.MasterKey.EnvVar)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	t.Setenv("CUSTODY_HTTP_LISTEN", "0.0.0.0:1")
	path := writeConfig(t, `
environment: development
http:
  listen: 127.0.0.1:8000
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.HTTP.Listen != "127.0.0.1:8000" {
		t.Errorf("environment variable leaked into config: %s", cfg.HTTP.Listen)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("CUSTODY_TEST_SET", "/from/env")
	t.Setenv("CUSTODY_TEST_EMPTY", "")

	tests := []struct {
		input string
		want  string
	}{
		{"${CUSTODY_TEST_SET}/db", "/from/env/db"},
		{"${CUSTODY_TEST_EMPTY:-/fallback}/db", "/fallback/db"},
		{"${CUSTODY_TEST_UNSET_VARIABLE:-${CUSTODY_TEST_SET}/nested}/db", "/from/env/nested/db"},
		{"/plain/path", "/plain/path"},
		{"${CUSTODY_TEST_UNSET_VARIABLE}", ""},
	}
	for _, test := range tests {
		if got := expandVars(test.input); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:    "invalid environment",
			mutate:  func(c *Config) { c.Environment = "qa" },
			wantErr: []string{"invalid environment"},
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Storage.Driver = "mysql" },
			wantErr: []string{"storage.driver"},
		},
		{
			name:    "postgres without url",
			mutate:  func(c *Config) { c.Storage.Driver = DriverPostgres },
			wantErr: []string{"storage.postgres.url"},
		},
		{
			name: "both key sources",
			mutate: func(c *Config) {
				c.MasterKey.EnvVar = "KEY"
				c.MasterKey.SealedFile = "/k.age"
				c.MasterKey.IdentityFile = "/id"
			},
			wantErr: []string{"mutually exclusive"},
		},
		{
			name: "production requires sealed key, explicit retention, durable storage",
			mutate: func(c *Config) {
				c.Environment = Production
				c.Storage.Driver = DriverMemory
			},
			wantErr: []string{"master_key.sealed_file", "retention.policy", "memory is not allowed"},
		},
		{
			name:    "bad retention policy",
			mutate:  func(c *Config) { c.Retention.Policy = "forever" },
			wantErr: []string{"retention.policy must be one of"},
		},
		{
			name:    "zero cache ttl is allowed",
			mutate:  func(c *Config) { c.Routing.CacheTTL = "0s" },
			wantErr: nil,
		},
		{
			name:    "negative sweep interval",
			mutate:  func(c *Config) { c.Retention.SweepInterval = "-1m" },
			wantErr: []string{"retention.sweep_interval"},
		},
		{
			name: "signer without chain id",
			mutate: func(c *Config) {
				c.Ledger.RPCURL = "http://localhost:8545"
				c.Ledger.Collection = "0x0000000000000000000000000000000000000001"
				c.Ledger.SignerKeyFile = "/signer"
			},
			wantErr: []string{"ledger.chain_id"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			cfg.expandVariables()
			test.mutate(cfg)
			err := cfg.Validate()
			if len(test.wantErr) == 0 {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want errors containing %v", test.wantErr)
			}
			for _, want := range test.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("Validate() = %v, missing %q", err, want)
				}
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Storage.SQLite.Path = filepath.Join(root, "data", "custody.db")
	cfg.Socket.Path = filepath.Join(root, "run", "custody.sock")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories() failed: %v", err)
	}
	for _, directory := range []string{"data", "run"} {
		info, err := os.Stat(filepath.Join(root, directory))
		if err != nil || !info.IsDir() {
			t.Errorf("expected directory %s to exist", directory)
		}
	}
}
