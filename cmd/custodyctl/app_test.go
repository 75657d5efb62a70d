// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bureau-foundation/custody/cmd/custodyctl/cli"
	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/ledger"
	"github.com/bureau-foundation/custody/lib/ledger/ledgertest"
	"github.com/bureau-foundation/custody/lib/process"
	"github.com/bureau-foundation/custody/lib/sealed"
	"github.com/bureau-foundation/custody/lib/service"
	"github.com/bureau-foundation/custody/lib/store/memstore"
	"github.com/bureau-foundation/custody/lib/testutil"
	"github.com/bureau-foundation/custody/lib/tracking"
	"github.com/bureau-foundation/custody/lib/workflow"
)

var (
	shipper   = common.HexToAddress("0x5100000000000000000000000000000000000005")
	recipient = common.HexToAddress("0xec00000000000000000000000000000000000007")
	warehouse = common.HexToAddress("0x1000000000000000000000000000000000000001")
	hub       = common.HexToAddress("0x2000000000000000000000000000000000000002")
	center    = common.HexToAddress("0x3000000000000000000000000000000000000003")
)

type harness struct {
	app    *app
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newHarness() *harness {
	var stdout, stderr bytes.Buffer
	return &harness{app: newApp(&stdout, &stderr), stdout: &stdout, stderr: &stderr}
}

// run executes one command line against a fresh command tree and
// returns its stdout.
func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	h.stdout.Reset()
	err := h.app.root().Execute(context.Background(), args)
	return h.stdout.String(), err
}

func (h *harness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	output, err := h.run(t, args...)
	if err != nil {
		t.Fatalf("custodyctl %s: %v\nstderr: %s", strings.Join(args, " "), err, h.stderr.String())
	}
	return output
}

func writeFile(t *testing.T, path, contents string) string {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

func TestKeyGenerateSealCheck(t *testing.T) {
	directory := t.TempDir()
	identity := filepath.Join(directory, "identity.age")
	master := filepath.Join(directory, "master.age")
	h := newHarness()

	publicKey := strings.TrimSpace(h.mustRun(t, "key", "generate", "--identity", identity))
	if err := sealed.ParsePublicKey(publicKey); err != nil {
		t.Fatalf("generate printed %q: %v", publicKey, err)
	}
	info, err := os.Stat(identity)
	if err != nil {
		t.Fatalf("stat identity: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("identity mode = %v, want 0600", info.Mode().Perm())
	}

	_, err = h.run(t, "key", "generate", "--identity", identity)
	if !errors.Is(err, custody.ErrConflict) {
		t.Errorf("second generate error = %v, want ErrConflict", err)
	}

	hexKey := strings.Repeat("ab", sealed.MasterKeySize)
	keyFile := writeFile(t, filepath.Join(directory, "master.hex"), hexKey+"\n")
	output := h.mustRun(t, "key", "seal", "-r", publicKey, "-o", master, "--key-file", keyFile)
	if !strings.Contains(output, "sealed existing master key to 1 recipient(s)") {
		t.Errorf("seal output = %q", output)
	}

	loaded, err := sealed.LoadMasterKey(master, identity)
	if err != nil {
		t.Fatalf("LoadMasterKey: %v", err)
	}
	defer loaded.Close()
	if got := fmt.Sprintf("%x", loaded.Bytes()); got != hexKey {
		t.Errorf("unsealed key = %s, want %s", got, hexKey)
	}

	output = h.mustRun(t, "key", "check", "--sealed", master, "--identity", identity)
	if !strings.HasPrefix(output, "ok:") {
		t.Errorf("check output = %q", output)
	}
}

func TestKeySealRejectsBadRecipient(t *testing.T) {
	h := newHarness()
	_, err := h.run(t, "key", "seal", "-r", "age1notakey", "-o", filepath.Join(t.TempDir(), "master.age"))
	if !errors.Is(err, custody.ErrPrecondition) {
		t.Errorf("error = %v, want ErrPrecondition", err)
	}
}

const seedCatalog = `{
  // Reference data for the CLI tests.
  "nodes": [
    {"id": "WH-1", "name": "Warehouse", "address": "0x1000000000000000000000000000000000000001", "category": "origin"},
    {"id": "HUB", "name": "Hub", "address": "0x2000000000000000000000000000000000000002", "category": "both"},
    {"id": "DC-1", "name": "Center", "address": "0x3000000000000000000000000000000000000003", "category": "destination"},
  ],
  "routes": [
    {"id": "direct", "origin_id": "WH-1", "destination_id": "DC-1", "path": ["WH-1", "DC-1"], "rank": 2},
    {"id": "via-hub", "origin_id": "WH-1", "destination_id": "DC-1", "path": ["WH-1", "HUB", "DC-1"], "rank": 1},
  ],
}
`

func writeConfig(t *testing.T, directory string) string {
	t.Helper()
	return writeFile(t, filepath.Join(directory, "custody.yaml"), fmt.Sprintf(`environment: development
storage:
  driver: sqlite
  sqlite:
    path: %s
socket:
  path: %s
`, filepath.Join(directory, "data", "custody.db"), filepath.Join(directory, "custody.sock")))
}

func TestCatalogImportAndResolve(t *testing.T) {
	directory := t.TempDir()
	configPath := writeConfig(t, directory)
	seed := writeFile(t, filepath.Join(directory, "catalog.jsonc"), seedCatalog)
	h := newHarness()

	output := h.mustRun(t, "catalog", "validate", seed)
	if !strings.Contains(output, "3 nodes, 2 routes") {
		t.Errorf("validate output = %q", output)
	}

	var imported catalogSummary
	output = h.mustRun(t, "catalog", "import", seed, "--config", configPath, "--json")
	if err := json.Unmarshal([]byte(output), &imported); err != nil {
		t.Fatalf("decoding import output %q: %v", output, err)
	}
	if imported.Nodes != 3 || imported.Routes != 2 || len(imported.Digest) != 64 {
		t.Errorf("import summary = %+v", imported)
	}

	var resolved resolvedRoute
	output = h.mustRun(t, "route", "resolve", "WH-1", "DC-1", "--config", configPath, "--json")
	if err := json.Unmarshal([]byte(output), &resolved); err != nil {
		t.Fatalf("decoding resolve output %q: %v", output, err)
	}
	if resolved.RouteID != "via-hub" {
		t.Errorf("route = %q, want via-hub (lowest rank)", resolved.RouteID)
	}
	wantRoute := []custody.Address{warehouse, hub, center}
	if len(resolved.Route) != len(wantRoute) {
		t.Fatalf("route addresses = %v, want %v", resolved.Route, wantRoute)
	}
	for index := range wantRoute {
		if resolved.Route[index] != wantRoute[index] {
			t.Errorf("route[%d] = %s, want %s", index, resolved.Route[index], wantRoute[index])
		}
	}

	output = h.mustRun(t, "route", "destinations", "WH-1", "--config", configPath)
	if !strings.Contains(output, "DC-1") || strings.Contains(output, "WH-1 ") {
		t.Errorf("destinations output:\n%s", output)
	}

	_, err := h.run(t, "route", "resolve", "DC-1", "WH-1", "--config", configPath)
	if !errors.Is(err, custody.ErrNotFound) {
		t.Errorf("reverse resolve error = %v, want ErrNotFound", err)
	}
}

func TestCatalogValidateReportsEveryProblem(t *testing.T) {
	seed := writeFile(t, filepath.Join(t.TempDir(), "bad.jsonc"), `{
  "nodes": [{"id": "A", "name": "", "address": "0x1000000000000000000000000000000000000001", "category": "origin"}],
  "routes": [{"id": "r", "origin_id": "A", "destination_id": "MISSING", "path": ["A", "MISSING"], "rank": 1}],
}`)
	_, err := newHarness().run(t, "catalog", "validate", seed)
	if !errors.Is(err, custody.ErrPrecondition) {
		t.Fatalf("error = %v, want ErrPrecondition", err)
	}
	message := err.Error()
	if !strings.Contains(message, "name is empty") || !strings.Contains(message, "MISSING") {
		t.Errorf("error does not list every problem: %v", err)
	}
}

// fakeDaemon records socket requests and answers with canned results.
type fakeDaemon struct {
	mu       sync.Mutex
	requests map[string]map[string]any
	matched  atomic.Bool
}

func (f *fakeDaemon) record(action string, raw []byte) error {
	var request map[string]any
	if err := codec.Unmarshal(raw, &request); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[action] = request
	return nil
}

func (f *fakeDaemon) request(action string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[action]
}

func startFakeDaemon(t *testing.T) (*fakeDaemon, string) {
	t.Helper()
	fake := &fakeDaemon{requests: make(map[string]map[string]any)}
	socketPath := filepath.Join(testutil.SocketDir(t), "custody.sock")
	server := service.NewSocketServer(socketPath, nil)

	server.Handle("status", func(ctx context.Context, raw []byte) (any, error) {
		return daemonStatus{Version: "test", Uptime: "1m0s", Ledger: true, RetentionPolicy: "retain"}, nil
	})
	server.Handle("store-secret", func(ctx context.Context, raw []byte) (any, error) {
		if err := fake.record("store-secret", raw); err != nil {
			return nil, err
		}
		return secretResult{TokenID: custody.NewTokenID(7), Commitment: "0xc0"}, nil
	})
	server.Handle("reveal-secret", func(ctx context.Context, raw []byte) (any, error) {
		return nil, fmt.Errorf("token 9: %w", custody.ErrNotFound)
	})
	server.Handle("verify-secret", func(ctx context.Context, raw []byte) (any, error) {
		if err := fake.record("verify-secret", raw); err != nil {
			return nil, err
		}
		result := verifyResult{TokenID: custody.NewTokenID(7), Matched: fake.matched.Load(), Status: "Awaiting Verification"}
		if !result.Matched {
			result.Mismatch = "stored"
		}
		return result, nil
	})
	server.Handle("destroy-secret", func(ctx context.Context, raw []byte) (any, error) {
		return nil, fake.record("destroy-secret", raw)
	})
	server.Handle("purge-terminal", func(ctx context.Context, raw []byte) (any, error) {
		return workflow.SweepResult{Checked: 3, Purged: 2}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.Serve(ctx); err != nil {
			t.Errorf("socket Serve: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		testutil.RequireClosed(t, done, 5*time.Second, "socket server did not stop")
	})
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "socket server did not start")
	return fake, socketPath
}

func TestSecretCommandsOverSocket(t *testing.T) {
	fake, socketPath := startFakeDaemon(t)
	secretFile := writeFile(t, filepath.Join(t.TempDir(), "secret"), "0XDEADBEEF\n")
	h := newHarness()

	output := h.mustRun(t, "secret", "store", "7", "--socket", socketPath, "--secret-file", secretFile)
	if !strings.Contains(output, "stored secret for token 7") {
		t.Errorf("store output = %q", output)
	}
	request := fake.request("store-secret")
	if request["token_id"] != "7" || request["secret"] != "0xdeadbeef" {
		t.Errorf("store request = %v", request)
	}

	_, err := h.run(t, "secret", "reveal", "9", "--socket", socketPath)
	if !errors.Is(err, custody.ErrNotFound) {
		t.Errorf("reveal error = %v, want ErrNotFound", err)
	}
	if process.ExitCode(err) != process.ExitNotFound {
		t.Errorf("reveal exit code = %d", process.ExitCode(err))
	}

	output, err = h.run(t, "secret", "verify", "7", "--socket", socketPath, "--secret-file", secretFile)
	var exit *cli.ExitError
	if !errors.As(err, &exit) || exit.Code != 1 {
		t.Fatalf("mismatched verify error = %v, want exit code 1", err)
	}
	if !strings.Contains(output, "does not match (stored)") {
		t.Errorf("verify output = %q", output)
	}

	fake.matched.Store(true)
	output = h.mustRun(t, "secret", "verify", "7", "--socket", socketPath, "--secret-file", secretFile, "--submit")
	if !strings.Contains(output, "secret matches (status Awaiting Verification)") {
		t.Errorf("verify output = %q", output)
	}
	if submit, _ := fake.request("verify-secret")["submit"].(bool); !submit {
		t.Errorf("verify request did not carry submit: %v", fake.request("verify-secret"))
	}

	_, err = h.run(t, "secret", "destroy", "7", "--socket", socketPath)
	if !errors.Is(err, custody.ErrPrecondition) {
		t.Errorf("destroy without --yes error = %v, want ErrPrecondition", err)
	}
	if fake.request("destroy-secret") != nil {
		t.Error("destroy reached the daemon without confirmation")
	}
	h.mustRun(t, "secret", "destroy", "7", "--socket", socketPath, "--yes")
	if fake.request("destroy-secret")["token_id"] != "7" {
		t.Errorf("destroy request = %v", fake.request("destroy-secret"))
	}

	output = h.mustRun(t, "secret", "purge", "--socket", socketPath)
	if output != "checked 3, purged 2, failed 0\n" {
		t.Errorf("purge output = %q", output)
	}

	var status daemonStatus
	output = h.mustRun(t, "status", "--socket", socketPath, "--json")
	if err := json.Unmarshal([]byte(output), &status); err != nil {
		t.Fatalf("decoding status %q: %v", output, err)
	}
	if status.Version != "test" || !status.Ledger {
		t.Errorf("status = %+v", status)
	}
}

func TestSecretStoreRejectsMalformedSecretLocally(t *testing.T) {
	secretFile := writeFile(t, filepath.Join(t.TempDir(), "secret"), "not hex\n")
	// No daemon is listening: the command must fail before dialing.
	_, err := newHarness().run(t, "secret", "store", "7", "--socket", "/nonexistent/custody.sock", "--secret-file", secretFile)
	if !errors.Is(err, custody.ErrPrecondition) {
		t.Errorf("error = %v, want ErrPrecondition", err)
	}
}

func TestDaemonDownIsUnavailable(t *testing.T) {
	socketPath := filepath.Join(testutil.SocketDir(t), "missing.sock")
	_, err := newHarness().run(t, "status", "--socket", socketPath)
	if !errors.Is(err, custody.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if process.ExitCode(err) != process.ExitUnavailable {
		t.Errorf("exit code = %d, want %d", process.ExitCode(err), process.ExitUnavailable)
	}
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"secrte"}},
		{"unknown flag", []string{"secret", "reveal", "7", "--sockt", "x"}},
		{"missing argument", []string{"secret", "reveal"}},
		{"bad token id", []string{"secret", "reveal", "seven"}},
		{"extra argument", []string{"route", "origins", "extra"}},
		{"bad shipper", []string{"shipment", "create", "--origin", "WH-1", "--destination", "DC-1", "--shipper", "nope"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := newHarness().run(t, test.args...)
			if !errors.Is(err, custody.ErrPrecondition) {
				t.Fatalf("error = %v, want ErrPrecondition", err)
			}
			if process.ExitCode(err) != process.ExitPrecondition {
				t.Errorf("exit code = %d", process.ExitCode(err))
			}
		})
	}
}

func TestTrack(t *testing.T) {
	store := memstore.New()
	err := store.UpsertCatalog(context.Background(),
		[]custody.Node{
			{ID: "WH-1", Name: "Warehouse", Address: warehouse, Category: custody.CategoryOrigin},
			{ID: "HUB", Name: "Hub", Address: hub, Category: custody.CategoryBoth},
		}, nil)
	if err != nil {
		t.Fatalf("UpsertCatalog: %v", err)
	}
	contract := ledgertest.New()
	contract.Put(ledger.Shipment{
		TokenID: custody.NewTokenID(4),
		Owner:   warehouse,
		Details: ledger.ShipmentDetails{
			Shipper:           shipper,
			Recipient:         recipient,
			Status:            ledger.StatusInTransit,
			CargoDetails:      "crates",
			PaymentAmount:     big.NewInt(250),
			PlannedRoute:      []custody.Address{shipper, warehouse, hub, recipient},
			CurrentRouteIndex: 1,
		},
	})
	reader := tracking.NewReader(contract, store, nil)
	h := newHarness()

	if err := h.app.track(context.Background(), reader, nil, custody.NewTokenID(4), recipient, &cli.JSONOutput{}); err != nil {
		t.Fatalf("track: %v", err)
	}
	for _, want := range []string{"Shipment #4", "[In Transit]", "crates", "250 wei", "Warehouse", "Actions:"} {
		if !strings.Contains(h.stdout.String(), want) {
			t.Errorf("output missing %q:\n%s", want, h.stdout.String())
		}
	}

	output := &notifyingBuffer{writes: make(chan struct{}, 4)}
	watching := newApp(output, h.stderr)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	watcher := tracking.NewWatcher(reader, contract, nil)
	done := make(chan error, 1)
	go func() {
		done <- watching.track(ctx, reader, watcher, custody.NewTokenID(4), custody.Address{}, &cli.JSONOutput{OutputJSON: true})
	}()
	// The initial view is written once the subscription exists, so an
	// event emitted afterwards is always seen.
	testutil.RequireReceive(t, output.writes, 5*time.Second, "initial view not written")
	contract.Emit(custody.NewTokenID(4))
	testutil.RequireReceive(t, output.writes, 5*time.Second, "refreshed view not written")
	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "track did not stop"); err != nil {
		t.Fatalf("watch returned %v after cancel", err)
	}

	decoder := json.NewDecoder(bytes.NewReader(output.Bytes()))
	var views int
	for decoder.More() {
		var shipment trackedShipment
		if err := decoder.Decode(&shipment); err != nil {
			t.Fatalf("decoding view %d: %v", views, err)
		}
		if shipment.Status != ledger.StatusInTransit || shipment.Actions != nil {
			t.Errorf("view %d = %+v", views, shipment)
		}
		views++
	}
	if views != 2 {
		t.Errorf("watch printed %d views, want 2 (initial and one per event)", views)
	}
}

// notifyingBuffer signals each completed write.
type notifyingBuffer struct {
	mu     sync.Mutex
	buffer bytes.Buffer
	writes chan struct{}
}

func (b *notifyingBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	n, err := b.buffer.Write(p)
	b.mu.Unlock()
	b.writes <- struct{}{}
	return n, err
}

func (b *notifyingBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buffer.Bytes())
}
