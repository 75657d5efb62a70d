// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commitment manages the commit/reveal secret that binds a
// physical package to its ledger record.
//
// At creation the [Manager] generates a fresh random secret and its
// Keccak-256 commitment. The commitment goes on-chain with the create
// call; the secret is printed on the package label. Only once the
// ledger has assigned a token id is the secret persisted through the
// encrypted keystore. At verification the secret is revealed and its
// hash compared with the on-chain commitment.
package commitment

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/secret"
)

// SecretSize is the length of a generated secret in bytes.
const SecretSize = 32

// Commitment is the Keccak-256 hash of a secret, as the custody
// contract computes it.
type Commitment [32]byte

// Hash computes the commitment for a secret.
func Hash(plaintext []byte) Commitment {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(plaintext)
	var commitment Commitment
	copy(commitment[:], hasher.Sum(nil))
	return commitment
}

// Hex returns the 0x-prefixed hex encoding used by the contract ABI
// and the HTTP API.
func (c Commitment) Hex() string {
	return "0x" + hex.EncodeToString(c[:])
}

func (c Commitment) String() string { return c.Hex() }

// Equal compares two commitments in constant time.
func (c Commitment) Equal(other Commitment) bool {
	return subtle.ConstantTimeCompare(c[:], other[:]) == 1
}

// ParseCommitment decodes a 32-byte hex commitment with an optional 0x
// prefix.
func ParseCommitment(text string) (Commitment, error) {
	var commitment Commitment
	trimmed := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(text), "0x"), "0X")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return commitment, fmt.Errorf("parsing commitment: %w", err)
	}
	if len(decoded) != len(commitment) {
		return commitment, fmt.Errorf("commitment is %d bytes, want %d", len(decoded), len(commitment))
	}
	copy(commitment[:], decoded)
	return commitment, nil
}

// Keystore is the encrypted storage a Manager persists through.
// *keystore.Store implements it.
type Keystore interface {
	Put(ctx context.Context, tokenID custody.TokenID, plaintext []byte) error
	Get(ctx context.Context, tokenID custody.TokenID) (*secret.Buffer, bool, error)
	Erase(ctx context.Context, tokenID custody.TokenID) error
}

// Manager generates, persists, reveals, and destroys shipment
// secrets.
type Manager struct {
	keystore Keystore
	random   io.Reader
	logger   *slog.Logger
}

// Config holds the parameters for creating a Manager.
type Config struct {
	Keystore Keystore

	// Random is the secret source. Nil uses crypto/rand.
	Random io.Reader

	Logger *slog.Logger
}

// NewManager constructs a Manager.
func NewManager(config Config) (*Manager, error) {
	if config.Keystore == nil {
		return nil, fmt.Errorf("commitment: Keystore is required")
	}
	random := config.Random
	if random == nil {
		random = rand.Reader
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{keystore: config.Keystore, random: random, logger: logger}, nil
}

// Generate returns a fresh random secret and its commitment. Nothing
// is stored: the token id does not exist until the create transaction
// is mined. The caller owns the returned Buffer.
func (m *Manager) Generate() (*secret.Buffer, Commitment, error) {
	buffer, err := secret.New(SecretSize)
	if err != nil {
		return nil, Commitment{}, fmt.Errorf("allocating secret: %w", err)
	}
	if _, err := io.ReadFull(m.random, buffer.Bytes()); err != nil {
		buffer.Close()
		return nil, Commitment{}, fmt.Errorf("generating secret: %w", err)
	}
	return buffer, Hash(buffer.Bytes()), nil
}

// Persist stores the secret for a confirmed token id. An unassigned
// token id fails with custody.ErrPrecondition and nothing is written.
func (m *Manager) Persist(ctx context.Context, tokenID custody.TokenID, plaintext *secret.Buffer) error {
	if !tokenID.Assigned() {
		return fmt.Errorf("persisting secret before the ledger assigned a token id: %w", custody.ErrPrecondition)
	}
	if plaintext == nil || plaintext.Len() == 0 {
		return fmt.Errorf("persisting secret for token %s: secret is empty", tokenID)
	}
	if err := m.keystore.Put(ctx, tokenID, plaintext.Bytes()); err != nil {
		return err
	}
	m.logger.Info("shipment secret persisted", "token_id", tokenID.String())
	return nil
}

// Reveal returns the stored secret. A missing record is
// custody.ErrNotFound; a record that fails authentication is
// custody.ErrIntegrity. The caller owns the returned Buffer.
func (m *Manager) Reveal(ctx context.Context, tokenID custody.TokenID) (*secret.Buffer, error) {
	buffer, found, err := m.keystore.Get(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("secret for token %s: %w", tokenID, custody.ErrNotFound)
	}
	return buffer, nil
}

// Destroy deletes the stored secret. Destroying a missing secret
// succeeds.
func (m *Manager) Destroy(ctx context.Context, tokenID custody.TokenID) error {
	if err := m.keystore.Erase(ctx, tokenID); err != nil {
		return err
	}
	m.logger.Info("shipment secret destroyed", "token_id", tokenID.String())
	return nil
}

// Verify reveals the stored secret and reports whether it hashes to
// onChain. The secret never leaves the Manager. Errors are those of
// Reveal; a mismatch is reported through the result, and the caller
// decides how loudly to log it.
func (m *Manager) Verify(ctx context.Context, tokenID custody.TokenID, onChain Commitment) (bool, error) {
	buffer, err := m.Reveal(ctx, tokenID)
	if err != nil {
		return false, err
	}
	defer buffer.Close()
	return Hash(buffer.Bytes()).Equal(onChain), nil
}

// ParseSecret decodes a hex secret, as printed on a package label,
// into a guarded Buffer. A 0x prefix is accepted. Any non-empty length
// is allowed so labels issued with shorter secrets stay verifiable.
func ParseSecret(text string) (*secret.Buffer, error) {
	return secret.ParseHex(text, 0)
}

// FormatSecret returns the 0x-prefixed hex encoding printed on a
// package label.
func FormatSecret(plaintext *secret.Buffer) string {
	return "0x" + hex.EncodeToString(plaintext.Bytes())
}
