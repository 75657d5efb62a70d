// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/secret"
)

const (
	// KeySize is the master key length: AES-256.
	KeySize = 32

	// IVSize is the GCM nonce length.
	IVSize = 12

	// TagSize is the GCM authentication tag length, appended to the
	// ciphertext in Record.Sealed.
	TagSize = 16
)

// aadPrefix versions the associated data. Changing it makes every
// existing record unreadable.
var aadPrefix = []byte("custody.secret.v1")

// Config holds the parameters for creating a Store.
type Config struct {
	// MasterKey is the AES-256 key. The Store takes ownership and
	// closes it on Close; the caller must not use it afterwards.
	MasterKey *secret.Buffer

	// Repository persists the encrypted records. Required.
	Repository Repository

	// Logger receives operational messages. Token ids are logged;
	// key material and plaintext never are. Nil discards.
	Logger *slog.Logger

	// Random is the IV source. Nil uses crypto/rand.
	Random io.Reader
}

// Store encrypts shipment secrets under the master key and persists
// them through a Repository. Safe for concurrent use.
type Store struct {
	masterKey  *secret.Buffer
	aead       cipher.AEAD
	repository Repository
	logger     *slog.Logger
	random     io.Reader
}

// New validates the master key and constructs a Store.
func New(config Config) (*Store, error) {
	if config.MasterKey == nil {
		return nil, fmt.Errorf("keystore: MasterKey is required")
	}
	if config.MasterKey.Len() != KeySize {
		return nil, fmt.Errorf("keystore: master key must be %d bytes, got %d", KeySize, config.MasterKey.Len())
	}
	if config.Repository == nil {
		return nil, fmt.Errorf("keystore: Repository is required")
	}

	// crypto/aes expands the key into a heap-allocated schedule. The
	// schedule lives as long as the Store, same as the key itself.
	block, err := aes.NewCipher(config.MasterKey.Bytes())
	if err != nil {
		return nil, fmt.Errorf("keystore: creating AES cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, fmt.Errorf("keystore: creating GCM: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	random := config.Random
	if random == nil {
		random = rand.Reader
	}

	return &Store{
		masterKey:  config.MasterKey,
		aead:       aead,
		repository: config.Repository,
		logger:     logger,
		random:     random,
	}, nil
}

// Close releases the master key. The Store must not be used after.
func (s *Store) Close() error {
	return s.masterKey.Close()
}

// Put encrypts plaintext and inserts a new record for tokenID. Fails
// with custody.ErrConflict if a record already exists.
func (s *Store) Put(ctx context.Context, tokenID custody.TokenID, plaintext []byte) error {
	record, err := s.seal(tokenID, plaintext)
	if err != nil {
		return err
	}
	if err := s.repository.Insert(ctx, record); err != nil {
		return fmt.Errorf("storing secret for token %s: %w", tokenID, err)
	}
	s.logger.Info("secret stored", "token_id", tokenID.String())
	return nil
}

// Replace encrypts plaintext under a fresh IV and overwrites any
// existing record for tokenID.
func (s *Store) Replace(ctx context.Context, tokenID custody.TokenID, plaintext []byte) error {
	record, err := s.seal(tokenID, plaintext)
	if err != nil {
		return err
	}
	if err := s.repository.Replace(ctx, record); err != nil {
		return fmt.Errorf("replacing secret for token %s: %w", tokenID, err)
	}
	s.logger.Warn("secret replaced", "token_id", tokenID.String())
	return nil
}

// Get loads and decrypts the secret for tokenID. found is false (with
// a nil error) when no record exists. Authentication failure returns
// custody.ErrIntegrity. The returned Buffer must be closed by the
// caller.
func (s *Store) Get(ctx context.Context, tokenID custody.TokenID) (plaintext *secret.Buffer, found bool, err error) {
	if !tokenID.Assigned() {
		return nil, false, fmt.Errorf("loading secret: token id %w: not assigned", custody.ErrPrecondition)
	}

	record, err := s.repository.Load(ctx, tokenID)
	if errors.Is(err, custody.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("loading secret for token %s: %w", tokenID, err)
	}

	opened, err := s.open(record)
	if err != nil {
		s.logger.Warn("secret failed authentication", "token_id", tokenID.String())
		return nil, false, err
	}

	buffer, err := secret.NewFromBytes(opened)
	if err != nil {
		return nil, false, fmt.Errorf("protecting secret for token %s: %w", tokenID, err)
	}
	return buffer, true, nil
}

// Erase deletes the record for tokenID. Erasing a missing record
// succeeds.
func (s *Store) Erase(ctx context.Context, tokenID custody.TokenID) error {
	if !tokenID.Assigned() {
		return fmt.Errorf("erasing secret: token id %w: not assigned", custody.ErrPrecondition)
	}
	if err := s.repository.Delete(ctx, tokenID); err != nil {
		return fmt.Errorf("erasing secret for token %s: %w", tokenID, err)
	}
	s.logger.Info("secret erased", "token_id", tokenID.String())
	return nil
}

// Tokens lists every token id with a stored record.
func (s *Store) Tokens(ctx context.Context) ([]custody.TokenID, error) {
	tokens, err := s.repository.ListTokens(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing stored secrets: %w", err)
	}
	return tokens, nil
}

func (s *Store) seal(tokenID custody.TokenID, plaintext []byte) (Record, error) {
	if !tokenID.Assigned() {
		return Record{}, fmt.Errorf("storing secret: token id %w: not assigned", custody.ErrPrecondition)
	}
	if len(plaintext) == 0 {
		return Record{}, fmt.Errorf("storing secret for token %s: plaintext is empty", tokenID)
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(s.random, iv); err != nil {
		return Record{}, fmt.Errorf("generating IV: %w", err)
	}

	sealed := s.aead.Seal(nil, iv, plaintext, buildAAD(tokenID))
	return Record{TokenID: tokenID, IV: iv, Sealed: sealed}, nil
}

// open authenticates and decrypts a record. The trailing TagSize bytes
// of Sealed are the tag; GCM verifies it before releasing any
// plaintext.
func (s *Store) open(record Record) ([]byte, error) {
	if len(record.IV) != IVSize {
		return nil, fmt.Errorf("secret for token %s: IV is %d bytes, want %d: %w",
			record.TokenID, len(record.IV), IVSize, custody.ErrIntegrity)
	}
	if len(record.Sealed) < TagSize {
		return nil, fmt.Errorf("secret for token %s: sealed value is %d bytes, shorter than the tag: %w",
			record.TokenID, len(record.Sealed), custody.ErrIntegrity)
	}

	plaintext, err := s.aead.Open(nil, record.IV, record.Sealed, buildAAD(record.TokenID))
	if err != nil {
		return nil, fmt.Errorf("secret for token %s: %w", record.TokenID, custody.ErrIntegrity)
	}
	return plaintext, nil
}

// buildAAD binds a record to its token id: ciphertext sealed for one
// token fails authentication when presented as another's. Records
// sealed without associated data (ciphertext and tag only, as some
// older stores wrote them) fail the same way and must be re-sealed
// with Replace.
func buildAAD(tokenID custody.TokenID) []byte {
	aad := make([]byte, len(aadPrefix)+8)
	copy(aad, aadPrefix)
	binary.BigEndian.PutUint64(aad[len(aadPrefix):], tokenID.Uint64())
	return aad
}
