// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/bureau-foundation/custody/lib/secret"
)

// MasterKeySize is the length of the keystore master key.
const MasterKeySize = 32

// Keypair holds an age x25519 keypair. The private key is stored in a
// secret.Buffer (mmap-backed, locked against swap, excluded from core dumps).
// The public key is a plain string (safe to publish).
//
// The caller must call Close when the keypair is no longer needed.
type Keypair struct {
	// PrivateKey is the identity in AGE-SECRET-KEY-1... format. It
	// must never be logged or passed on a command line.
	PrivateKey *secret.Buffer

	// PublicKey is the corresponding recipient in age1... format.
	PublicKey string
}

// Close releases the private key memory (zeros, unlocks, unmaps).
// Idempotent.
func (k *Keypair) Close() error {
	if k.PrivateKey != nil {
		return k.PrivateKey.Close()
	}
	return nil
}

// GenerateKeypair generates a new age x25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	// The identity string is on the heap and cannot be scrubbed; the
	// Buffer is the durable copy.
	privateKey, err := secret.NewFromBytes([]byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}

	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// GenerateMasterKey returns a fresh random master key.
func GenerateMasterKey() (*secret.Buffer, error) {
	key, err := secret.New(MasterKeySize)
	if err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(rand.Reader, key.Bytes()); err != nil {
		key.Close()
		return nil, fmt.Errorf("reading random key: %w", err)
	}
	return key, nil
}

// Seal encrypts plaintext to one or more age recipients (age1...
// format) and returns ASCII-armored ciphertext suitable for a file.
func Seal(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(key))
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var output bytes.Buffer
	armorWriter := armor.NewWriter(&output)
	writer, err := age.Encrypt(armorWriter, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return output.Bytes(), nil
}

// Unseal decrypts armored ciphertext produced by Seal. The identity
// is borrowed, not closed. The caller must close the returned buffer.
func Unseal(ciphertext []byte, identityKey *secret.Buffer) (*secret.Buffer, error) {
	identity, err := age.ParseX25519Identity(strings.TrimSpace(identityKey.String()))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	reader, err := age.Decrypt(armor.NewReader(bytes.NewReader(ciphertext)), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("sealed payload is empty")
	}

	buffer, err := secret.NewFromBytes(plaintext)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
	}
	return buffer, nil
}

// SealMasterKey seals a master key as hex text, so an operator holding
// the identity can recover it with the age command line tool.
func SealMasterKey(masterKey *secret.Buffer, recipientKeys []string) ([]byte, error) {
	if masterKey.Len() != MasterKeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", MasterKeySize, masterKey.Len())
	}
	encoded := make([]byte, hex.EncodedLen(MasterKeySize))
	hex.Encode(encoded, masterKey.Bytes())
	defer secret.Zero(encoded)
	return Seal(encoded, recipientKeys)
}

// UnsealMasterKey opens a sealed master key and validates its length.
func UnsealMasterKey(ciphertext []byte, identityKey *secret.Buffer) (*secret.Buffer, error) {
	encoded, err := Unseal(ciphertext, identityKey)
	if err != nil {
		return nil, err
	}
	defer encoded.Close()
	return secret.ParseHex(encoded.String(), MasterKeySize)
}

// LoadMasterKey reads a sealed master key file and the identity file
// that opens it.
func LoadMasterKey(sealedPath, identityPath string) (*secret.Buffer, error) {
	ciphertext, err := os.ReadFile(sealedPath)
	if err != nil {
		return nil, fmt.Errorf("reading sealed master key: %w", err)
	}
	identity, err := secret.ReadFromPath(identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading identity %s: %w", identityPath, err)
	}
	defer identity.Close()

	masterKey, err := UnsealMasterKey(ciphertext, identity)
	if err != nil {
		return nil, fmt.Errorf("unsealing %s: %w", sealedPath, err)
	}
	return masterKey, nil
}

// ParsePublicKey validates an age public key string.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}
