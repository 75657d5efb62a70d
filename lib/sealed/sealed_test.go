// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/custody/lib/secret"
)

func generateKeypair(t *testing.T) *Keypair {
	t.Helper()
	keypair, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair() error: %v", err)
	}
	t.Cleanup(func() { keypair.Close() })
	return keypair
}

func generateMasterKey(t *testing.T) *secret.Buffer {
	t.Helper()
	key, err := GenerateMasterKey()
	if err != nil {
		t.Fatalf("GenerateMasterKey() error: %v", err)
	}
	t.Cleanup(func() { key.Close() })
	return key
}

func TestGenerateKeypair(t *testing.T) {
	keypair := generateKeypair(t)

	if !strings.HasPrefix(keypair.PrivateKey.String(), "AGE-SECRET-KEY-1") {
		t.Error("private key does not have the AGE-SECRET-KEY-1 prefix")
	}
	if !strings.HasPrefix(keypair.PublicKey, "age1") {
		t.Errorf("PublicKey = %q, want prefix age1", keypair.PublicKey)
	}
	if err := ParsePublicKey(keypair.PublicKey); err != nil {
		t.Errorf("ParsePublicKey() error: %v", err)
	}
}

func TestGenerateMasterKey_Unique(t *testing.T) {
	first := generateMasterKey(t)
	second := generateMasterKey(t)
	if first.Len() != MasterKeySize {
		t.Errorf("master key length = %d, want %d", first.Len(), MasterKeySize)
	}
	if first.Equal(second) {
		t.Error("two generated master keys are equal")
	}
}

func TestMasterKeyRoundTrip(t *testing.T) {
	keypair := generateKeypair(t)
	masterKey := generateMasterKey(t)

	sealedKey, err := SealMasterKey(masterKey, []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("SealMasterKey() error: %v", err)
	}
	if !bytes.HasPrefix(sealedKey, []byte("-----BEGIN AGE ENCRYPTED FILE-----")) {
		t.Errorf("sealed key is not armored: %q", sealedKey[:32])
	}

	unsealed, err := UnsealMasterKey(sealedKey, keypair.PrivateKey)
	if err != nil {
		t.Fatalf("UnsealMasterKey() error: %v", err)
	}
	defer unsealed.Close()
	if !unsealed.Equal(masterKey) {
		t.Error("unsealed master key differs from the original")
	}
}

func TestUnseal_WrongIdentity(t *testing.T) {
	owner := generateKeypair(t)
	stranger := generateKeypair(t)
	masterKey := generateMasterKey(t)

	sealedKey, err := SealMasterKey(masterKey, []string{owner.PublicKey})
	if err != nil {
		t.Fatalf("SealMasterKey() error: %v", err)
	}
	if _, err := UnsealMasterKey(sealedKey, stranger.PrivateKey); err == nil {
		t.Fatal("expected decryption with the wrong identity to fail")
	}
}

func TestSeal_MultipleRecipients(t *testing.T) {
	machine := generateKeypair(t)
	escrow := generateKeypair(t)
	masterKey := generateMasterKey(t)

	sealedKey, err := SealMasterKey(masterKey, []string{machine.PublicKey, escrow.PublicKey})
	if err != nil {
		t.Fatalf("SealMasterKey() error: %v", err)
	}
	for name, identity := range map[string]*secret.Buffer{"machine": machine.PrivateKey, "escrow": escrow.PrivateKey} {
		unsealed, err := UnsealMasterKey(sealedKey, identity)
		if err != nil {
			t.Fatalf("%s: UnsealMasterKey() error: %v", name, err)
		}
		if !unsealed.Equal(masterKey) {
			t.Errorf("%s: unsealed key differs", name)
		}
		unsealed.Close()
	}
}

func TestSeal_Errors(t *testing.T) {
	if _, err := Seal([]byte("x"), nil); err == nil {
		t.Error("expected error with no recipients")
	}
	if _, err := Seal([]byte("x"), []string{"age1notakey"}); err == nil {
		t.Error("expected error with an invalid recipient")
	}

	short, err := secret.New(16)
	if err != nil {
		t.Fatalf("secret.New: %v", err)
	}
	defer short.Close()
	keypair := generateKeypair(t)
	if _, err := SealMasterKey(short, []string{keypair.PublicKey}); err == nil {
		t.Error("expected error sealing a 16-byte master key")
	}
}

func TestUnsealMasterKey_RejectsWrongLength(t *testing.T) {
	keypair := generateKeypair(t)
	sealedPayload, err := Seal([]byte("abcd"), []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("Seal() error: %v", err)
	}
	if _, err := UnsealMasterKey(sealedPayload, keypair.PrivateKey); err == nil {
		t.Fatal("expected a 2-byte payload to be rejected as a master key")
	}
}

func TestLoadMasterKey(t *testing.T) {
	directory := t.TempDir()
	keypair := generateKeypair(t)
	masterKey := generateMasterKey(t)

	sealedKey, err := SealMasterKey(masterKey, []string{keypair.PublicKey})
	if err != nil {
		t.Fatalf("SealMasterKey() error: %v", err)
	}
	sealedPath := filepath.Join(directory, "master.age")
	identityPath := filepath.Join(directory, "identity.txt")
	if err := os.WriteFile(sealedPath, sealedKey, 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(identityPath, []byte(keypair.PrivateKey.String()+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	loaded, err := LoadMasterKey(sealedPath, identityPath)
	if err != nil {
		t.Fatalf("LoadMasterKey() error: %v", err)
	}
	defer loaded.Close()
	if !loaded.Equal(masterKey) {
		t.Error("loaded master key differs")
	}

	if _, err := LoadMasterKey(filepath.Join(directory, "missing.age"), identityPath); err == nil {
		t.Error("expected error for a missing sealed file")
	}
}
