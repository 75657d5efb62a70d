// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore_test

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"sync"
	"testing"

	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/keystore"
	"github.com/bureau-foundation/custody/lib/secret"
	"github.com/bureau-foundation/custody/lib/store/memstore"
)

const testMasterKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestStore(t *testing.T) (*keystore.Store, *memstore.Store) {
	t.Helper()
	masterKey, err := secret.ParseHex(testMasterKeyHex, keystore.KeySize)
	if err != nil {
		t.Fatalf("ParseHex: %v", err)
	}
	repository := memstore.New()
	store, err := keystore.New(keystore.Config{MasterKey: masterKey, Repository: repository})
	if err != nil {
		t.Fatalf("keystore.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, repository
}

func mustGet(t *testing.T, store *keystore.Store, tokenID custody.TokenID) []byte {
	t.Helper()
	buffer, found, err := store.Get(context.Background(), tokenID)
	if err != nil {
		t.Fatalf("Get(%s): %v", tokenID, err)
	}
	if !found {
		t.Fatalf("Get(%s): not found", tokenID)
	}
	defer buffer.Close()
	return bytes.Clone(buffer.Bytes())
}

func TestPutGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, plaintext := range [][]byte{
		[]byte("x"),
		bytes.Repeat([]byte{0xAB}, 32),
		bytes.Repeat([]byte("label"), 400),
	} {
		tokenID := custody.NewTokenID(uint64(len(plaintext)))
		if err := store.Put(ctx, tokenID, bytes.Clone(plaintext)); err != nil {
			t.Fatalf("Put(%s): %v", tokenID, err)
		}
		if got := mustGet(t, store, tokenID); !bytes.Equal(got, plaintext) {
			t.Errorf("token %s: round trip mismatch (%d bytes vs %d)", tokenID, len(got), len(plaintext))
		}
	}
}

func TestTokenZeroIsAValidAssignedID(t *testing.T) {
	store, _ := newTestStore(t)
	tokenID := custody.NewTokenID(0)
	if err := store.Put(context.Background(), tokenID, []byte("zero")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := mustGet(t, store, tokenID); string(got) != "zero" {
		t.Errorf("got %q", got)
	}
}

func TestGetWithoutPutReturnsNone(t *testing.T) {
	store, _ := newTestStore(t)
	buffer, found, err := store.Get(context.Background(), custody.NewTokenID(404))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found || buffer != nil {
		t.Fatal("Get of a missing record reported found")
	}
}

func TestTamperedRecordFailsIntegrity(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*keystore.Record)
	}{
		{"ciphertext bit", func(record *keystore.Record) { record.Sealed[0] ^= 0x01 }},
		{"tag bit", func(record *keystore.Record) { record.Sealed[len(record.Sealed)-1] ^= 0x80 }},
		{"iv bit", func(record *keystore.Record) { record.IV[5] ^= 0x10 }},
		{"truncated iv", func(record *keystore.Record) { record.IV = record.IV[:8] }},
		{"truncated below tag", func(record *keystore.Record) { record.Sealed = record.Sealed[:keystore.TagSize-1] }},
		{"tag stripped", func(record *keystore.Record) { record.Sealed = record.Sealed[:len(record.Sealed)-keystore.TagSize] }},
	}
	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			store, repository := newTestStore(t)
			ctx := context.Background()
			tokenID := custody.NewTokenID(7)
			if err := store.Put(ctx, tokenID, []byte("a secret that is long enough")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			repository.Tamper(tokenID, test.mutate)

			buffer, found, err := store.Get(ctx, tokenID)
			if !errors.Is(err, custody.ErrIntegrity) {
				t.Fatalf("Get error = %v, want ErrIntegrity", err)
			}
			if found || buffer != nil {
				t.Fatal("tampered record returned plaintext")
			}
		})
	}
}

func TestRecordMovedToAnotherTokenFailsIntegrity(t *testing.T) {
	store, repository := newTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, custody.NewTokenID(1), []byte("secret one")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	record, err := repository.Load(ctx, custody.NewTokenID(1))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	record.TokenID = custody.NewTokenID(2)
	if err := repository.Insert(ctx, record); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if _, _, err := store.Get(ctx, custody.NewTokenID(2)); !errors.Is(err, custody.ErrIntegrity) {
		t.Fatalf("Get of a transplanted record: %v, want ErrIntegrity", err)
	}
}

func TestRecordSealedWithoutAssociatedDataFailsIntegrity(t *testing.T) {
	store, repository := newTestStore(t)
	ctx := context.Background()

	key, err := hex.DecodeString(testMasterKeyHex)
	if err != nil {
		t.Fatalf("DecodeString: %v", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		t.Fatalf("NewGCM: %v", err)
	}
	iv := bytes.Repeat([]byte{0x42}, keystore.IVSize)
	tokenID := custody.NewTokenID(11)
	record := keystore.Record{TokenID: tokenID, IV: iv, Sealed: aead.Seal(nil, iv, []byte("a bare secret"), nil)}
	if err := repository.Insert(ctx, record); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	buffer, found, err := store.Get(ctx, tokenID)
	if !errors.Is(err, custody.ErrIntegrity) {
		t.Fatalf("Get of a record without associated data: %v, want ErrIntegrity", err)
	}
	if found || buffer != nil {
		t.Fatal("record without associated data returned plaintext")
	}

	if err := store.Replace(ctx, tokenID, []byte("a bare secret")); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if got := mustGet(t, store, tokenID); string(got) != "a bare secret" {
		t.Errorf("after Replace, Get = %q", got)
	}
}

func TestIVsAreDistinct(t *testing.T) {
	store, repository := newTestStore(t)
	ctx := context.Background()
	const count = 10000

	seen := make(map[string]uint64, count)
	for index := uint64(0); index < count; index++ {
		tokenID := custody.NewTokenID(index)
		if err := store.Put(ctx, tokenID, []byte("same plaintext")); err != nil {
			t.Fatalf("Put(%d): %v", index, err)
		}
		record, err := repository.Load(ctx, tokenID)
		if err != nil {
			t.Fatalf("Load(%d): %v", index, err)
		}
		if len(record.IV) != keystore.IVSize {
			t.Fatalf("IV length %d, want %d", len(record.IV), keystore.IVSize)
		}
		if previous, duplicate := seen[string(record.IV)]; duplicate {
			t.Fatalf("token %d reused the IV of token %d", index, previous)
		}
		seen[string(record.IV)] = index
	}
}

func TestDuplicatePutConflictsAndKeepsFirst(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	tokenID := custody.NewTokenID(42)

	if err := store.Put(ctx, tokenID, []byte("first")); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := store.Put(ctx, tokenID, []byte("second")); !errors.Is(err, custody.ErrConflict) {
		t.Fatalf("second Put: %v, want ErrConflict", err)
	}
	if got := mustGet(t, store, tokenID); string(got) != "first" {
		t.Errorf("stored value = %q, want first", got)
	}
}

func TestReplaceOverwritesWithFreshIV(t *testing.T) {
	store, repository := newTestStore(t)
	ctx := context.Background()
	tokenID := custody.NewTokenID(42)

	if err := store.Put(ctx, tokenID, []byte("first")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	before, _ := repository.Load(ctx, tokenID)
	if err := store.Replace(ctx, tokenID, []byte("second")); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	after, _ := repository.Load(ctx, tokenID)
	if bytes.Equal(before.IV, after.IV) {
		t.Error("Replace reused the previous IV")
	}
	if got := mustGet(t, store, tokenID); string(got) != "second" {
		t.Errorf("stored value = %q, want second", got)
	}
}

func TestConcurrentPutSameTokenExactlyOneWins(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	tokenID := custody.NewTokenID(9)
	const writers = 16

	var wait sync.WaitGroup
	results := make(chan error, writers)
	for writer := 0; writer < writers; writer++ {
		wait.Add(1)
		go func() {
			defer wait.Done()
			results <- store.Put(ctx, tokenID, []byte{byte(writer + 1)})
		}()
	}
	wait.Wait()
	close(results)

	successes := 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, custody.ErrConflict):
		default:
			t.Errorf("unexpected Put error: %v", err)
		}
	}
	if successes != 1 {
		t.Fatalf("%d writers succeeded, want exactly 1", successes)
	}
}

func TestEraseIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	tokenID := custody.NewTokenID(3)

	if err := store.Put(ctx, tokenID, []byte("short-lived")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	for attempt := 0; attempt < 2; attempt++ {
		if err := store.Erase(ctx, tokenID); err != nil {
			t.Fatalf("Erase attempt %d: %v", attempt, err)
		}
	}
	if _, found, err := store.Get(ctx, tokenID); err != nil || found {
		t.Fatalf("Get after Erase: found=%v err=%v", found, err)
	}
	if err := store.Erase(ctx, custody.NewTokenID(999)); err != nil {
		t.Fatalf("Erase of a never-stored token: %v", err)
	}
}

func TestUnassignedTokenFailsClosed(t *testing.T) {
	store, repository := newTestStore(t)
	ctx := context.Background()
	var unassigned custody.TokenID

	if err := store.Put(ctx, unassigned, []byte("secret")); !errors.Is(err, custody.ErrPrecondition) {
		t.Errorf("Put: %v, want ErrPrecondition", err)
	}
	if _, _, err := store.Get(ctx, unassigned); !errors.Is(err, custody.ErrPrecondition) {
		t.Errorf("Get: %v, want ErrPrecondition", err)
	}
	if err := store.Erase(ctx, unassigned); !errors.Is(err, custody.ErrPrecondition) {
		t.Errorf("Erase: %v, want ErrPrecondition", err)
	}
	if tokens, _ := repository.ListTokens(ctx); len(tokens) != 0 {
		t.Errorf("repository holds %d records after rejected writes", len(tokens))
	}
}

func TestNewRejectsBadMasterKey(t *testing.T) {
	short, err := secret.ParseHex("00112233", 4)
	if err != nil {
		t.Fatalf("ParseHex: %v", err)
	}
	defer short.Close()
	if _, err := keystore.New(keystore.Config{MasterKey: short, Repository: memstore.New()}); err == nil {
		t.Fatal("New accepted a 4-byte master key")
	}
	if _, err := keystore.New(keystore.Config{Repository: memstore.New()}); err == nil {
		t.Fatal("New accepted a nil master key")
	}
}

func TestTokensListsStoredRecords(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	for _, id := range []uint64{5, 1, 3} {
		if err := store.Put(ctx, custody.NewTokenID(id), []byte("s")); err != nil {
			t.Fatalf("Put(%d): %v", id, err)
		}
	}
	tokens, err := store.Tokens(ctx)
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	if len(tokens) != 3 || tokens[0].Uint64() != 1 || tokens[2].Uint64() != 5 {
		t.Errorf("Tokens = %v", tokens)
	}
}
