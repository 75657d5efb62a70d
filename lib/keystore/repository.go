// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package keystore

import (
	"context"

	"github.com/bureau-foundation/custody/lib/custody"
)

// Record is one row of the encrypted_secrets collection.
type Record struct {
	TokenID custody.TokenID
	IV      []byte
	Sealed  []byte
}

// Repository persists encrypted secret records. Implementations
// translate their native errors into the custody taxonomy:
//
//   - Insert returns custody.ErrConflict if a record exists for the
//     token. Concurrent inserts for one token must not both succeed; a
//     uniqueness constraint on the token id is the usual mechanism.
//   - Load returns custody.ErrNotFound if no record exists.
//   - Delete of a missing record is not an error.
//   - Storage failures wrap custody.ErrUnavailable.
type Repository interface {
	Insert(ctx context.Context, record Record) error
	Replace(ctx context.Context, record Record) error
	Load(ctx context.Context, tokenID custody.TokenID) (Record, error)
	Delete(ctx context.Context, tokenID custody.TokenID) error
	ListTokens(ctx context.Context) ([]custody.TokenID, error)
}
