// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflow composes the custody components into the three
// multi-step flows that touch the ledger:
//
//   - [Creation] resolves the route, generates the secret, submits the
//     create call with the commitment, waits for the receipt, and only
//     then persists the secret under the token id the ledger assigned.
//   - [Verification] reveals the stored secret for a shipment awaiting
//     verification, checks it and the custodian's scanned secret
//     against the on-chain commitment, and optionally submits the
//     verification transition.
//   - [Retention] applies the configured secret retention policy,
//     destroying secrets of shipments that reached a terminal state
//     when the policy says so.
//
// None of the flows retry. Errors matching custody.ErrUnavailable are
// safe for the caller to retry; everything else is final.
package workflow

import (
	"context"

	"github.com/bureau-foundation/custody/lib/commitment"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/routing"
	"github.com/bureau-foundation/custody/lib/secret"
)

// PathResolver resolves a planned route. *routing.Resolver implements
// it.
type PathResolver interface {
	ResolvePath(ctx context.Context, originID, destinationID string) (routing.Path, error)
}

// Secrets is the secret lifecycle. *commitment.Manager implements it.
type Secrets interface {
	Generate() (*secret.Buffer, commitment.Commitment, error)
	Persist(ctx context.Context, tokenID custody.TokenID, plaintext *secret.Buffer) error
	Verify(ctx context.Context, tokenID custody.TokenID, onChain commitment.Commitment) (bool, error)
	Destroy(ctx context.Context, tokenID custody.TokenID) error
}
