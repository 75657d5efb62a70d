// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bureau-foundation/custody/lib/commitment"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/ledger"
	"github.com/bureau-foundation/custody/lib/secret"
)

// Mismatch explains why a verification failed.
type Mismatch string

const (
	// MismatchNone means the check passed.
	MismatchNone Mismatch = ""

	// MismatchClaimed means the scanned secret does not hash to the
	// on-chain commitment: wrong package or a forged label.
	MismatchClaimed Mismatch = "claimed-secret"

	// MismatchStored means the stored secret authenticated but does
	// not hash to the on-chain commitment: the record belongs to a
	// different shipment creation.
	MismatchStored Mismatch = "stored-secret"
)

// Outcome is the result of a verification.
type Outcome struct {
	TokenID  custody.TokenID
	Matched  bool
	Mismatch Mismatch

	// Status is the shipment status after the flow: re-read from the
	// ledger after a submitted transition was confirmed.
	Status ledger.Status

	// TxHash is set when a verification transition was submitted.
	TxHash *common.Hash
}

// Verification runs the custodian verification flow.
type Verification struct {
	secrets Secrets
	reader  ledger.Reader
	writer  ledger.Writer
	logger  *slog.Logger
}

// NewVerification constructs a Verification. writer may be nil when
// only Check is used.
func NewVerification(secrets Secrets, reader ledger.Reader, writer ledger.Writer, logger *slog.Logger) *Verification {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Verification{secrets: secrets, reader: reader, writer: writer, logger: logger}
}

// Check compares the claimed secret and the stored secret with the
// on-chain commitment. The shipment must be awaiting verification.
// A missing stored secret is custody.ErrNotFound and a corrupt one
// custody.ErrIntegrity; neither is reported as a mismatch.
func (v *Verification) Check(ctx context.Context, tokenID custody.TokenID, claimed *secret.Buffer) (Outcome, error) {
	details, err := v.reader.ShipmentDetails(ctx, tokenID)
	if err != nil {
		return Outcome{}, fmt.Errorf("verifying shipment %s: %w", tokenID, err)
	}
	outcome := Outcome{TokenID: tokenID, Status: details.Status}
	if details.Status != ledger.StatusAwaitingVerification {
		return outcome, fmt.Errorf("verifying shipment %s: status is %s: %w", tokenID, details.Status, custody.ErrPrecondition)
	}

	storedMatches, err := v.secrets.Verify(ctx, tokenID, details.KeyHash)
	if err != nil {
		return outcome, fmt.Errorf("verifying shipment %s: %w", tokenID, err)
	}

	claimedMatches := commitment.Hash(claimed.Bytes()).Equal(details.KeyHash)

	switch {
	case !storedMatches:
		outcome.Mismatch = MismatchStored
		v.logger.Error("stored secret does not match on-chain commitment", "token_id", tokenID.String())
	case !claimedMatches:
		outcome.Mismatch = MismatchClaimed
		v.logger.Warn("claimed secret rejected", "token_id", tokenID.String())
	default:
		outcome.Matched = true
	}
	return outcome, nil
}

// Submit runs Check and, on a match, submits the verification
// transition with the claimed secret's hash as proof, waits for it,
// and re-reads the shipment status.
func (v *Verification) Submit(ctx context.Context, tokenID custody.TokenID, claimed *secret.Buffer) (Outcome, error) {
	if v.writer == nil {
		return Outcome{}, fmt.Errorf("verification has no ledger writer: %w", custody.ErrPrecondition)
	}
	outcome, err := v.Check(ctx, tokenID, claimed)
	if err != nil || !outcome.Matched {
		return outcome, err
	}

	transaction, err := v.writer.RequestVerification(ctx, tokenID, commitment.Hash(claimed.Bytes()))
	if err != nil {
		return outcome, fmt.Errorf("submitting verification for %s: %w", tokenID, err)
	}
	hash := transaction.Hash()
	outcome.TxHash = &hash

	if _, err := transaction.Wait(ctx); err != nil {
		return outcome, fmt.Errorf("waiting for verification %s: %w", hash.Hex(), err)
	}

	details, err := v.reader.ShipmentDetails(ctx, tokenID)
	if err != nil {
		return outcome, fmt.Errorf("re-reading shipment %s after verification: %w", tokenID, err)
	}
	outcome.Status = details.Status
	v.logger.Info("custody verified", "token_id", tokenID.String(), "tx", hash.Hex(), "status", details.Status.String())
	return outcome, nil
}
