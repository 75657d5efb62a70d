// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bureau-foundation/custody/lib/commitment"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/ledger"
	"github.com/bureau-foundation/custody/lib/routing"
)

// CreateRequest describes a new shipment.
type CreateRequest struct {
	OriginID      string
	DestinationID string

	// Shipper is the account signing the create call. It heads the
	// on-chain route.
	Shipper   custody.Address
	Recipient custody.Address

	CargoDetails  string
	PaymentAmount *big.Int
}

// CreateResult is what the shipper needs after creation: the token id
// to track, and the secret to print on the package label.
type CreateResult struct {
	TokenID    custody.TokenID
	TxHash     common.Hash
	Path       routing.Path
	Commitment commitment.Commitment

	// Secret is the hex label secret. It is returned even when
	// creation fails after submission, so the label can still be
	// printed and the secret stored by hand once the token id is
	// known.
	Secret string
}

// Creation runs the shipment creation flow.
type Creation struct {
	resolver PathResolver
	secrets  Secrets
	writer   ledger.Writer
	logger   *slog.Logger
}

// NewCreation constructs a Creation. A nil logger discards.
func NewCreation(resolver PathResolver, secrets Secrets, writer ledger.Writer, logger *slog.Logger) *Creation {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Creation{resolver: resolver, secrets: secrets, writer: writer, logger: logger}
}

// Create resolves the route, commits to a fresh secret on the ledger,
// and persists the secret once the ledger has assigned a token id.
// The secret is never persisted before the receipt confirms the
// token id.
func (c *Creation) Create(ctx context.Context, request CreateRequest) (CreateResult, error) {
	if request.Shipper == (custody.Address{}) || request.Recipient == (custody.Address{}) {
		return CreateResult{}, fmt.Errorf("creating shipment: shipper and recipient addresses are required")
	}
	if request.PaymentAmount != nil && request.PaymentAmount.Sign() < 0 {
		return CreateResult{}, fmt.Errorf("creating shipment: payment amount is negative")
	}

	path, err := c.resolver.ResolvePath(ctx, request.OriginID, request.DestinationID)
	if err != nil {
		return CreateResult{}, fmt.Errorf("creating shipment: %w", err)
	}

	plaintext, keyHash, err := c.secrets.Generate()
	if err != nil {
		return CreateResult{}, fmt.Errorf("creating shipment: %w", err)
	}
	defer plaintext.Close()

	result := CreateResult{Path: path, Commitment: keyHash}
	transaction, err := c.writer.CreateShipment(ctx, ledger.CreateRequest{
		Recipient:     request.Recipient,
		CargoDetails:  request.CargoDetails,
		PlannedRoute:  routing.OnChainRoute(request.Shipper, path, request.Recipient),
		PaymentAmount: request.PaymentAmount,
		KeyHash:       keyHash,
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("creating shipment: %w", err)
	}
	result.TxHash = transaction.Hash()
	result.Secret = commitment.FormatSecret(plaintext)

	c.logger.Info("shipment creation submitted",
		"tx", result.TxHash.Hex(),
		"route_id", path.Route.ID,
		"fingerprint", path.Fingerprint.String(),
	)

	receipt, err := transaction.Wait(ctx)
	if err != nil {
		return result, fmt.Errorf("waiting for creation %s: %w", result.TxHash.Hex(), err)
	}
	if !receipt.TokenID.Assigned() {
		return result, fmt.Errorf("creation %s confirmed without a token id: %w", result.TxHash.Hex(), custody.ErrPrecondition)
	}
	result.TokenID = receipt.TokenID

	if err := c.secrets.Persist(ctx, receipt.TokenID, plaintext); err != nil {
		return result, fmt.Errorf("shipment %s created but its secret was not stored: %w", receipt.TokenID, err)
	}

	c.logger.Info("shipment created",
		"token_id", receipt.TokenID.String(),
		"tx", result.TxHash.Hex(),
		"block", receipt.BlockNumber,
	)
	return result, nil
}
