// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger describes the external custody contract as the
// custody subsystem sees it: a read surface for shipment state, an
// asynchronous write surface that returns transaction handles, and a
// stream of custody-received events.
//
// The contract is authoritative. Nothing in this package caches or
// infers state; callers re-read after every confirmed write. A
// submitted [Transaction] is not an applied one until [Transaction.Wait]
// returns a successful [Receipt].
//
// Package ledger/evm implements these interfaces against an
// EVM-compatible JSON-RPC endpoint. Package ledgertest provides an
// in-memory contract for tests.
package ledger

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bureau-foundation/custody/lib/commitment"
	"github.com/bureau-foundation/custody/lib/custody"
)

// ErrReverted is returned by Transaction.Wait when the transaction was
// mined but the contract rejected it.
var ErrReverted = errors.New("transaction reverted")

// ShipmentDetails is the contract's per-shipment record.
type ShipmentDetails struct {
	Shipper      custody.Address
	Recipient    custody.Address
	Status       Status
	CargoDetails string

	// PaymentAmount is in the chain's smallest native unit.
	PaymentAmount *big.Int

	// PlannedRoute is the full custody chain: shipper, each route
	// node, then recipient.
	PlannedRoute []custody.Address

	// CurrentRouteIndex is the position in PlannedRoute of the
	// current custodian.
	CurrentRouteIndex uint64

	// PendingCustodian is the next custodian during a handover, or
	// the zero address.
	PendingCustodian custody.Address

	// KeyHash is the commitment to the shipment secret.
	KeyHash commitment.Commitment
}

// Shipment pairs a token's details with its current owner.
type Shipment struct {
	TokenID custody.TokenID
	Details ShipmentDetails
	Owner   custody.Address
}

// Reader reads shipment state. Unknown tokens are custody.ErrNotFound;
// transport failures wrap custody.ErrUnavailable.
type Reader interface {
	ShipmentDetails(ctx context.Context, tokenID custody.TokenID) (ShipmentDetails, error)
	OwnerOf(ctx context.Context, tokenID custody.TokenID) (custody.Address, error)
}

// ReadShipment fetches details and owner together.
func ReadShipment(ctx context.Context, reader Reader, tokenID custody.TokenID) (Shipment, error) {
	details, err := reader.ShipmentDetails(ctx, tokenID)
	if err != nil {
		return Shipment{}, err
	}
	owner, err := reader.OwnerOf(ctx, tokenID)
	if err != nil {
		return Shipment{}, err
	}
	return Shipment{TokenID: tokenID, Details: details, Owner: owner}, nil
}

// CreateRequest is the payload of a CreateShipment call.
type CreateRequest struct {
	Recipient     custody.Address
	CargoDetails  string
	PlannedRoute  []custody.Address
	PaymentAmount *big.Int
	KeyHash       commitment.Commitment
}

// Writer submits state transitions. Each call returns once the
// transaction is accepted for inclusion; it has not been applied.
type Writer interface {
	CreateShipment(ctx context.Context, request CreateRequest) (Transaction, error)
	InitiateHandover(ctx context.Context, tokenID custody.TokenID) (Transaction, error)
	RequestVerification(ctx context.Context, tokenID custody.TokenID, proof commitment.Commitment) (Transaction, error)
	FinalizeAndPay(ctx context.Context, tokenID custody.TokenID) (Transaction, error)
	DisputeShipment(ctx context.Context, tokenID custody.TokenID, reason string) (Transaction, error)
}

// Transaction is a handle to a submitted write.
type Transaction interface {
	Hash() common.Hash

	// Wait blocks until the transaction is mined and returns its
	// receipt. A mined-but-reverted transaction returns the receipt
	// and an error wrapping ErrReverted.
	Wait(ctx context.Context) (Receipt, error)
}

// Receipt is the outcome of a mined transaction.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64

	// TokenID is set for CreateShipment receipts, from the
	// creation event. Unassigned for other calls.
	TokenID custody.TokenID
}

// Event reports that a custodian verified and received a shipment.
type Event struct {
	TokenID     custody.TokenID
	TxHash      common.Hash
	BlockNumber uint64
}

// EventSource delivers custody-received events.
type EventSource interface {
	// Subscribe returns a channel of events for tokenID, or for every
	// token when tokenID is unassigned. The channel is closed when
	// ctx is cancelled or the source fails permanently.
	Subscribe(ctx context.Context, tokenID custody.TokenID) (<-chan Event, error)
}
