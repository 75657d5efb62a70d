// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledgertest provides an in-memory custody contract for tests.
// It enforces the same caller and status rules the deployed contract
// does, mines every transaction immediately, and emits custody-received
// events to subscribers when a verification succeeds.
package ledgertest

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bureau-foundation/custody/lib/commitment"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/ledger"
)

// Contract is an in-memory custody contract. Safe for concurrent use.
type Contract struct {
	mu          sync.Mutex
	caller      custody.Address
	nextTokenID uint64
	block       uint64
	shipments   map[uint64]*ledger.Shipment
	subscribers []subscriber

	// readErr, when set, is returned by every read.
	readErr error
}

type subscriber struct {
	tokenID custody.TokenID
	events  chan ledger.Event
	ctx     context.Context
}

// New returns an empty contract. Token ids start at 1.
func New() *Contract {
	return &Contract{nextTokenID: 1, shipments: make(map[uint64]*ledger.Shipment)}
}

// SetCaller sets the account that signs subsequent writes.
func (c *Contract) SetCaller(caller custody.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caller = caller
}

// SetStatus forces a shipment's status, standing in for transitions
// made by parties outside the test (oracles, carriers).
func (c *Contract) SetStatus(tokenID custody.TokenID, status ledger.Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if shipment, ok := c.shipments[tokenID.Uint64()]; ok {
		shipment.Details.Status = status
	}
}

// Put installs a shipment directly.
func (c *Contract) Put(shipment ledger.Shipment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := shipment
	copied.Details.PlannedRoute = slices.Clone(shipment.Details.PlannedRoute)
	c.shipments[shipment.TokenID.Uint64()] = &copied
	if shipment.TokenID.Uint64() >= c.nextTokenID {
		c.nextTokenID = shipment.TokenID.Uint64() + 1
	}
}

// FailReads makes every subsequent read return err. Nil restores
// normal behavior.
func (c *Contract) FailReads(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// Emit delivers a custody-received event for tokenID to subscribers.
func (c *Contract) Emit(tokenID custody.TokenID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.block++
	c.emitLocked(ledger.Event{TokenID: tokenID, BlockNumber: c.block})
}

func (c *Contract) ShipmentDetails(_ context.Context, tokenID custody.TokenID) (ledger.ShipmentDetails, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return ledger.ShipmentDetails{}, custody.Unavailable("reading shipment details", c.readErr)
	}
	shipment, ok := c.shipments[tokenID.Uint64()]
	if !ok || !tokenID.Assigned() {
		return ledger.ShipmentDetails{}, fmt.Errorf("shipment %s: %w", tokenID, custody.ErrNotFound)
	}
	details := shipment.Details
	details.PlannedRoute = slices.Clone(details.PlannedRoute)
	return details, nil
}

func (c *Contract) OwnerOf(_ context.Context, tokenID custody.TokenID) (custody.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return custody.Address{}, custody.Unavailable("reading owner", c.readErr)
	}
	shipment, ok := c.shipments[tokenID.Uint64()]
	if !ok || !tokenID.Assigned() {
		return custody.Address{}, fmt.Errorf("shipment %s: %w", tokenID, custody.ErrNotFound)
	}
	return shipment.Owner, nil
}

func (c *Contract) CreateShipment(_ context.Context, request ledger.CreateRequest) (ledger.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(request.PlannedRoute) < 2 {
		return c.revertLocked("route must include shipper and recipient"), nil
	}
	tokenID := custody.NewTokenID(c.nextTokenID)
	c.nextTokenID++
	amount := new(big.Int)
	if request.PaymentAmount != nil {
		amount.Set(request.PaymentAmount)
	}
	c.shipments[tokenID.Uint64()] = &ledger.Shipment{
		TokenID: tokenID,
		Owner:   c.caller,
		Details: ledger.ShipmentDetails{
			Shipper:       c.caller,
			Recipient:     request.Recipient,
			Status:        ledger.StatusCreated,
			CargoDetails:  request.CargoDetails,
			PaymentAmount: amount,
			PlannedRoute:  slices.Clone(request.PlannedRoute),
			KeyHash:       request.KeyHash,
		},
	}
	return c.mineLocked(tokenID), nil
}

func (c *Contract) InitiateHandover(_ context.Context, tokenID custody.TokenID) (ledger.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	shipment, ok := c.shipments[tokenID.Uint64()]
	switch {
	case !ok:
		return c.revertLocked("unknown shipment"), nil
	case shipment.Owner != c.caller:
		return c.revertLocked("caller is not the owner"), nil
	case shipment.Details.Status != ledger.StatusCreated:
		return c.revertLocked("shipment is not awaiting handover"), nil
	case shipment.Details.CurrentRouteIndex+1 >= uint64(len(shipment.Details.PlannedRoute)):
		return c.revertLocked("route is complete"), nil
	}
	shipment.Details.PendingCustodian = shipment.Details.PlannedRoute[shipment.Details.CurrentRouteIndex+1]
	shipment.Details.Status = ledger.StatusInTransit
	return c.mineLocked(custody.TokenID{}), nil
}

func (c *Contract) RequestVerification(_ context.Context, tokenID custody.TokenID, proof commitment.Commitment) (ledger.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	shipment, ok := c.shipments[tokenID.Uint64()]
	switch {
	case !ok:
		return c.revertLocked("unknown shipment"), nil
	case shipment.Details.PendingCustodian != c.caller:
		return c.revertLocked("caller is not the pending custodian"), nil
	case shipment.Details.Status != ledger.StatusAwaitingVerification:
		return c.revertLocked("shipment is not awaiting verification"), nil
	case !proof.Equal(shipment.Details.KeyHash):
		return c.revertLocked("proof does not match key hash"), nil
	}

	details := &shipment.Details
	details.CurrentRouteIndex++
	shipment.Owner = details.PendingCustodian
	details.PendingCustodian = custody.Address{}
	if details.CurrentRouteIndex == uint64(len(details.PlannedRoute)-1) {
		details.Status = ledger.StatusDelivered
	} else {
		details.Status = ledger.StatusCreated
	}

	transaction := c.mineLocked(custody.TokenID{})
	c.emitLocked(ledger.Event{TokenID: tokenID, TxHash: transaction.hash, BlockNumber: c.block})
	return transaction, nil
}

func (c *Contract) FinalizeAndPay(_ context.Context, tokenID custody.TokenID) (ledger.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	shipment, ok := c.shipments[tokenID.Uint64()]
	switch {
	case !ok:
		return c.revertLocked("unknown shipment"), nil
	case shipment.Details.Shipper != c.caller:
		return c.revertLocked("caller is not the shipper"), nil
	case shipment.Details.Status != ledger.StatusDelivered:
		return c.revertLocked("shipment is not delivered"), nil
	}
	shipment.Details.Status = ledger.StatusCompleted
	return c.mineLocked(custody.TokenID{}), nil
}

func (c *Contract) DisputeShipment(_ context.Context, tokenID custody.TokenID, reason string) (ledger.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	shipment, ok := c.shipments[tokenID.Uint64()]
	switch {
	case !ok:
		return c.revertLocked("unknown shipment"), nil
	case shipment.Details.Shipper != c.caller && shipment.Details.Recipient != c.caller:
		return c.revertLocked("caller is neither shipper nor recipient"), nil
	case shipment.Details.Status == ledger.StatusCompleted || shipment.Details.Status == ledger.StatusDisputed:
		return c.revertLocked("shipment can no longer be disputed"), nil
	case reason == "":
		return c.revertLocked("dispute reason is required"), nil
	}
	shipment.Details.Status = ledger.StatusDisputed
	return c.mineLocked(custody.TokenID{}), nil
}

func (c *Contract) Subscribe(ctx context.Context, tokenID custody.TokenID) (<-chan ledger.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	events := make(chan ledger.Event, 64)
	c.subscribers = append(c.subscribers, subscriber{tokenID: tokenID, events: events, ctx: ctx})
	go func() {
		<-ctx.Done()
		c.mu.Lock()
		defer c.mu.Unlock()
		c.subscribers = slices.DeleteFunc(c.subscribers, func(s subscriber) bool { return s.events == events })
		close(events)
	}()
	return events, nil
}

func (c *Contract) emitLocked(event ledger.Event) {
	for _, sub := range c.subscribers {
		if sub.ctx.Err() != nil {
			continue
		}
		if sub.tokenID.Assigned() && sub.tokenID != event.TokenID {
			continue
		}
		select {
		case sub.events <- event:
		default:
		}
	}
}

func (c *Contract) mineLocked(created custody.TokenID) *Transaction {
	c.block++
	transaction := &Transaction{hash: c.hashLocked()}
	transaction.receipt = ledger.Receipt{TxHash: transaction.hash, BlockNumber: c.block, TokenID: created}
	return transaction
}

func (c *Contract) revertLocked(reason string) *Transaction {
	c.block++
	transaction := &Transaction{hash: c.hashLocked()}
	transaction.receipt = ledger.Receipt{TxHash: transaction.hash, BlockNumber: c.block}
	transaction.err = fmt.Errorf("%w: %s", ledger.ErrReverted, reason)
	return transaction
}

func (c *Contract) hashLocked() common.Hash {
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], c.block)
	return common.Hash(sha256.Sum256(seed[:]))
}

// Transaction is an already-mined transaction.
type Transaction struct {
	hash    common.Hash
	receipt ledger.Receipt
	err     error
}

func (t *Transaction) Hash() common.Hash { return t.hash }

func (t *Transaction) Wait(ctx context.Context) (ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return ledger.Receipt{}, err
	}
	return t.receipt, t.err
}
