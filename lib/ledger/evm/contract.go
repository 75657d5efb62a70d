// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package evm implements the ledger interfaces against the custody
// contracts on an EVM-compatible chain over JSON-RPC.
//
// Two contracts are involved: the shipment collection (an ERC-721 whose
// tokens are shipments, holding per-shipment state) and the factory
// that mints into it. Reads and custody transitions go to the
// collection; creation goes through the factory, which escrows the
// payment sent as the transaction value.
package evm

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/commitment"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/ledger"
)

var (
	//go:embed abi/shipment.json
	shipmentABIJSON string

	//go:embed abi/factory.json
	factoryABIJSON string

	shipmentABI = mustParseABI(shipmentABIJSON)
	factoryABI  = mustParseABI(factoryABIJSON)
)

const (
	eventReceived = "ShipmentVerifiedAndReceived"
	eventCreated  = "ShipmentCreated"
)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic("evm: embedded ABI does not parse: " + err.Error())
	}
	return parsed
}

// Backend is the chain access the contract client needs.
// *ethclient.Client implements it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
}

// Config holds the parameters for creating a Contract.
type Config struct {
	Backend Backend

	// Collection is the shipment collection contract address.
	Collection common.Address

	// Factory is the shipment factory address. Required only for
	// CreateShipment.
	Factory common.Address

	// Signer authorizes writes. Nil makes the Contract read-only;
	// write calls fail with custody.ErrPrecondition.
	Signer *bind.TransactOpts

	// Confirmations is the number of blocks, counting the inclusion
	// block, a receipt must be buried under before Wait returns.
	// Zero is treated as one.
	Confirmations uint64

	// Clock paces the confirmation wait. Nil uses the real clock.
	Clock clock.Clock

	// PollInterval is how often Wait checks the chain head while
	// counting confirmations. Zero uses two seconds.
	PollInterval time.Duration

	Logger *slog.Logger
}

// Contract is a ledger.Reader and ledger.Writer backed by the custody
// contracts.
type Contract struct {
	backend    Backend
	collection *bind.BoundContract
	factory    *bind.BoundContract
	address    common.Address
	signer     *bind.TransactOpts

	confirmations uint64
	clock         clock.Clock
	pollInterval  time.Duration
	logger        *slog.Logger
}

// New binds the custody contracts. No network calls are made.
func New(config Config) (*Contract, error) {
	if config.Backend == nil {
		return nil, fmt.Errorf("evm: Backend is required")
	}
	if config.Collection == (common.Address{}) {
		return nil, fmt.Errorf("evm: Collection address is required")
	}
	if config.Confirmations == 0 {
		config.Confirmations = 1
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	contract := &Contract{
		backend:       config.Backend,
		collection:    bind.NewBoundContract(config.Collection, shipmentABI, config.Backend, config.Backend, config.Backend),
		address:       config.Collection,
		signer:        config.Signer,
		confirmations: config.Confirmations,
		clock:         config.Clock,
		pollInterval:  config.PollInterval,
		logger:        logger,
	}
	if config.Factory != (common.Address{}) {
		contract.factory = bind.NewBoundContract(config.Factory, factoryABI, config.Backend, config.Backend, config.Backend)
	}
	return contract, nil
}

// shipmentTuple mirrors the ABI tuple returned by shipmentDetails so
// abi.ConvertType can convert the decoder's anonymous struct.
type shipmentTuple struct {
	Shipper           common.Address
	Recipient         common.Address
	Status            uint8
	CargoDetails      string
	PaymentAmount     *big.Int
	PlannedRoute      []common.Address
	CurrentRouteIndex *big.Int
	PendingCustodian  common.Address
	KeyHash           [32]byte
}

func (c *Contract) ShipmentDetails(ctx context.Context, tokenID custody.TokenID) (ledger.ShipmentDetails, error) {
	if !tokenID.Assigned() {
		return ledger.ShipmentDetails{}, fmt.Errorf("reading shipment: token id %w: not assigned", custody.ErrPrecondition)
	}
	var out []any
	err := c.collection.Call(&bind.CallOpts{Context: ctx}, &out, "shipmentDetails", tokenBig(tokenID))
	if err != nil {
		return ledger.ShipmentDetails{}, classifyCallError("reading shipment "+tokenID.String(), err)
	}
	if len(out) != 1 {
		return ledger.ShipmentDetails{}, fmt.Errorf("shipmentDetails returned %d values, want 1", len(out))
	}
	tuple := *abi.ConvertType(out[0], new(shipmentTuple)).(*shipmentTuple)
	return detailsFromTuple(tokenID, tuple)
}

func detailsFromTuple(tokenID custody.TokenID, tuple shipmentTuple) (ledger.ShipmentDetails, error) {
	// The collection returns a zeroed struct for ids it never minted.
	if tuple.Shipper == (common.Address{}) {
		return ledger.ShipmentDetails{}, fmt.Errorf("shipment %s: %w", tokenID, custody.ErrNotFound)
	}
	status := ledger.Status(tuple.Status)
	if !status.Valid() {
		return ledger.ShipmentDetails{}, fmt.Errorf("shipment %s has undefined status %d", tokenID, tuple.Status)
	}
	if tuple.CurrentRouteIndex == nil || !tuple.CurrentRouteIndex.IsUint64() {
		return ledger.ShipmentDetails{}, fmt.Errorf("shipment %s has an out-of-range route index", tokenID)
	}
	return ledger.ShipmentDetails{
		Shipper:           tuple.Shipper,
		Recipient:         tuple.Recipient,
		Status:            status,
		CargoDetails:      tuple.CargoDetails,
		PaymentAmount:     tuple.PaymentAmount,
		PlannedRoute:      tuple.PlannedRoute,
		CurrentRouteIndex: tuple.CurrentRouteIndex.Uint64(),
		PendingCustodian:  tuple.PendingCustodian,
		KeyHash:           commitment.Commitment(tuple.KeyHash),
	}, nil
}

func (c *Contract) OwnerOf(ctx context.Context, tokenID custody.TokenID) (custody.Address, error) {
	if !tokenID.Assigned() {
		return custody.Address{}, fmt.Errorf("reading owner: token id %w: not assigned", custody.ErrPrecondition)
	}
	var out []any
	if err := c.collection.Call(&bind.CallOpts{Context: ctx}, &out, "ownerOf", tokenBig(tokenID)); err != nil {
		return custody.Address{}, classifyCallError("reading owner of "+tokenID.String(), err)
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

func (c *Contract) CreateShipment(ctx context.Context, request ledger.CreateRequest) (ledger.Transaction, error) {
	if c.factory == nil {
		return nil, fmt.Errorf("creating shipment: no factory address configured: %w", custody.ErrPrecondition)
	}
	amount := request.PaymentAmount
	if amount == nil {
		amount = new(big.Int)
	}
	opts, err := c.transactOpts(ctx, amount)
	if err != nil {
		return nil, err
	}
	tx, err := c.factory.Transact(opts, "createShipment",
		c.address, request.Recipient, request.CargoDetails, request.PlannedRoute, amount, [32]byte(request.KeyHash))
	if err != nil {
		return nil, classifyWriteError("submitting createShipment", err)
	}
	c.logger.Info("shipment creation submitted", "tx", tx.Hash().Hex(), "hops", len(request.PlannedRoute))
	return c.track(tx, c.createdTokenID), nil
}

func (c *Contract) InitiateHandover(ctx context.Context, tokenID custody.TokenID) (ledger.Transaction, error) {
	return c.transact(ctx, tokenID, "initiateHandover")
}

func (c *Contract) RequestVerification(ctx context.Context, tokenID custody.TokenID, proof commitment.Commitment) (ledger.Transaction, error) {
	return c.transact(ctx, tokenID, "requestVerification", [32]byte(proof))
}

func (c *Contract) FinalizeAndPay(ctx context.Context, tokenID custody.TokenID) (ledger.Transaction, error) {
	return c.transact(ctx, tokenID, "finalizeAndPay")
}

func (c *Contract) DisputeShipment(ctx context.Context, tokenID custody.TokenID, reason string) (ledger.Transaction, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, fmt.Errorf("disputing shipment %s: a reason is required", tokenID)
	}
	return c.transact(ctx, tokenID, "disputeShipment", reason)
}

func (c *Contract) transact(ctx context.Context, tokenID custody.TokenID, method string, extra ...any) (ledger.Transaction, error) {
	if !tokenID.Assigned() {
		return nil, fmt.Errorf("%s: token id %w: not assigned", method, custody.ErrPrecondition)
	}
	opts, err := c.transactOpts(ctx, nil)
	if err != nil {
		return nil, err
	}
	params := append([]any{tokenBig(tokenID)}, extra...)
	tx, err := c.collection.Transact(opts, method, params...)
	if err != nil {
		return nil, classifyWriteError("submitting "+method, err)
	}
	c.logger.Info("custody transition submitted", "method", method, "token_id", tokenID.String(), "tx", tx.Hash().Hex())
	return c.track(tx, nil), nil
}

func (c *Contract) transactOpts(ctx context.Context, value *big.Int) (*bind.TransactOpts, error) {
	if c.signer == nil {
		return nil, fmt.Errorf("ledger client is read-only: %w", custody.ErrPrecondition)
	}
	opts := *c.signer
	opts.Context = ctx
	opts.Value = value
	return &opts, nil
}

// createdTokenID extracts the minted token id from a creation receipt.
// If the factory's event is absent (older deployments), it falls back
// to the collection nonce minus one.
func (c *Contract) createdTokenID(ctx context.Context, receipt *types.Receipt) (custody.TokenID, error) {
	if tokenID, ok := tokenFromCreationLogs(receipt.Logs, c.address); ok {
		return tokenID, nil
	}

	var out []any
	if err := c.factory.Call(&bind.CallOpts{Context: ctx, BlockNumber: receipt.BlockNumber}, &out, "shipmentNonce", c.address); err != nil {
		return custody.TokenID{}, classifyCallError("reading shipment nonce", err)
	}
	nonce := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if nonce == nil || nonce.Sign() == 0 || !nonce.IsUint64() {
		return custody.TokenID{}, fmt.Errorf("creation receipt %s carries no token id and the nonce is unusable", receipt.TxHash.Hex())
	}
	c.logger.Warn("creation event missing, token id derived from nonce", "tx", receipt.TxHash.Hex())
	return custody.NewTokenID(nonce.Uint64() - 1), nil
}

func tokenFromCreationLogs(logs []*types.Log, collection common.Address) (custody.TokenID, bool) {
	created := factoryABI.Events[eventCreated]
	for _, log := range logs {
		if len(log.Topics) != 4 || log.Topics[0] != created.ID {
			continue
		}
		if common.BytesToAddress(log.Topics[1].Bytes()) != collection {
			continue
		}
		tokenID, err := tokenFromTopic(log.Topics[2])
		if err != nil {
			continue
		}
		return tokenID, true
	}
	return custody.TokenID{}, false
}

func tokenBig(tokenID custody.TokenID) *big.Int {
	return new(big.Int).SetUint64(tokenID.Uint64())
}

func tokenFromTopic(topic common.Hash) (custody.TokenID, error) {
	value := topic.Big()
	if !value.IsUint64() {
		return custody.TokenID{}, fmt.Errorf("token id %s exceeds 64 bits", value)
	}
	return custody.NewTokenID(value.Uint64()), nil
}

// classifyCallError maps an RPC failure onto the custody taxonomy. A
// revert is the contract's answer and is not retryable: reads revert
// for unknown tokens, writes revert when a precondition is unmet (gas
// estimation runs the call first). Anything else is transport trouble.
func classifyCallError(operation string, err error) error {
	return classify(operation, err, custody.ErrNotFound)
}

func classifyWriteError(operation string, err error) error {
	return classify(operation, err, custody.ErrPrecondition)
}

func classify(operation string, err, reverted error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if strings.Contains(err.Error(), "execution reverted") {
		return fmt.Errorf("%s: %w: %v", operation, reverted, err)
	}
	return custody.Unavailable(operation, err)
}
