// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/commitment"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/ledger"
	"github.com/bureau-foundation/custody/lib/secret"
	"github.com/bureau-foundation/custody/lib/service"
	"github.com/bureau-foundation/custody/lib/version"
	"github.com/bureau-foundation/custody/lib/workflow"
)

// Socket actions. The socket is the privileged local interface: it is
// the only way plaintext secrets leave the daemon.
const (
	actionStatus         = "status"
	actionGenerateSecret = "generate-secret"
	actionStoreSecret    = "store-secret"
	actionRevealSecret   = "reveal-secret"
	actionVerifySecret   = "verify-secret"
	actionDestroySecret  = "destroy-secret"
	actionPurgeTerminal  = "purge-terminal"
	actionCreateShipment = "create-shipment"
)

func (d *daemon) registerActions(server *service.SocketServer) {
	server.Handle(actionStatus, d.handleStatus)
	server.Handle(actionGenerateSecret, d.handleGenerateSecret)
	server.Handle(actionStoreSecret, d.handleStoreSecretAction)
	server.Handle(actionRevealSecret, d.handleRevealSecret)
	server.Handle(actionVerifySecret, d.handleVerifySecret)
	server.Handle(actionDestroySecret, d.handleDestroySecret)
	server.Handle(actionPurgeTerminal, d.handlePurgeTerminal)
	server.Handle(actionCreateShipment, d.handleCreateShipment)
}

type statusResponse struct {
	Version         string `cbor:"version"`
	Uptime          string `cbor:"uptime"`
	Ledger          bool   `cbor:"ledger"`
	RetentionPolicy string `cbor:"retention_policy"`
}

func (d *daemon) handleStatus(ctx context.Context, raw []byte) (any, error) {
	return statusResponse{
		Version:         version.Info(),
		Uptime:          d.clock.Now().Sub(d.startedAt).Truncate(time.Second).String(),
		Ledger:          d.tracking != nil,
		RetentionPolicy: string(d.retention.Policy()),
	}, nil
}

// tokenRequest is the request body shared by the per-token actions.
type tokenRequest struct {
	TokenID custody.TokenID `cbor:"token_id"`
	Secret  string          `cbor:"secret,omitempty"`
	Submit  bool            `cbor:"submit,omitempty"`
}

func decodeTokenRequest(raw []byte) (tokenRequest, error) {
	var request tokenRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return request, fmt.Errorf("invalid request: %v: %w", err, custody.ErrPrecondition)
	}
	if !request.TokenID.Assigned() {
		return request, fmt.Errorf("token_id is required: %w", custody.ErrPrecondition)
	}
	return request, nil
}

func parseClaimedSecret(text string) (*secret.Buffer, error) {
	buffer, err := commitment.ParseSecret(text)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, custody.ErrPrecondition)
	}
	return buffer, nil
}

type generatedSecret struct {
	Secret     string `cbor:"secret"`
	Commitment string `cbor:"commitment"`
}

type secretResponse struct {
	TokenID    custody.TokenID `cbor:"token_id"`
	Secret     string          `cbor:"secret,omitempty"`
	Commitment string          `cbor:"commitment"`
}

func (d *daemon) handleGenerateSecret(ctx context.Context, raw []byte) (any, error) {
	plaintext, hash, err := d.secrets.Generate()
	if err != nil {
		return nil, err
	}
	defer plaintext.Close()
	return generatedSecret{Secret: commitment.FormatSecret(plaintext), Commitment: hash.Hex()}, nil
}

func (d *daemon) handleStoreSecretAction(ctx context.Context, raw []byte) (any, error) {
	request, err := decodeTokenRequest(raw)
	if err != nil {
		return nil, err
	}
	plaintext, err := parseClaimedSecret(request.Secret)
	if err != nil {
		return nil, err
	}
	defer plaintext.Close()
	if err := d.secrets.Persist(ctx, request.TokenID, plaintext); err != nil {
		return nil, err
	}
	return secretResponse{
		TokenID:    request.TokenID,
		Commitment: commitment.Hash(plaintext.Bytes()).Hex(),
	}, nil
}

func (d *daemon) handleRevealSecret(ctx context.Context, raw []byte) (any, error) {
	request, err := decodeTokenRequest(raw)
	if err != nil {
		return nil, err
	}
	plaintext, err := d.secrets.Reveal(ctx, request.TokenID)
	if err != nil {
		return nil, err
	}
	defer plaintext.Close()
	d.logger.Info("secret revealed over socket", "token_id", request.TokenID.String())
	return secretResponse{
		TokenID:    request.TokenID,
		Secret:     commitment.FormatSecret(plaintext),
		Commitment: commitment.Hash(plaintext.Bytes()).Hex(),
	}, nil
}

type verifyResponse struct {
	TokenID  custody.TokenID `cbor:"token_id"`
	Matched  bool            `cbor:"matched"`
	Mismatch string          `cbor:"mismatch,omitempty"`
	Status   ledger.Status   `cbor:"status"`
	TxHash   string          `cbor:"tx_hash,omitempty"`
}

func (d *daemon) handleVerifySecret(ctx context.Context, raw []byte) (any, error) {
	if d.verification == nil {
		return nil, errNoLedger
	}
	request, err := decodeTokenRequest(raw)
	if err != nil {
		return nil, err
	}
	claimed, err := parseClaimedSecret(request.Secret)
	if err != nil {
		return nil, err
	}
	defer claimed.Close()

	var outcome workflow.Outcome
	if request.Submit {
		outcome, err = d.verification.Submit(ctx, request.TokenID, claimed)
	} else {
		outcome, err = d.verification.Check(ctx, request.TokenID, claimed)
	}
	if err != nil {
		return nil, err
	}
	response := verifyResponse{
		TokenID:  outcome.TokenID,
		Matched:  outcome.Matched,
		Mismatch: string(outcome.Mismatch),
		Status:   outcome.Status,
	}
	if outcome.TxHash != nil {
		response.TxHash = outcome.TxHash.Hex()
	}
	return response, nil
}

func (d *daemon) handleDestroySecret(ctx context.Context, raw []byte) (any, error) {
	request, err := decodeTokenRequest(raw)
	if err != nil {
		return nil, err
	}
	if err := d.secrets.Destroy(ctx, request.TokenID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *daemon) handlePurgeTerminal(ctx context.Context, raw []byte) (any, error) {
	if d.retention.Policy() != workflow.PolicyPurgeTerminal {
		return nil, fmt.Errorf("retention policy is %s: %w", d.retention.Policy(), custody.ErrPrecondition)
	}
	result, err := d.retention.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	return result, nil
}

type createShipmentRequest struct {
	OriginID      string          `cbor:"origin_id"`
	DestinationID string          `cbor:"destination_id"`
	Shipper       custody.Address `cbor:"shipper"`
	Recipient     custody.Address `cbor:"recipient"`
	CargoDetails  string          `cbor:"cargo_details"`
	PaymentAmount string          `cbor:"payment_amount"`
}

type createShipmentResponse struct {
	TokenID     custody.TokenID   `cbor:"token_id"`
	TxHash      string            `cbor:"tx_hash"`
	RouteID     string            `cbor:"route_id"`
	Route       []custody.Address `cbor:"route"`
	Fingerprint string            `cbor:"fingerprint"`
	Commitment  string            `cbor:"commitment"`
	Secret      string            `cbor:"secret"`
}

func (d *daemon) handleCreateShipment(ctx context.Context, raw []byte) (any, error) {
	if d.creation == nil {
		return nil, errNoLedger
	}
	var request createShipmentRequest
	if err := codec.Unmarshal(raw, &request); err != nil {
		return nil, fmt.Errorf("invalid request: %v: %w", err, custody.ErrPrecondition)
	}
	amount, ok := new(big.Int).SetString(request.PaymentAmount, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("payment_amount %q is not a non-negative integer: %w", request.PaymentAmount, custody.ErrPrecondition)
	}
	if request.Shipper == (custody.Address{}) || request.Recipient == (custody.Address{}) {
		return nil, fmt.Errorf("shipper and recipient are required: %w", custody.ErrPrecondition)
	}

	result, err := d.creation.Create(ctx, workflow.CreateRequest{
		OriginID:      request.OriginID,
		DestinationID: request.DestinationID,
		Shipper:       request.Shipper,
		Recipient:     request.Recipient,
		CargoDetails:  request.CargoDetails,
		PaymentAmount: amount,
	})
	if err != nil {
		return nil, err
	}
	return createShipmentResponse{
		TokenID:     result.TokenID,
		TxHash:      result.TxHash.Hex(),
		RouteID:     result.Path.Route.ID,
		Route:       result.Path.Addresses,
		Fingerprint: result.Path.Fingerprint.Hex(),
		Commitment:  result.Commitment.Hex(),
		Secret:      result.Secret,
	}, nil
}
