// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/ledger"
)

type tokenExtractor func(ctx context.Context, receipt *types.Receipt) (custody.TokenID, error)

// transaction is a submitted write. Wait may be called more than once;
// each call re-reads the receipt.
type transaction struct {
	contract *Contract
	tx       *types.Transaction
	extract  tokenExtractor
}

func (c *Contract) track(tx *types.Transaction, extract tokenExtractor) *transaction {
	return &transaction{contract: c, tx: tx, extract: extract}
}

func (t *transaction) Hash() common.Hash { return t.tx.Hash() }

func (t *transaction) Wait(ctx context.Context) (ledger.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, t.contract.backend, t.tx)
	if err != nil {
		return ledger.Receipt{}, classifyCallError("waiting for "+t.tx.Hash().Hex(), err)
	}

	result := ledger.Receipt{TxHash: receipt.TxHash, BlockNumber: receipt.BlockNumber.Uint64()}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return result, fmt.Errorf("transaction %s in block %d: %w", receipt.TxHash.Hex(), result.BlockNumber, ledger.ErrReverted)
	}

	if err := t.contract.waitConfirmations(ctx, result.BlockNumber); err != nil {
		return result, err
	}

	if t.extract != nil {
		tokenID, err := t.extract(ctx, receipt)
		if err != nil {
			return result, err
		}
		result.TokenID = tokenID
	}
	return result, nil
}

// waitConfirmations blocks until the chain head is at least
// confirmations-1 blocks past the inclusion block.
func (c *Contract) waitConfirmations(ctx context.Context, included uint64) error {
	target := included + c.confirmations - 1
	for {
		head, err := c.backend.BlockNumber(ctx)
		if err != nil {
			return custody.Unavailable("reading chain head", err)
		}
		if head >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(c.pollInterval):
		}
	}
}
