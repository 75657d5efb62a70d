// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package evm

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/ledger"
)

// LogSource is the subset of the chain client the poller uses.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
}

// PollingConfig holds the parameters for creating PollingEvents.
type PollingConfig struct {
	Source LogSource

	// Collection is the shipment collection whose events are read.
	Collection common.Address

	// Interval between polls. Zero uses five seconds.
	Interval time.Duration

	// MaxRange caps the number of blocks queried per poll, so a
	// subscriber that fell far behind catches up in bounded
	// requests. Zero uses 2000.
	MaxRange uint64

	Clock  clock.Clock
	Logger *slog.Logger
}

// PollingEvents implements ledger.EventSource by periodically querying
// logs for the custody-received event. Each subscription starts at the
// block after the head observed when it was created.
type PollingEvents struct {
	source     LogSource
	collection common.Address
	interval   time.Duration
	maxRange   uint64
	clock      clock.Clock
	logger     *slog.Logger
}

// NewPollingEvents constructs a PollingEvents.
func NewPollingEvents(config PollingConfig) (*PollingEvents, error) {
	if config.Source == nil {
		return nil, fmt.Errorf("evm: event Source is required")
	}
	if config.Collection == (common.Address{}) {
		return nil, fmt.Errorf("evm: Collection address is required")
	}
	if config.Interval <= 0 {
		config.Interval = 5 * time.Second
	}
	if config.MaxRange == 0 {
		config.MaxRange = 2000
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PollingEvents{
		source:     config.Source,
		collection: config.Collection,
		interval:   config.Interval,
		maxRange:   config.MaxRange,
		clock:      config.Clock,
		logger:     logger,
	}, nil
}

// Subscribe implements ledger.EventSource.
func (p *PollingEvents) Subscribe(ctx context.Context, tokenID custody.TokenID) (<-chan ledger.Event, error) {
	head, err := p.source.BlockNumber(ctx)
	if err != nil {
		return nil, custody.Unavailable("reading chain head", err)
	}

	events := make(chan ledger.Event, 16)
	go p.poll(ctx, tokenID, head+1, events)
	return events, nil
}

func (p *PollingEvents) poll(ctx context.Context, tokenID custody.TokenID, next uint64, events chan<- ledger.Event) {
	defer close(events)

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		advanced, err := p.pollOnce(ctx, tokenID, next, events)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("custody event poll failed", "from_block", next, "error", err)
			continue
		}
		next = advanced
	}
}

// pollOnce reads one bounded block range and delivers its events. It
// returns the next block to read.
func (p *PollingEvents) pollOnce(ctx context.Context, tokenID custody.TokenID, next uint64, events chan<- ledger.Event) (uint64, error) {
	head, err := p.source.BlockNumber(ctx)
	if err != nil {
		return next, err
	}
	if head < next {
		return next, nil
	}
	to := head
	if to-next+1 > p.maxRange {
		to = next + p.maxRange - 1
	}

	logs, err := p.source.FilterLogs(ctx, p.query(tokenID, next, to))
	if err != nil {
		return next, err
	}
	for _, log := range logs {
		event, err := eventFromLog(log)
		if err != nil {
			p.logger.Warn("skipping malformed custody event", "tx", log.TxHash.Hex(), "error", err)
			continue
		}
		select {
		case events <- event:
		case <-ctx.Done():
			return next, ctx.Err()
		}
	}
	return to + 1, nil
}

func (p *PollingEvents) query(tokenID custody.TokenID, from, to uint64) ethereum.FilterQuery {
	topics := [][]common.Hash{{shipmentABI.Events[eventReceived].ID}}
	if tokenID.Assigned() {
		topics = append(topics, []common.Hash{common.BigToHash(tokenBig(tokenID))})
	}
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{p.collection},
		Topics:    topics,
	}
}

func eventFromLog(log types.Log) (ledger.Event, error) {
	if len(log.Topics) != 2 || log.Topics[0] != shipmentABI.Events[eventReceived].ID {
		return ledger.Event{}, fmt.Errorf("unexpected topics %v", log.Topics)
	}
	tokenID, err := tokenFromTopic(log.Topics[1])
	if err != nil {
		return ledger.Event{}, err
	}
	return ledger.Event{TokenID: tokenID, TxHash: log.TxHash, BlockNumber: log.BlockNumber}, nil
}
