// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracking

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/ledger"
)

// Watcher delivers a fresh View each time the ledger reports that a
// custodian received the shipment.
type Watcher struct {
	reader *Reader
	events ledger.EventSource
	logger *slog.Logger
}

// NewWatcher constructs a Watcher. A nil logger discards.
func NewWatcher(reader *Reader, events ledger.EventSource, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{reader: reader, events: events, logger: logger}
}

// Watch reads the current view, then re-reads after every
// custody-received event for tokenID. The first value on the channel
// is the current view. The channel closes when ctx is cancelled or the
// event source ends. A failed re-read is logged and skipped; the next
// event tries again.
func (w *Watcher) Watch(ctx context.Context, tokenID custody.TokenID) (<-chan View, error) {
	ctx, cancel := context.WithCancel(ctx)
	events, err := w.events.Subscribe(ctx, tokenID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribing to events for token %s: %w", tokenID, err)
	}
	initial, err := w.reader.Read(ctx, tokenID)
	if err != nil {
		cancel()
		return nil, err
	}

	views := make(chan View, 1)
	views <- initial
	go func() {
		defer close(views)
		defer cancel()
		for event := range events {
			view, err := w.reader.Read(ctx, tokenID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Warn("refreshing shipment view failed",
					"token_id", tokenID.String(), "block", event.BlockNumber, "error", err)
				continue
			}
			select {
			case views <- view:
			case <-ctx.Done():
				return
			}
		}
	}()
	return views, nil
}
