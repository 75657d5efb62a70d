// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/custody/lib/clock"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/ledger"
)

// Policy is the secret retention policy.
type Policy string

const (
	// PolicyRetain keeps every secret until it is destroyed
	// explicitly.
	PolicyRetain Policy = "retain"

	// PolicyPurgeTerminal destroys a shipment's secret once the
	// ledger reports it delivered, completed, or disputed.
	PolicyPurgeTerminal Policy = "purge-terminal"
)

// ParsePolicy validates a policy name.
func ParsePolicy(name string) (Policy, error) {
	switch policy := Policy(name); policy {
	case PolicyRetain, PolicyPurgeTerminal:
		return policy, nil
	}
	return "", fmt.Errorf("unknown retention policy %q (expected %q or %q)", name, PolicyRetain, PolicyPurgeTerminal)
}

// TokenLister enumerates stored secrets. *keystore.Store implements
// it.
type TokenLister interface {
	Tokens(ctx context.Context) ([]custody.TokenID, error)
}

// SweepResult summarizes one retention sweep.
type SweepResult struct {
	Checked int `json:"checked"`
	Purged  int `json:"purged"`
	Failed  int `json:"failed"`
}

// Retention applies the retention policy.
type Retention struct {
	policy  Policy
	secrets Secrets
	tokens  TokenLister
	reader  ledger.Reader
	logger  *slog.Logger
}

// NewRetention constructs a Retention. A nil logger discards.
func NewRetention(policy Policy, secrets Secrets, tokens TokenLister, reader ledger.Reader, logger *slog.Logger) *Retention {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Retention{policy: policy, secrets: secrets, tokens: tokens, reader: reader, logger: logger}
}

// Policy returns the configured policy.
func (r *Retention) Policy() Policy { return r.policy }

// Sweep checks every stored secret against the ledger and destroys
// those whose shipment is terminal. Under PolicyRetain it does
// nothing. A failure on one token does not stop the sweep; failures
// are joined into the returned error.
func (r *Retention) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	if r.policy != PolicyPurgeTerminal {
		return result, nil
	}

	tokens, err := r.tokens.Tokens(ctx)
	if err != nil {
		return result, fmt.Errorf("retention sweep: %w", err)
	}

	var failures []error
	for _, tokenID := range tokens {
		if ctx.Err() != nil {
			failures = append(failures, ctx.Err())
			break
		}
		result.Checked++
		purged, err := r.apply(ctx, tokenID)
		if err != nil {
			result.Failed++
			failures = append(failures, err)
			continue
		}
		if purged {
			result.Purged++
		}
	}

	r.logger.Info("retention sweep finished",
		"checked", result.Checked, "purged", result.Purged, "failed", result.Failed)
	return result, errors.Join(failures...)
}

// OnCustodyEvent re-reads the shipment named by event and destroys its
// secret if the policy applies and the shipment is terminal.
func (r *Retention) OnCustodyEvent(ctx context.Context, event ledger.Event) (bool, error) {
	if r.policy != PolicyPurgeTerminal {
		return false, nil
	}
	return r.apply(ctx, event.TokenID)
}

func (r *Retention) apply(ctx context.Context, tokenID custody.TokenID) (bool, error) {
	details, err := r.reader.ShipmentDetails(ctx, tokenID)
	if errors.Is(err, custody.ErrNotFound) {
		// A secret for a token the ledger has never heard of came from
		// a manual store; it is not this policy's to delete.
		r.logger.Warn("stored secret has no shipment on the ledger", "token_id", tokenID.String())
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("retention check for %s: %w", tokenID, err)
	}
	if !details.Status.Terminal() {
		return false, nil
	}
	if err := r.secrets.Destroy(ctx, tokenID); err != nil {
		return false, fmt.Errorf("purging secret for %s: %w", tokenID, err)
	}
	r.logger.Info("secret purged", "token_id", tokenID.String(), "status", details.Status.String())
	return true, nil
}

// Run sweeps every interval and reacts to custody events until ctx is
// cancelled. Under PolicyRetain it returns immediately. events may be
// nil, in which case only the periodic sweep runs.
func (r *Retention) Run(ctx context.Context, events ledger.EventSource, interval time.Duration, clk clock.Clock) error {
	if r.policy != PolicyPurgeTerminal {
		return nil
	}
	if clk == nil {
		clk = clock.Real()
	}

	var received <-chan ledger.Event
	if events != nil {
		channel, err := events.Subscribe(ctx, custody.TokenID{})
		if err != nil {
			return fmt.Errorf("retention: subscribing to custody events: %w", err)
		}
		received = channel
	}

	ticker := clk.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("retention sweep incomplete", "error", err)
			}
		case event, ok := <-received:
			if !ok {
				received = nil
				continue
			}
			if _, err := r.OnCustodyEvent(ctx, event); err != nil {
				r.logger.Warn("retention on custody event failed", "token_id", event.TokenID.String(), "error", err)
			}
		}
	}
}
