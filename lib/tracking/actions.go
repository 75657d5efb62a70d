// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tracking

import (
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/ledger"
)

// Action is a custody transition an account may submit.
type Action string

const (
	ActionInitiateHandover    Action = "initiate-handover"
	ActionRequestVerification Action = "request-verification"
	ActionFinalize            Action = "finalize-and-pay"
	ActionDispute             Action = "dispute"
)

// Actions returns the transitions viewer may submit given the state in
// the view, in display order. The contract remains the authority;
// this only decides what to offer.
func (v View) Actions(viewer custody.Address) []Action {
	if viewer == (custody.Address{}) {
		return nil
	}
	var actions []Action
	if viewer == v.Owner.Address && v.Status == ledger.StatusCreated {
		actions = append(actions, ActionInitiateHandover)
	}
	if v.PendingCustodian != nil && viewer == v.PendingCustodian.Address && v.Status == ledger.StatusAwaitingVerification {
		actions = append(actions, ActionRequestVerification)
	}
	if viewer == v.Shipper.Address && v.Status == ledger.StatusDelivered {
		actions = append(actions, ActionFinalize)
	}
	if (viewer == v.Shipper.Address || viewer == v.Recipient.Address) &&
		v.Status != ledger.StatusCompleted && v.Status != ledger.StatusDisputed {
		actions = append(actions, ActionDispute)
	}
	return actions
}
