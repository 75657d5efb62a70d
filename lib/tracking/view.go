// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tracking builds the read-only display view of a shipment:
// ledger state joined with the node catalog so addresses show as
// human names, route progress per stop, and the custody actions a
// given account may take next.
//
// Nothing here writes or keeps state between calls. [Watcher] re-reads
// the view whenever the ledger reports a custody-received event for
// the token.
package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/ledger"
)

// NodeCatalog lists the known nodes. routing.Repository implementations
// satisfy it.
type NodeCatalog interface {
	ListNodes(ctx context.Context) ([]custody.Node, error)
}

// Party is an address with its display name. Name is the catalog
// node name when the address belongs to a known node, otherwise the
// truncated address.
type Party struct {
	Address custody.Address `json:"address"`
	Name    string          `json:"name"`
	NodeID  string          `json:"nodeId,omitempty"`
}

// StopState is the progress of one stop on the planned route.
type StopState string

const (
	StopCompleted StopState = "completed"
	StopCurrent   StopState = "current"
	StopInTransit StopState = "in-transit"
	StopPending   StopState = "pending"
)

// Stop is one entry of the planned route.
type Stop struct {
	Index int       `json:"index"`
	Party Party     `json:"party"`
	State StopState `json:"state"`
}

// View is the display form of a shipment.
type View struct {
	TokenID          custody.TokenID `json:"tokenId"`
	Status           ledger.Status   `json:"status"`
	Shipper          Party           `json:"shipper"`
	Recipient        Party           `json:"recipient"`
	Owner            Party           `json:"owner"`
	PendingCustodian *Party          `json:"pendingCustodian,omitempty"`
	CargoDetails     string          `json:"cargoDetails"`
	PaymentAmount    *big.Int        `json:"paymentAmount"`
	KeyHash          string          `json:"keyHash"`
	Stops            []Stop          `json:"stops"`
}

// Reader assembles Views.
type Reader struct {
	ledger  ledger.Reader
	catalog NodeCatalog
	logger  *slog.Logger
}

// NewReader constructs a Reader. A nil logger discards.
func NewReader(ledgerReader ledger.Reader, catalog NodeCatalog, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reader{ledger: ledgerReader, catalog: catalog, logger: logger}
}

// Read fetches the shipment and its owner from the ledger and renders
// the view. Ledger errors propagate. A catalog failure only costs the
// names: every address falls back to its truncated form.
func (r *Reader) Read(ctx context.Context, tokenID custody.TokenID) (View, error) {
	if !tokenID.Assigned() {
		return View{}, fmt.Errorf("reading shipment view: token id %w: not assigned", custody.ErrPrecondition)
	}
	shipment, err := ledger.ReadShipment(ctx, r.ledger, tokenID)
	if err != nil {
		return View{}, fmt.Errorf("reading shipment %s: %w", tokenID, err)
	}

	var nodes []custody.Node
	if r.catalog != nil {
		nodes, err = r.catalog.ListNodes(ctx)
		if err != nil {
			r.logger.Warn("node catalog unavailable, showing raw addresses", "token_id", tokenID.String(), "error", err)
			nodes = nil
		}
	}
	return Render(shipment, nodes), nil
}

// Render builds a View from ledger state and the node catalog.
// Address matching ignores hex letter case: addresses are compared as
// 20-byte values, never as strings.
func Render(shipment ledger.Shipment, nodes []custody.Node) View {
	names := newNameIndex(nodes)
	details := shipment.Details

	view := View{
		TokenID:       shipment.TokenID,
		Status:        details.Status,
		Shipper:       names.party(details.Shipper),
		Recipient:     names.party(details.Recipient),
		Owner:         names.party(shipment.Owner),
		CargoDetails:  details.CargoDetails,
		PaymentAmount: details.PaymentAmount,
		KeyHash:       details.KeyHash.Hex(),
		Stops:         make([]Stop, len(details.PlannedRoute)),
	}
	if details.PendingCustodian != (custody.Address{}) {
		pending := names.party(details.PendingCustodian)
		view.PendingCustodian = &pending
	}
	for index, address := range details.PlannedRoute {
		view.Stops[index] = Stop{
			Index: index,
			Party: names.party(address),
			State: stopState(uint64(index), details.CurrentRouteIndex, details.Status),
		}
	}
	return view
}

func stopState(index, current uint64, status ledger.Status) StopState {
	switch {
	case index < current:
		return StopCompleted
	case index == current && status == ledger.StatusInTransit:
		return StopInTransit
	case index == current:
		return StopCurrent
	default:
		return StopPending
	}
}

type nameIndex map[custody.Address]custody.Node

func newNameIndex(nodes []custody.Node) nameIndex {
	index := make(nameIndex, len(nodes))
	for _, node := range nodes {
		if _, duplicate := index[node.Address]; !duplicate {
			index[node.Address] = node
		}
	}
	return index
}

func (n nameIndex) party(address custody.Address) Party {
	if node, ok := n[address]; ok {
		return Party{Address: address, Name: node.Name, NodeID: node.ID}
	}
	return Party{Address: address, Name: custody.ShortAddress(address)}
}
