// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/ledger"
	"github.com/bureau-foundation/custody/lib/tracking"
)

var (
	shipper   = common.HexToAddress("0x5100000000000000000000000000000000000005")
	recipient = common.HexToAddress("0xec00000000000000000000000000000000000007")
	warehouse = common.HexToAddress("0x1000000000000000000000000000000000000001")
	hub       = common.HexToAddress("0x2000000000000000000000000000000000000002")
)

var nodes = []custody.Node{
	{ID: "WH-1", Name: "Warehouse", Address: warehouse, Category: custody.CategoryOrigin},
	{ID: "HUB", Name: "Central Hub", Address: hub, Category: custody.CategoryBoth},
}

func inTransitView() tracking.View {
	return tracking.Render(ledger.Shipment{
		TokenID: custody.NewTokenID(7),
		Owner:   warehouse,
		Details: ledger.ShipmentDetails{
			Shipper:           shipper,
			Recipient:         recipient,
			Status:            ledger.StatusInTransit,
			CargoDetails:      "12 pallets",
			PaymentAmount:     big.NewInt(5000),
			PlannedRoute:      []custody.Address{shipper, warehouse, hub, recipient},
			CurrentRouteIndex: 1,
		},
	}, nodes)
}

func TestRenderShipmentPlain(t *testing.T) {
	view := inTransitView()
	output := RenderShipment(view, view.Actions(recipient), PlainTheme)

	for _, want := range []string{
		"Shipment #7",
		"[In Transit]",
		"12 pallets",
		"5000 wei",
		"Warehouse (WH-1, 0x1000...)",
		recipient.Hex(),
		"Actions: dispute",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, "\x1b[") {
		t.Errorf("plain output contains ANSI escapes:\n%q", output)
	}

	lines := strings.Split(output, "\n")
	var route []string
	for _, line := range lines {
		for _, marker := range stopMarkers {
			if strings.HasPrefix(strings.TrimSpace(line), marker) {
				route = append(route, strings.Join(strings.Fields(line), " "))
			}
		}
	}
	want := []string{
		"✓ 0 0x5100... completed",
		"→ 1 Warehouse in-transit",
		"○ 2 Central Hub pending",
		"○ 3 " + custody.ShortAddress(recipient) + " pending",
	}
	if len(route) != len(want) {
		t.Fatalf("route lines = %q, want %q", route, want)
	}
	for index := range want {
		if route[index] != want[index] {
			t.Errorf("route line %d = %q, want %q", index, route[index], want[index])
		}
	}
}

func TestRenderShipmentOmitsActionsWhenNil(t *testing.T) {
	output := RenderShipment(inTransitView(), nil, PlainTheme)
	if strings.Contains(output, "Actions:") {
		t.Errorf("actions line rendered without a viewer:\n%s", output)
	}
	output = RenderShipment(inTransitView(), []tracking.Action{}, PlainTheme)
	if !strings.Contains(output, "Actions: none") {
		t.Errorf("empty actions not rendered as none:\n%s", output)
	}
}

func TestRenderShipmentBordered(t *testing.T) {
	output := RenderShipment(inTransitView(), nil, DefaultTheme)
	if !strings.Contains(output, "╭") || !strings.Contains(output, "Shipment #7") {
		t.Errorf("themed output missing border or title:\n%s", output)
	}
}

func TestRenderNodes(t *testing.T) {
	output := RenderNodes(nodes, PlainTheme)
	lines := strings.Split(strings.TrimSuffix(output, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2:\n%s", len(lines), output)
	}
	if fields := strings.Fields(lines[0]); strings.Join(fields, " ") != "ID NAME CATEGORY ADDRESS" {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "HUB ") || !strings.Contains(lines[2], hub.Hex()) {
		t.Errorf("row = %q", lines[2])
	}
	// Columns line up: the name column starts at the same offset.
	if strings.Index(lines[1], "Warehouse") != strings.Index(lines[2], "Central Hub") {
		t.Errorf("columns not aligned:\n%s", output)
	}
}

func TestStatusColor(t *testing.T) {
	if DefaultTheme.StatusColor(ledger.StatusDisputed) != DefaultTheme.StatusDisputed {
		t.Error("disputed status should use the disputed color")
	}
	if DefaultTheme.StatusColor(ledger.StatusAwaitingVerification) != DefaultTheme.StatusAttention {
		t.Error("awaiting verification should draw attention")
	}
	if DefaultTheme.StopColor(tracking.StopPending) != DefaultTheme.StopPending {
		t.Error("pending stop color")
	}
}
