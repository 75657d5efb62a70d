// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/tracking"
)

var stopMarkers = map[tracking.StopState]string{
	tracking.StopCompleted: "✓",
	tracking.StopCurrent:   "●",
	tracking.StopInTransit: "→",
	tracking.StopPending:   "○",
}

// RenderShipment renders the tracking card for view. actions are the
// transitions available to the viewer; pass nil to omit the line.
func RenderShipment(view tracking.View, actions []tracking.Action, theme Theme) string {
	label := theme.foreground(theme.FaintText)
	value := theme.foreground(theme.NormalText)

	title := theme.foreground(theme.HeaderForeground).Bold(!theme.Plain).
		Render("Shipment #" + view.TokenID.String())
	badge := theme.foreground(theme.StatusColor(view.Status)).Bold(!theme.Plain).
		Render("[" + view.Status.String() + "]")

	fields := [][2]string{
		{"Cargo", view.CargoDetails},
		{"Payment", formatAmount(view)},
		{"Shipper", formatParty(view.Shipper)},
		{"Recipient", formatParty(view.Recipient)},
		{"Custodian", formatParty(view.Owner)},
	}
	if view.PendingCustodian != nil {
		fields = append(fields, [2]string{"Handover to", formatParty(*view.PendingCustodian)})
	}
	fields = append(fields, [2]string{"Key hash", view.KeyHash})

	labelWidth := 0
	for _, field := range fields {
		labelWidth = max(labelWidth, lipgloss.Width(field[0]))
	}

	lines := []string{title + "  " + badge, ""}
	for _, field := range fields {
		lines = append(lines, label.Width(labelWidth+2).Render(field[0])+value.Render(field[1]))
	}

	if len(view.Stops) > 0 {
		lines = append(lines, "", theme.foreground(theme.HeaderForeground).Render("Route"))
		nameWidth := 0
		for _, stop := range view.Stops {
			nameWidth = max(nameWidth, lipgloss.Width(stop.Party.Name))
		}
		for _, stop := range view.Stops {
			style := theme.foreground(theme.StopColor(stop.State))
			lines = append(lines, fmt.Sprintf("  %s %2d  %s%s",
				style.Render(stopMarkers[stop.State]),
				stop.Index,
				value.Width(nameWidth+2).Render(stop.Party.Name),
				style.Render(string(stop.State)),
			))
		}
	}

	if actions != nil {
		names := make([]string, len(actions))
		for index, action := range actions {
			names[index] = string(action)
		}
		available := "none"
		if len(names) > 0 {
			available = strings.Join(names, ", ")
		}
		lines = append(lines, "", label.Render("Actions: ")+value.Render(available))
	}

	body := strings.Join(lines, "\n")
	if theme.Plain {
		return body + "\n"
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.BorderColor).
		Padding(0, 1).
		Render(body) + "\n"
}

// RenderNodes renders nodes as an aligned table.
func RenderNodes(nodes []custody.Node, theme Theme) string {
	rows := [][]string{{"ID", "NAME", "CATEGORY", "ADDRESS"}}
	for _, node := range nodes {
		rows = append(rows, []string{node.ID, node.Name, string(node.Category), node.Address.Hex()})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for column, cell := range row {
			widths[column] = max(widths[column], lipgloss.Width(cell))
		}
	}

	header := theme.foreground(theme.HeaderForeground).Bold(!theme.Plain)
	var builder strings.Builder
	for index, row := range rows {
		style := theme.foreground(theme.NormalText)
		if index == 0 {
			style = header
		}
		cells := make([]string, len(row))
		for column, cell := range row {
			if column == len(row)-1 {
				cells[column] = style.Render(cell)
				continue
			}
			cells[column] = style.Width(widths[column] + 2).Render(cell)
		}
		builder.WriteString(strings.Join(cells, ""))
		builder.WriteByte('\n')
	}
	return builder.String()
}

func formatParty(party tracking.Party) string {
	if party.NodeID != "" {
		return fmt.Sprintf("%s (%s, %s)", party.Name, party.NodeID, custody.ShortAddress(party.Address))
	}
	if party.Name == custody.ShortAddress(party.Address) {
		return party.Address.Hex()
	}
	return fmt.Sprintf("%s (%s)", party.Name, custody.ShortAddress(party.Address))
}

func formatAmount(view tracking.View) string {
	if view.PaymentAmount == nil {
		return "0 wei"
	}
	return view.PaymentAmount.String() + " wei"
}
