// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bureau-foundation/custody/lib/ledger"
	"github.com/bureau-foundation/custody/lib/tracking"
)

// Theme defines the color palette for custody output. All colors use
// lipgloss ANSI 256-color codes for broad terminal compatibility.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color

	// Shipment status colors.
	StatusActive    lipgloss.Color
	StatusAttention lipgloss.Color
	StatusDone      lipgloss.Color
	StatusDisputed  lipgloss.Color

	// Stop progress colors.
	StopCompleted lipgloss.Color
	StopCurrent   lipgloss.Color
	StopInTransit lipgloss.Color
	StopPending   lipgloss.Color

	// Plain disables all styling: no colors, no borders.
	Plain bool
}

// DefaultTheme is the built-in dark-terminal color scheme.
var DefaultTheme = Theme{
	NormalText: lipgloss.Color("252"),
	FaintText:  lipgloss.Color("245"),

	HeaderForeground: lipgloss.Color("255"),
	BorderColor:      lipgloss.Color("240"),

	StatusActive:    lipgloss.Color("75"),  // blue
	StatusAttention: lipgloss.Color("220"), // yellow/amber
	StatusDone:      lipgloss.Color("114"), // green
	StatusDisputed:  lipgloss.Color("196"), // red

	StopCompleted: lipgloss.Color("114"),
	StopCurrent:   lipgloss.Color("220"),
	StopInTransit: lipgloss.Color("75"),
	StopPending:   lipgloss.Color("240"),
}

// PlainTheme renders without ANSI styling, for pipes and tests.
var PlainTheme = Theme{Plain: true}

// StatusColor returns the color for a shipment status. Statuses that
// need someone to act (verification, rerouting) use the attention
// color.
func (theme Theme) StatusColor(status ledger.Status) lipgloss.Color {
	switch status {
	case ledger.StatusCreated, ledger.StatusInTransit:
		return theme.StatusActive
	case ledger.StatusAwaitingVerification, ledger.StatusReroutingRequested:
		return theme.StatusAttention
	case ledger.StatusDelivered, ledger.StatusCompleted:
		return theme.StatusDone
	case ledger.StatusDisputed:
		return theme.StatusDisputed
	default:
		return theme.FaintText
	}
}

// StopColor returns the color for a stop's progress state.
func (theme Theme) StopColor(state tracking.StopState) lipgloss.Color {
	switch state {
	case tracking.StopCompleted:
		return theme.StopCompleted
	case tracking.StopCurrent:
		return theme.StopCurrent
	case tracking.StopInTransit:
		return theme.StopInTransit
	default:
		return theme.StopPending
	}
}

func (theme Theme) foreground(color lipgloss.Color) lipgloss.Style {
	if theme.Plain {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(color)
}
