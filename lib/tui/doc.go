// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package tui renders custody views for the terminal with lipgloss:
// the shipment tracking card shown by "custodyctl track" (status
// badge, parties, and the planned route with per-stop progress), and
// node tables for route listings.
//
// Rendering is pure: functions take a view and a [Theme] and return a
// string. Callers decide whether to print it once or redraw on every
// custody event. Set Theme.Plain for output without ANSI styling.
package tui
