// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Address is a ledger account address. Nodes, shippers, recipients and
// custodians are all addressed this way on-chain.
type Address = common.Address

// ParseAddress parses a 0x-prefixed (or bare) 20-byte hex address.
func ParseAddress(text string) (Address, error) {
	trimmed := strings.TrimSpace(text)
	if !common.IsHexAddress(trimmed) {
		return Address{}, fmt.Errorf("invalid ledger address %q", text)
	}
	return common.HexToAddress(trimmed), nil
}

// ShortAddress renders an address the way the tracking view shows
// unknown parties: the first six characters of the 0x form followed
// by an ellipsis.
func ShortAddress(address Address) string {
	return address.Hex()[:6] + "..."
}

// Category restricts which end of a route a node may serve.
type Category string

const (
	CategoryOrigin      Category = "origin"
	CategoryDestination Category = "destination"
	CategoryBoth        Category = "both"
)

// ParseCategory validates a category string.
func ParseCategory(text string) (Category, error) {
	switch category := Category(text); category {
	case CategoryOrigin, CategoryDestination, CategoryBoth:
		return category, nil
	default:
		return "", fmt.Errorf("invalid node category %q (want origin, destination, or both)", text)
	}
}

// CanOriginate reports whether shipments may start at this category.
func (c Category) CanOriginate() bool {
	return c == CategoryOrigin || c == CategoryBoth
}

// CanReceive reports whether shipments may end at this category.
func (c Category) CanReceive() bool {
	return c == CategoryDestination || c == CategoryBoth
}

// Node is a custody point in the logistics network: a warehouse, port,
// distribution center or retailer. Nodes are reference data
// administered outside this module.
type Node struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Address  Address  `json:"address"`
	Category Category `json:"category"`
}

// Route is a precomputed candidate path between two nodes. Path lists
// node ids from origin to destination inclusive. Lower Rank is
// preferred.
type Route struct {
	ID            string   `json:"id"`
	OriginID      string   `json:"origin_id"`
	DestinationID string   `json:"destination_id"`
	Path          []string `json:"path"`
	Rank          int      `json:"rank"`
}
