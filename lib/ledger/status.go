// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import "fmt"

// Status is the custody state of a shipment as the contract stores
// it. The numeric values are the contract's enum ordinals.
type Status uint8

const (
	StatusCreated Status = iota
	StatusInTransit
	StatusAwaitingVerification
	StatusDelivered
	StatusCompleted
	StatusDisputed
	StatusReroutingRequested
)

var statusNames = [...]string{
	StatusCreated:              "Created",
	StatusInTransit:            "In Transit",
	StatusAwaitingVerification: "Awaiting Verification",
	StatusDelivered:            "Delivered",
	StatusCompleted:            "Completed",
	StatusDisputed:             "Disputed",
	StatusReroutingRequested:   "Rerouting Requested",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(s))
}

// Valid reports whether s is one of the contract's defined states.
func (s Status) Valid() bool { return int(s) < len(statusNames) }

// Terminal reports whether the shipment has left the active custody
// chain: the package reached its recipient, was paid out, or is under
// dispute. A secret is never needed for verification again once its
// shipment is terminal.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCompleted, StatusDisputed:
		return true
	}
	return false
}

// MarshalText encodes the status by name for JSON and CBOR.
func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid shipment status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for value, name := range statusNames {
		if name == string(text) {
			*s = Status(value)
			return nil
		}
	}
	return fmt.Errorf("unknown shipment status %q", text)
}
