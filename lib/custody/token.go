// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package custody

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// TokenID identifies a shipment on the ledger. The contract assigns it
// only after the creation transaction is mined, so the zero value means
// "not yet assigned" rather than token 0. Operations that key storage
// by token id reject unassigned values.
type TokenID struct {
	value    uint64
	assigned bool
}

// NewTokenID returns an assigned token id.
func NewTokenID(value uint64) TokenID {
	return TokenID{value: value, assigned: true}
}

// ParseTokenID parses a non-negative decimal token id.
func ParseTokenID(text string) (TokenID, error) {
	value, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return TokenID{}, fmt.Errorf("invalid token id %q: must be a non-negative integer", text)
	}
	return NewTokenID(value), nil
}

// Assigned reports whether the ledger has assigned this id.
func (t TokenID) Assigned() bool { return t.assigned }

// Uint64 returns the numeric id. Zero for unassigned ids.
func (t TokenID) Uint64() uint64 { return t.value }

func (t TokenID) String() string {
	if !t.assigned {
		return "unassigned"
	}
	return strconv.FormatUint(t.value, 10)
}

// MarshalText encodes the id as a decimal string. Unassigned ids
// cannot be encoded.
func (t TokenID) MarshalText() ([]byte, error) {
	if !t.assigned {
		return nil, fmt.Errorf("cannot encode unassigned token id")
	}
	return []byte(strconv.FormatUint(t.value, 10)), nil
}

func (t *TokenID) UnmarshalText(text []byte) error {
	parsed, err := ParseTokenID(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON encodes the id as a JSON number, matching the HTTP API.
func (t TokenID) MarshalJSON() ([]byte, error) {
	if !t.assigned {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatUint(t.value, 10)), nil
}

// UnmarshalJSON accepts a JSON number or a decimal string. null leaves
// the id unassigned.
func (t *TokenID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = TokenID{}
		return nil
	}
	var text string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
	} else {
		text = string(data)
	}
	return t.UnmarshalText([]byte(text))
}
