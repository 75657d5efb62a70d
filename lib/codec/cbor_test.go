// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec_test

import (
	"bytes"
	"testing"

	"github.com/bureau-foundation/custody/lib/codec"
	"github.com/bureau-foundation/custody/lib/custody"
	"github.com/bureau-foundation/custody/lib/ledger"
)

type statusResponse struct {
	TokenID custody.TokenID `json:"token_id"`
	Owner   custody.Address `json:"owner"`
	Status  ledger.Status   `json:"status"`
	Stored  bool            `json:"stored,omitempty"`
}

func TestTextMarshalersTravelAsStrings(t *testing.T) {
	owner, err := custody.ParseAddress("0x00000000000000000000000000000000000000aa")
	if err != nil {
		t.Fatal(err)
	}
	original := statusResponse{
		TokenID: custody.NewTokenID(42),
		Owner:   owner,
		Status:  ledger.StatusAwaitingVerification,
	}

	data, err := codec.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var generic map[string]any
	if err := codec.Unmarshal(data, &generic); err != nil {
		t.Fatalf("Unmarshal into map: %v", err)
	}
	if generic["token_id"] != "42" {
		t.Errorf("token_id encoded as %#v, want text \"42\"", generic["token_id"])
	}
	if _, present := generic["stored"]; present {
		t.Error("omitempty field was encoded")
	}

	var decoded statusResponse
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip = %+v, want %+v", decoded, original)
	}
}

func TestUnassignedTokenCannotBeEncoded(t *testing.T) {
	if _, err := codec.Marshal(statusResponse{}); err == nil {
		t.Fatal("expected encoding an unassigned token id to fail")
	}
}

func TestMarshalDeterministic(t *testing.T) {
	value := map[string]any{"zeta": 1, "alpha": 2, "mid": []string{"a", "b"}}
	first, err := codec.Marshal(value)
	if err != nil {
		t.Fatal(err)
	}
	for range 20 {
		again, err := codec.Marshal(value)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("encoding is not deterministic")
		}
	}
}

func TestStreamRoundtrip(t *testing.T) {
	var buffer bytes.Buffer
	encoder := codec.NewEncoder(&buffer)
	for index := range 3 {
		if err := encoder.Encode(map[string]int{"n": index}); err != nil {
			t.Fatal(err)
		}
	}

	decoder := codec.NewDecoder(&buffer)
	for index := range 3 {
		var message map[string]int
		if err := decoder.Decode(&message); err != nil {
			t.Fatalf("Decode %d: %v", index, err)
		}
		if message["n"] != index {
			t.Errorf("message %d = %v", index, message)
		}
	}
}

func TestUnmarshalInvalid(t *testing.T) {
	var value map[string]any
	if err := codec.Unmarshal([]byte{0xff, 0x00}, &value); err == nil {
		t.Fatal("expected error for invalid CBOR")
	}
}

func TestDuplicateMapKeysRejected(t *testing.T) {
	// {"action": "a", "action": "b"} written by hand: a map of two
	// pairs with the same text key.
	data := []byte{0xa2,
		0x66, 'a', 'c', 't', 'i', 'o', 'n', 0x61, 'a',
		0x66, 'a', 'c', 't', 'i', 'o', 'n', 0x61, 'b',
	}
	var request struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(data, &request); err == nil {
		t.Fatalf("Unmarshal accepted a repeated key, action = %q", request.Action)
	}
}

func TestDecoderRejectsDeepNesting(t *testing.T) {
	// 64 nested single-element arrays.
	data := bytes.Repeat([]byte{0x81}, 64)
	data = append(data, 0x00)
	var value any
	if err := codec.NewDecoder(bytes.NewReader(data)).Decode(&value); err == nil {
		t.Fatal("decoder accepted nesting beyond its limit")
	}
}
