// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Socket requests are small flat maps. The decoder limits are far above
// anything a custody request needs and far below what a hostile peer
// would use to exhaust memory.
const (
	maxNesting  = 16
	maxElements = 4096
)

var (
	encoder cbor.EncMode
	decoder cbor.DecMode
)

func init() {
	// Deterministic encoding (RFC 8949 §4.2) so identical values hash
	// identically. Domain scalars (token ids, addresses, statuses,
	// commitments) go through their TextMarshaler and travel as text.
	encodeOptions := cbor.CoreDetEncOptions()
	encodeOptions.TextMarshaler = cbor.TextMarshalerTextString
	encodeOptions.Time = cbor.TimeRFC3339Nano

	decodeOptions := cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels:  maxNesting,
		MaxArrayElements: maxElements,
		MaxMapPairs:      maxElements,
		// Untyped targets get string-keyed maps so CLI output can
		// re-encode them as JSON.
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}

	var err error
	if encoder, err = encodeOptions.EncMode(); err != nil {
		panic(fmt.Sprintf("codec: building CBOR encoder: %v", err))
	}
	if decoder, err = decodeOptions.DecMode(); err != nil {
		panic(fmt.Sprintf("codec: building CBOR decoder: %v", err))
	}
}

type (
	// RawMessage holds an undecoded value. The socket server keeps a
	// request raw until it knows which action will decode it.
	RawMessage = cbor.RawMessage

	Encoder = cbor.Encoder
	Decoder = cbor.Decoder
)

// Marshal encodes v deterministically.
func Marshal(v any) ([]byte, error) { return encoder.Marshal(v) }

// Unmarshal decodes data into v. A map with a repeated key is
// rejected.
func Unmarshal(data []byte, v any) error { return decoder.Unmarshal(data, v) }

// NewEncoder writes deterministic CBOR values to w.
func NewEncoder(w io.Writer) *Encoder { return encoder.NewEncoder(w) }

// NewDecoder reads CBOR values from r under the same limits as
// Unmarshal.
func NewDecoder(r io.Reader) *Decoder { return decoder.NewDecoder(r) }
