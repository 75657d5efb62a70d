// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ParseHex decodes a hex-encoded secret into a Buffer. An optional
// "0x" prefix and surrounding whitespace are accepted. If wantLen is
// positive the decoded length must match it exactly.
//
// The decoded bytes pass through one short-lived heap slice that is
// zeroed before returning. The input string itself is immutable and
// cannot be scrubbed; callers reading from the environment should
// unset the variable once the key is loaded.
func ParseHex(encoded string, wantLen int) (*Buffer, error) {
	trimmed := strings.TrimSpace(encoded)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if trimmed == "" {
		return nil, fmt.Errorf("secret: hex value is empty")
	}
	if len(trimmed)%2 != 0 {
		return nil, fmt.Errorf("secret: hex value has odd length %d", len(trimmed))
	}

	decoded := make([]byte, hex.DecodedLen(len(trimmed)))
	if _, err := hex.Decode(decoded, []byte(trimmed)); err != nil {
		Zero(decoded)
		// hex.InvalidByteError names the offending byte, which is a
		// fragment of the secret. Report only that decoding failed.
		return nil, fmt.Errorf("secret: value is not valid hex")
	}
	if wantLen > 0 && len(decoded) != wantLen {
		length := len(decoded)
		Zero(decoded)
		return nil, fmt.Errorf("secret: decoded length is %d bytes, want %d", length, wantLen)
	}

	return NewFromBytes(decoded)
}
