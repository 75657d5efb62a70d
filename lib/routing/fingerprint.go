// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package routing

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/custody/lib/custody"
)

// Fingerprint identifies a resolved path: the route id, its rank, and
// the exact address sequence. Two resolutions with equal fingerprints
// would submit the same route to the ledger.
type Fingerprint [32]byte

// fingerprintDomainKey separates route fingerprints from any other
// BLAKE3 use of the same inputs. Exactly 32 bytes.
var fingerprintDomainKey = [32]byte([]byte("custody.routing.fingerprint.v1\x00\x00"))

// String returns the hex encoding of the first 8 bytes, which is what
// logs and the HTTP API show.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:8])
}

// Hex returns the full hex encoding.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

func fingerprintPath(route custody.Route, addresses []custody.Address) Fingerprint {
	hasher, err := blake3.NewKeyed(fingerprintDomainKey[:])
	if err != nil {
		panic("routing: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	var length [8]byte
	binary.BigEndian.PutUint64(length[:], uint64(len(route.ID)))
	hasher.Write(length[:])
	hasher.Write([]byte(route.ID))

	var rank [8]byte
	binary.BigEndian.PutUint64(rank[:], uint64(route.Rank))
	hasher.Write(rank[:])

	for _, address := range addresses {
		hasher.Write(address.Bytes())
	}

	var fingerprint Fingerprint
	copy(fingerprint[:], hasher.Sum(nil))
	return fingerprint
}
