// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog loads node and route reference data from JSONC seed
// files and applies it to a store.
//
// A seed file is a JSON object with "nodes" and "routes" arrays, with
// // line comments, /* block comments */, and trailing commas allowed:
//
//	{
//	  "nodes": [
//	    {"id": "WH-1", "name": "Harbor Warehouse", "address": "0x…", "category": "origin"},
//	  ],
//	  "routes": [
//	    // Preferred: via the port.
//	    {"id": "wh1-dc1-a", "origin_id": "WH-1", "destination_id": "DC-1",
//	     "path": ["WH-1", "PORT-2", "DC-1"], "rank": 1},
//	  ],
//	}
//
// [Validate] checks the file as a whole before anything is written;
// [Apply] writes it in a single transaction.
package catalog

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/custody/lib/custody"
)

// Catalog is the content of one seed file.
type Catalog struct {
	Nodes  []custody.Node  `json:"nodes"`
	Routes []custody.Route `json:"routes"`
}

// Parse strips JSONC comments and trailing commas and decodes the
// result. Unknown fields are rejected so typos in seed files surface
// instead of silently dropping data.
func Parse(data []byte) (*Catalog, error) {
	decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	decoder.DisallowUnknownFields()

	var catalog Catalog
	if err := decoder.Decode(&catalog); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return &catalog, nil
}

// ReadFile reads and parses a JSONC seed file.
func ReadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	catalog, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return catalog, nil
}

// Digest is a BLAKE3 hash of the catalog's canonical JSON encoding.
// Two files with the same content, differing only in comments or
// formatting, share a digest.
func (c *Catalog) Digest() string {
	canonical, err := json.Marshal(c)
	if err != nil {
		// Every field is a plain string, int, or address.
		panic("catalog: encoding catalog: " + err.Error())
	}
	sum := blake3.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
