// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package memstore_test

import (
	"testing"

	"github.com/bureau-foundation/custody/lib/store/memstore"
	"github.com/bureau-foundation/custody/lib/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) storetest.Store { return memstore.New() })
}
