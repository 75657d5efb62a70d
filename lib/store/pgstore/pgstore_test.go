// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package pgstore_test

import (
	"context"
	"testing"

	"github.com/bureau-foundation/custody/lib/store/pgstore"
	"github.com/bureau-foundation/custody/lib/store/storetest"
	"github.com/bureau-foundation/custody/lib/testutil"
)

func TestConformance(t *testing.T) {
	url := testutil.PostgresURL(t)
	storetest.Run(t, func(t *testing.T) storetest.Store {
		schema := testutil.UniqueName("custody_test")
		store, err := pgstore.Open(context.Background(), pgstore.Config{URL: url, Schema: schema})
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() {
			store.DropSchema(context.Background(), schema)
			store.Close()
		})
		return store
	})
}
