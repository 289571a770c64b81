package testutil

import (
	"context"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/bobg/cas"
)

// AllHashes writes a random set of random blobs to an empty store
// and makes sure that the right set of hashes comes back in a call to ListHashes.
// The store produced by storeFactory must implement cas.Lister.
func AllHashes(ctx context.Context, t *testing.T, storeFactory func() cas.Store) {
	if err := quick.Check(allHashesHelper(ctx, t, storeFactory), nil); err != nil {
		t.Error(err)
	}
}

func allHashesHelper(ctx context.Context, t *testing.T, storeFactory func() cas.Store) func([][]byte) bool {
	return func(blobs [][]byte) bool {
		var (
			store = storeFactory()
			want  []cas.Hash
		)
		for _, blob := range blobs {
			res, err := store.Put(ctx, blob)
			if err != nil {
				t.Fatal(err)
			}
			if !res.AlreadyExisted {
				want = append(want, res.Hash)
			}
		}

		lister, ok := store.(cas.Lister)
		if !ok {
			t.Fatal("store does not implement cas.Lister")
		}

		var got []cas.Hash
		err := lister.ListHashes(ctx, "", func(h cas.Hash) error {
			got = append(got, h)
			return nil
		})
		if err != nil {
			t.Fatal(err)
		}

		sort.Slice(want, func(i, j int) bool { return want[i].Less(want[j]) })
		sort.Slice(got, func(i, j int) bool { return got[i].Less(got[j]) })

		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}
}
