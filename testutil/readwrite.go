// Package testutil has helpers for testing blob-store implementations.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/bobg/cas"
)

// ReadWrite runs a store through the basic contract:
// put, duplicate put, get, exists, size, delete, delete again.
func ReadWrite(ctx context.Context, t *testing.T, store cas.Store, data []byte) {
	res, err := store.Put(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	if res.Hash != cas.Sum(data) {
		t.Errorf("got hash %s, want %s", res.Hash, cas.Sum(data))
	}
	if res.Size != int64(len(data)) {
		t.Errorf("got size %d, want %d", res.Size, len(data))
	}
	if res.AlreadyExisted {
		t.Error("first put reports already_existed")
	}

	res2, err := store.Put(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	if !res2.AlreadyExisted {
		t.Error("second put does not report already_existed")
	}
	if res2.Hash != res.Hash {
		t.Errorf("second put hash %s differs from first %s", res2.Hash, res.Hash)
	}

	got, err := store.Get(ctx, res.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("got wrong bytes back")
	}

	ok, err := store.Exists(ctx, res.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("stored blob does not exist")
	}

	size, err := store.Size(ctx, res.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if size != int64(len(data)) {
		t.Errorf("got size %d, want %d", size, len(data))
	}

	if err = store.Delete(ctx, res.Hash); err != nil {
		t.Fatal(err)
	}
	ok, err = store.Exists(ctx, res.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("deleted blob still exists")
	}

	// Delete is idempotent.
	if err = store.Delete(ctx, res.Hash); err != nil {
		t.Errorf("second delete: %s", err)
	}
}

// Missing checks the not-found behavior for a hash the store has never seen.
func Missing(ctx context.Context, t *testing.T, store cas.Store) {
	absent := cas.Sum([]byte("this blob is never stored"))

	_, err := store.Get(ctx, absent)
	if !errors.Is(err, cas.ErrNotFound) {
		t.Errorf("Get of absent hash: got %v, want ErrNotFound", err)
	}

	_, err = store.Size(ctx, absent)
	if !errors.Is(err, cas.ErrNotFound) {
		t.Errorf("Size of absent hash: got %v, want ErrNotFound", err)
	}

	ok, err := store.Exists(ctx, absent)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("absent hash exists")
	}
}
