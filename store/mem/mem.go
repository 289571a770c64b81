// Package mem implements an in-memory blob store.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/bobg/cas"
	"github.com/bobg/cas/store"
)

var (
	_ cas.Store  = &Store{}
	_ cas.Ranger = &Store{}
	_ cas.Lister = &Store{}
)

// Store is a memory-based implementation of a blob store.
type Store struct {
	mu    sync.Mutex
	blobs map[cas.Hash]cas.Blob
}

// New produces a new Store.
func New() *Store {
	return &Store{blobs: make(map[cas.Hash]cas.Blob)}
}

// Get gets the blob with the given hash.
func (s *Store) Get(_ context.Context, h cas.Hash) (cas.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.blobs[h]; ok {
		return b, nil
	}
	return nil, cas.ErrNotFound
}

// GetRange returns bytes [start, end) of the blob with the given hash.
func (s *Store) GetRange(ctx context.Context, h cas.Hash, start, end int64) (cas.Blob, error) {
	if start < 0 || end < start {
		return nil, cas.InvalidDataError{Reason: "bad byte range"}
	}
	b, err := s.Get(ctx, h)
	if err != nil {
		return nil, err
	}
	size := int64(len(b))
	if start >= size {
		return cas.Blob{}, nil
	}
	if end > size {
		end = size
	}
	return b[start:end], nil
}

// Exists tells whether the store holds the given hash.
func (s *Store) Exists(_ context.Context, h cas.Hash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.blobs[h]
	return ok, nil
}

// Size is the length of the blob with the given hash.
func (s *Store) Size(_ context.Context, h cas.Hash) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.blobs[h]; ok {
		return int64(len(b)), nil
	}
	return 0, cas.ErrNotFound
}

// Put adds a blob to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, b cas.Blob) (cas.StoreResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := b.Hash()
	res := cas.StoreResult{
		Hash:       h,
		Size:       int64(len(b)),
		ChunkCount: 1,
	}
	if _, ok := s.blobs[h]; ok {
		res.AlreadyExisted = true
		return res, nil
	}
	s.blobs[h] = b
	return res, nil
}

// Delete removes the blob with the given hash, if present.
func (s *Store) Delete(_ context.Context, h cas.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blobs, h)
	return nil
}

// ListHashes produces all blob hashes in the store, in lexicographic order.
func (s *Store) ListHashes(_ context.Context, after cas.Hash, f func(cas.Hash) error) error {
	s.mu.Lock()
	hashes := make([]cas.Hash, 0, len(s.blobs))
	for h := range s.blobs {
		hashes = append(hashes, h)
	}
	s.mu.Unlock()

	sort.Slice(hashes, func(i, j int) bool { return hashes[i].Less(hashes[j]) })
	index := sort.Search(len(hashes), func(n int) bool {
		return after.Less(hashes[n])
	})

	for i := index; i < len(hashes); i++ {
		if err := f(hashes[i]); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (cas.Store, error) {
		return New(), nil
	})
}
