// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"
	"log"

	"github.com/bobg/cas"
)

var _ cas.Store = &Store{}

type Store struct {
	s cas.Store
}

func New(s cas.Store) *Store {
	return &Store{s: s}
}

func (s *Store) Get(ctx context.Context, h cas.Hash) (cas.Blob, error) {
	b, err := s.s.Get(ctx, h)
	if err != nil {
		log.Printf("ERROR Get %s: %s", h.Short(), err)
	} else {
		log.Printf("Get %s (%d bytes)", h.Short(), len(b))
	}
	return b, err
}

func (s *Store) Exists(ctx context.Context, h cas.Hash) (bool, error) {
	ok, err := s.s.Exists(ctx, h)
	if err != nil {
		log.Printf("ERROR Exists %s: %s", h.Short(), err)
	} else {
		log.Printf("Exists %s: %v", h.Short(), ok)
	}
	return ok, err
}

func (s *Store) Size(ctx context.Context, h cas.Hash) (int64, error) {
	n, err := s.s.Size(ctx, h)
	if err != nil {
		log.Printf("ERROR Size %s: %s", h.Short(), err)
	} else {
		log.Printf("Size %s: %d", h.Short(), n)
	}
	return n, err
}

func (s *Store) Put(ctx context.Context, b cas.Blob) (cas.StoreResult, error) {
	res, err := s.s.Put(ctx, b)
	if err != nil {
		log.Printf("ERROR in Put: %s", err)
	} else {
		log.Printf("Put %s, existed=%v chunked=%v", res.Hash.Short(), res.AlreadyExisted, res.Chunked)
	}
	return res, err
}

func (s *Store) Delete(ctx context.Context, h cas.Hash) error {
	err := s.s.Delete(ctx, h)
	if err != nil {
		log.Printf("ERROR Delete %s: %s", h.Short(), err)
	} else {
		log.Printf("Delete %s", h.Short())
	}
	return err
}

// GetRange delegates to the nested store when it serves ranges.
func (s *Store) GetRange(ctx context.Context, h cas.Hash, start, end int64) (cas.Blob, error) {
	if start < 0 || end < start {
		return nil, cas.InvalidDataError{Reason: "bad byte range"}
	}
	r, ok := s.s.(cas.Ranger)
	if !ok {
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
	b, err := r.GetRange(ctx, h, start, end)
	if err != nil {
		log.Printf("ERROR GetRange %s [%d,%d): %s", h.Short(), start, end, err)
	} else {
		log.Printf("GetRange %s [%d,%d)", h.Short(), start, end)
	}
	return b, err
}

// ListHashes delegates to the nested store when it can enumerate.
func (s *Store) ListHashes(ctx context.Context, after cas.Hash, f func(cas.Hash) error) error {
	l, ok := s.s.(cas.Lister)
	if !ok {
		return cas.InvalidDataError{Reason: "nested store cannot list hashes"}
	}
	log.Printf("ListHashes, after=%s", after.Short())
	return l.ListHashes(ctx, after, func(h cas.Hash) error {
		err := f(h)
		if err != nil {
			log.Printf("  ERROR in ListHashes: %s: %s", h.Short(), err)
		}
		return err
	})
}
