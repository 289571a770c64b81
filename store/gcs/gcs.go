// Package gcs implements a blob store on Google Cloud Storage.
package gcs

import (
	"context"
	stderrs "errors"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bobg/cas"
	"github.com/bobg/cas/store"
)

var (
	_ cas.Store  = &Store{}
	_ cas.Lister = &Store{}
)

// Store is a Google Cloud Storage-based implementation of a blob store.
type Store struct {
	bucket *storage.BucketHandle
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

func blobObjName(h cas.Hash) string {
	return "b:" + h.Hex()
}

func hashFromBlobObjName(name string) cas.Hash {
	return cas.Hash(cas.HashPrefix + strings.TrimPrefix(name, "b:"))
}

// Get gets the blob with the given hash.
func (s *Store) Get(ctx context.Context, h cas.Hash) (cas.Blob, error) {
	name := blobObjName(h)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, errors.Wrapf(cas.ErrNotFound, "blob %s", h)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading info of object %s", name)
	}
	defer r.Close()

	b := make([]byte, r.Attrs.Size)
	_, err = io.ReadFull(r, b)
	return b, errors.Wrapf(err, "reading contents of object %s", name)
}

// Exists tells whether the store holds the given hash.
func (s *Store) Exists(ctx context.Context, h cas.Hash) (bool, error) {
	_, err := s.bucket.Object(blobObjName(h)).Attrs(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return err == nil, errors.Wrapf(err, "getting object attrs for %s", h)
}

// Size is the length of the blob with the given hash.
func (s *Store) Size(ctx context.Context, h cas.Hash) (int64, error) {
	attrs, err := s.bucket.Object(blobObjName(h)).Attrs(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return 0, errors.Wrapf(cas.ErrNotFound, "blob %s", h)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "getting object attrs for %s", h)
	}
	return attrs.Size, nil
}

// Put adds a blob to the store if it wasn't already present.
// The DoesNotExist precondition makes duplicate puts a no-op on the server side.
func (s *Store) Put(ctx context.Context, b cas.Blob) (cas.StoreResult, error) {
	var (
		h    = b.Hash()
		name = blobObjName(h)
		obj  = s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true})
		w    = obj.NewWriter(ctx)
	)
	res := cas.StoreResult{
		Hash:       h,
		Size:       int64(len(b)),
		ChunkCount: 1,
	}

	_, err := w.Write(b)
	if err == nil {
		// The DoesNotExist precondition surfaces on Close.
		err = w.Close()
	} else {
		w.Close()
	}
	var e *googleapi.Error
	if stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed {
		res.AlreadyExisted = true
		return res, nil
	}
	return res, errors.Wrapf(err, "writing object %s", name)
}

// Delete removes the blob with the given hash, if present.
func (s *Store) Delete(ctx context.Context, h cas.Hash) error {
	err := s.bucket.Object(blobObjName(h)).Delete(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return errors.Wrapf(err, "deleting object for %s", h)
}

// ListHashes produces all blob hashes in the store, in lexicographic order.
func (s *Store) ListHashes(ctx context.Context, after cas.Hash, f func(cas.Hash) error) error {
	// Google Cloud Storage iterators have no API for starting in the middle of a bucket.
	// But they can filter by object-name prefix.
	// So we take (the hex digest of) `after` and repeatedly compute prefixes for the objects we want.
	// If `after` is e67a, for example, the sequence of generated prefixes is:
	//   e67b e67c e67d e67e e67f
	//   e68 e69 e6a e6b e6c e6d e6e e6f
	//   e7 e8 e9 ea eb ec ed ee ef
	//   f
	if after == "" {
		return s.listHashes(ctx, "", f)
	}
	return eachHexPrefix(after.Hex(), false, func(prefix string) error {
		return s.listHashes(ctx, prefix, f)
	})
}

func (s *Store) listHashes(ctx context.Context, prefix string, f func(cas.Hash) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: "b:" + prefix})
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		if err = f(hashFromBlobObjName(obj.Name)); err != nil {
			return err
		}
	}
}

func eachHexPrefix(prefix string, incl bool, f func(string) error) error {
	prefix = strings.ToLower(prefix)
	for len(prefix) > 0 {
		end := hexval(prefix[len(prefix)-1:][0])
		if !incl {
			end++
		}
		prefix = prefix[:len(prefix)-1]
		for c := end; c < 16; c++ {
			err := f(prefix + string(hexdigit(c)))
			if err != nil {
				return err
			}
		}
		incl = true
	}
	return nil
}

func hexval(b byte) int {
	switch {
	case '0' <= b && b <= '9':
		return int(b - '0')
	case 'a' <= b && b <= 'f':
		return int(10 + b - 'a')
	}
	return 0
}

func hexdigit(n int) byte {
	if n < 10 {
		return byte('0' + n)
	}
	return byte('a' + n - 10)
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (cas.Store, error) {
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}

		var opts []option.ClientOption
		if creds, ok := conf["creds"].(string); ok {
			opts = append(opts, option.WithCredentialsFile(creds))
		}

		c, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "creating gcs client")
		}
		return New(c.Bucket(bucketName)), nil
	})
}
