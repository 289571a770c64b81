// Package file implements a blob store as a file hierarchy.
//
// Layout: the blob with hash sha256-<hex> lives at blobs/<hex[:4]>/sha256-<hex>,
// bounding per-directory entry counts.
// A blob larger than the single-file limit is split into fixed-size pieces
// stored under a sibling directory named <canonical>.d,
// with a JSON index at <canonical>.chunks
// and a 7-byte sentinel at the canonical path.
// The sentinel is written strictly last,
// so a reader that observes it can trust the chunk set is complete.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bobg/flock"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/bobg/cas"
	"github.com/bobg/cas/store"
)

// Sentinel is the marker written at the canonical path of a chunked blob.
const Sentinel = "CHUNKED"

const (
	// DefaultChunkSize is the size of each piece of a chunked blob.
	DefaultChunkSize = 1 << 20

	// DefaultSingleMax is the largest blob stored as a single file.
	DefaultSingleMax = 16 << 20
)

var (
	_ cas.Store  = &Store{}
	_ cas.Ranger = &Store{}
	_ cas.Lister = &Store{}
)

// Store is a file-based implementation of a blob store.
type Store struct {
	root      string
	singleMax int64
	chunkSize int64
	flocker   flock.Locker
}

// New produces a new Store storing data beneath `root`.
func New(root string) *Store {
	return NewWithSizes(root, DefaultSingleMax, DefaultChunkSize)
}

// NewWithSizes is New with explicit chunking bounds.
// Blobs larger than singleMax are split into chunkSize-byte pieces.
func NewWithSizes(root string, singleMax, chunkSize int64) *Store {
	return &Store{root: root, singleMax: singleMax, chunkSize: chunkSize}
}

func (s *Store) blobroot() string {
	return filepath.Join(s.root, "blobs")
}

func (s *Store) blobpath(h cas.Hash) string {
	hx := h.Hex()
	if len(hx) > 4 {
		hx = hx[:4]
	}
	return filepath.Join(s.blobroot(), hx, string(h))
}

func (s *Store) chunkdir(h cas.Hash) string {
	return s.blobpath(h) + ".d"
}

func (s *Store) indexpath(h cas.Hash) string {
	return s.blobpath(h) + ".chunks"
}

func (s *Store) lockpath(h cas.Hash) string {
	return s.blobpath(h) + ".lock"
}

func chunkname(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("%08d", i))
}

// chunkIndex is the sidecar record describing a chunked blob.
type chunkIndex struct {
	Hash        cas.Hash   `json:"hash"`
	SizeBytes   int64      `json:"size_bytes"`
	ChunkCount  int        `json:"chunk_count"`
	ChunkSize   int64      `json:"chunk_size"`
	ChunkHashes []cas.Hash `json:"chunk_hashes"`
}

// Put adds a blob to the store if it wasn't already present.
// Blobs larger than the single-file limit are chunked transparently.
func (s *Store) Put(_ context.Context, b cas.Blob) (cas.StoreResult, error) {
	var (
		h    = b.Hash()
		path = s.blobpath(h)
		dir  = filepath.Dir(path)
		size = int64(len(b))
	)

	res := cas.StoreResult{
		Hash:       h,
		Size:       size,
		ChunkCount: 1,
	}
	if size > s.singleMax {
		res.Chunked = true
		res.ChunkCount = int((size + s.chunkSize - 1) / s.chunkSize)
	}

	if _, err := os.Stat(path); err == nil {
		res.AlreadyExisted = true
		return res, nil
	} else if !os.IsNotExist(err) {
		return res, errors.Wrapf(err, "statting %s", path)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return res, errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	if !res.Chunked {
		return res, s.writeAtomic(path, b)
	}
	return res, s.putChunked(h, b)
}

// putChunked stores b as numbered pieces plus an index sidecar,
// then marks the canonical path with the sentinel.
// The sentinel write must come last:
// a concurrent reader that sees it must never find an incomplete chunk set.
func (s *Store) putChunked(h cas.Hash, b cas.Blob) error {
	lockpath := s.lockpath(h)
	if err := s.flocker.Lock(lockpath); err != nil {
		return errors.Wrapf(err, "locking %s", lockpath)
	}
	defer s.flocker.Unlock(lockpath)

	dir := s.chunkdir(h)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "ensuring chunk dir %s exists", dir)
	}

	var (
		size   = int64(len(b))
		count  = int((size + s.chunkSize - 1) / s.chunkSize)
		hashes = make([]cas.Hash, 0, count)
	)
	for i := 0; i < count; i++ {
		start := int64(i) * s.chunkSize
		end := start + s.chunkSize
		if end > size {
			end = size
		}
		chunk := b[start:end]
		hashes = append(hashes, cas.Sum(chunk))
		if err := s.writeAtomic(chunkname(dir, i), chunk); err != nil {
			return errors.Wrapf(err, "writing chunk %d of %s", i, h)
		}
	}

	index := chunkIndex{
		Hash:        h,
		SizeBytes:   size,
		ChunkCount:  count,
		ChunkSize:   s.chunkSize,
		ChunkHashes: hashes,
	}
	indexJSON, err := json.Marshal(index)
	if err != nil {
		return errors.Wrap(err, "marshaling chunk index")
	}
	if err := s.writeAtomic(s.indexpath(h), indexJSON); err != nil {
		return errors.Wrapf(err, "writing chunk index for %s", h)
	}

	return errors.Wrapf(s.writeAtomic(s.blobpath(h), []byte(Sentinel)), "writing sentinel for %s", h)
}

// writeAtomic writes data to a temp file in path's directory
// and renames it into place.
// A bare write is not crash-atomic; a rename is.
func (s *Store) writeAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file for %s", path)
	}
	tmp := f.Name()
	_, err = f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "writing temp file for %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "renaming into %s", path)
	}
	return nil
}

// Get gets the blob with the given hash.
// A chunked blob is reassembled and its hash recomputed;
// bytes that fail to match are never returned.
func (s *Store) Get(ctx context.Context, h cas.Hash) (cas.Blob, error) {
	path := s.blobpath(h)
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(cas.ErrNotFound, "blob %s", h)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	if !s.isChunked(h, content) {
		return content, nil
	}
	return s.getChunked(ctx, h)
}

// isChunked tells whether canonical-path content marks a chunked blob.
// Matching the sentinel bytes alone would misread a genuine 7-byte blob
// whose content happens to equal the marker,
// so the index sidecar must exist too.
func (s *Store) isChunked(h cas.Hash, content []byte) bool {
	if !bytes.Equal(content, []byte(Sentinel)) {
		return false
	}
	_, err := os.Stat(s.indexpath(h))
	return err == nil
}

func (s *Store) readIndex(h cas.Hash) (chunkIndex, error) {
	var index chunkIndex
	indexJSON, err := os.ReadFile(s.indexpath(h))
	if err != nil {
		return index, errors.Wrapf(err, "reading chunk index for %s", h)
	}
	err = json.Unmarshal(indexJSON, &index)
	return index, errors.Wrapf(err, "parsing chunk index for %s", h)
}

func (s *Store) getChunked(ctx context.Context, h cas.Hash) (cas.Blob, error) {
	index, err := s.readIndex(h)
	if err != nil {
		return nil, err
	}

	var (
		dir    = s.chunkdir(h)
		chunks = make([][]byte, index.ChunkCount)
		g, _   = errgroup.WithContext(ctx)
	)
	for i := 0; i < index.ChunkCount; i++ {
		i := i
		g.Go(func() error {
			chunk, err := os.ReadFile(chunkname(dir, i))
			chunks[i] = chunk
			return errors.Wrapf(err, "reading chunk %d of %s", i, h)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data := make([]byte, 0, index.SizeBytes)
	for _, chunk := range chunks {
		data = append(data, chunk...)
	}

	if got := cas.Sum(data); got != h {
		return nil, cas.MismatchError{Expected: h, Actual: got}
	}
	return data, nil
}

// GetRange returns bytes [start, end) of a blob.
// For a chunked blob only the covering chunk files are read;
// range reads skip whole-blob verification
// (Get remains the verifying path).
func (s *Store) GetRange(ctx context.Context, h cas.Hash, start, end int64) (cas.Blob, error) {
	if start < 0 || end < start {
		return nil, cas.InvalidDataError{Reason: "bad byte range"}
	}

	path := s.blobpath(h)
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrapf(cas.ErrNotFound, "blob %s", h)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}

	if !s.isChunked(h, content) {
		return slice(content, start, end), nil
	}

	index, err := s.readIndex(h)
	if err != nil {
		return nil, err
	}
	if index.ChunkSize <= 0 {
		return nil, cas.InvalidDataError{Reason: "chunk index declares nonpositive chunk size"}
	}
	if start >= index.SizeBytes {
		return cas.Blob{}, nil
	}
	if end > index.SizeBytes {
		end = index.SizeBytes
	}

	var (
		dir   = s.chunkdir(h)
		first = int(start / index.ChunkSize)
		last  = int((end - 1) / index.ChunkSize)
		data  = make([]byte, 0, end-start)
	)
	for i := first; i <= last; i++ {
		chunk, err := os.ReadFile(chunkname(dir, i))
		if err != nil {
			return nil, errors.Wrapf(err, "reading chunk %d of %s", i, h)
		}
		var (
			chunkStart = int64(i) * index.ChunkSize
			lo         = int64(0)
			hi         = int64(len(chunk))
		)
		if start > chunkStart {
			lo = start - chunkStart
		}
		if end < chunkStart+hi {
			hi = end - chunkStart
		}
		data = append(data, chunk[lo:hi]...)
	}
	return data, nil
}

func slice(content []byte, start, end int64) cas.Blob {
	size := int64(len(content))
	if start >= size {
		return cas.Blob{}
	}
	if end > size {
		end = size
	}
	return cas.Blob(content[start:end])
}

// Exists stats the canonical path only;
// it does not verify chunked integrity.
func (s *Store) Exists(_ context.Context, h cas.Hash) (bool, error) {
	_, err := os.Stat(s.blobpath(h))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, errors.Wrapf(err, "statting %s", s.blobpath(h))
}

// Size is the blob's length.
// For a chunked blob the canonical file holds only the sentinel,
// so the declared size comes from the index sidecar.
func (s *Store) Size(_ context.Context, h cas.Hash) (int64, error) {
	path := s.blobpath(h)
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, errors.Wrapf(cas.ErrNotFound, "blob %s", h)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "statting %s", path)
	}

	if info.Size() == int64(len(Sentinel)) {
		content, err := os.ReadFile(path)
		if err != nil {
			return 0, errors.Wrapf(err, "opening %s", path)
		}
		if s.isChunked(h, content) {
			index, err := s.readIndex(h)
			if err != nil {
				return 0, err
			}
			return index.SizeBytes, nil
		}
	}

	return info.Size(), nil
}

// Delete removes a blob.
// For a chunked blob the chunk directory and index go first,
// then the canonical path.
// Deleting an absent blob is a no-op.
func (s *Store) Delete(_ context.Context, h cas.Hash) error {
	path := s.blobpath(h)
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}

	if s.isChunked(h, content) {
		os.RemoveAll(s.chunkdir(h))
		os.Remove(s.indexpath(h))
	}
	os.Remove(s.lockpath(h))

	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "removing %s", path)
}

// ListHashes produces all blob hashes in the store, in lexicographic order.
func (s *Store) ListHashes(ctx context.Context, after cas.Hash, f func(cas.Hash) error) error {
	err := os.MkdirAll(s.blobroot(), 0755)
	if err != nil {
		return errors.Wrapf(err, "ensuring %s exists", s.blobroot())
	}

	topLevel, err := os.ReadDir(s.blobroot())
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", s.blobroot())
	}

	afterHex := after.Hex()
	topIndex := 0
	if len(afterHex) >= 4 {
		topIndex = sort.Search(len(topLevel), func(n int) bool {
			return topLevel[n].Name() >= afterHex[:4]
		})
	}
	for i := topIndex; i < len(topLevel); i++ {
		topInfo := topLevel[i]
		if !topInfo.IsDir() {
			continue
		}
		topName := topInfo.Name()
		if len(topName) != 4 {
			continue
		}

		entries, err := os.ReadDir(filepath.Join(s.blobroot(), topName))
		if err != nil {
			return errors.Wrapf(err, "reading dir %s/%s", s.blobroot(), topName)
		}

		index := sort.Search(len(entries), func(n int) bool {
			return cas.Hash(entries[n].Name()) > after
		})
		for j := index; j < len(entries); j++ {
			entry := entries[j]
			if entry.IsDir() {
				continue
			}
			h := cas.Hash(entry.Name())
			if !h.Valid() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := f(h); err != nil {
				return err
			}
		}
	}
	return nil
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (cas.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
