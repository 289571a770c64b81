package cas

import "context"

// StoreResult is the outcome of a single Put.
type StoreResult struct {
	// Hash is the content address of the stored bytes.
	Hash Hash `json:"hash"`

	// Size is the length of the stored bytes.
	Size int64 `json:"size_bytes"`

	// ChunkCount is the number of pieces the store holds for this blob
	// (1 unless the backend chunked it internally).
	ChunkCount int `json:"chunk_count"`

	// Chunked tells whether the backend split the blob into pieces.
	Chunked bool `json:"chunked"`

	// AlreadyExisted tells whether the blob was present before the call.
	// A duplicate Put is a no-op, never an error.
	AlreadyExisted bool `json:"already_existed"`
}

// Getter is a read-only Store (qv).
type Getter interface {
	// Get gets a blob by its hash.
	// The returned bytes always match the hash;
	// a backend that reassembles from pieces verifies before returning.
	// An absent hash produces ErrNotFound.
	Get(context.Context, Hash) (Blob, error)

	// Exists is a cheap existence probe.
	// It does not verify integrity.
	Exists(context.Context, Hash) (bool, error)

	// Size is the length of the blob with the given hash,
	// without loading its bytes.
	Size(context.Context, Hash) (int64, error)
}

// Store is a blob store.
// It stores byte sequences - "blobs" - of arbitrary length.
// Each blob is retrieved using its Hash as the lookup key.
type Store interface {
	Getter

	// Put adds b to the store if it was not already present.
	Put(context.Context, Blob) (StoreResult, error)

	// Delete removes the blob with the given hash.
	// Deleting an absent hash is a no-op.
	Delete(context.Context, Hash) error
}

// Ranger is an optional interface for stores that can serve byte ranges.
type Ranger interface {
	// GetRange returns bytes [start, end) of the blob with the given hash.
	// The end offset is clamped to the blob's size.
	GetRange(ctx context.Context, h Hash, start, end int64) (Blob, error)
}

// Lister is an optional interface for stores that can enumerate their contents.
type Lister interface {
	// ListHashes calls a function for each blob hash in the store in lexicographic order,
	// beginning with the first hash _after_ the specified one.
	//
	// The calls reflect at least the set of hashes known at the moment ListHashes was called.
	// It is unspecified whether later changes,
	// that happen concurrently with ListHashes,
	// are reflected.
	//
	// If the callback function returns an error,
	// ListHashes exits with that error.
	ListHashes(ctx context.Context, after Hash, f func(Hash) error) error
}
