package shard

import (
	"time"

	"github.com/bobg/cas"
)

// Manifest is the durable description of how one logical blob decomposes.
// It is designed to be published or persisted elsewhere (e.g. a DHT or database)
// while the shard bytes themselves live in a blob store;
// this package only produces and consumes manifest values, never stores them.
//
// Invariant: len(ShardHashes) == TotalShards.
type Manifest struct {
	// ContentID is the CIDv1 of the blob, for interoperability.
	ContentID string `json:"content_id"`

	// BlobHash is the content address of the original blob.
	BlobHash cas.Hash `json:"blob_hash"`

	// TotalSize is the size of the original blob in bytes.
	TotalSize int64 `json:"total_size"`

	// MIMEType is the media type of the blob (video/mp4, audio/mpeg, etc.).
	MIMEType string `json:"mime_type"`

	// Encoding names the decomposition (none, chunked, rs-4-7, ...).
	Encoding Encoding `json:"encoding"`

	// DataShards is the minimum number of shards needed to reconstruct.
	DataShards int `json:"data_shards"`

	// TotalShards is the number of shards, data plus parity.
	TotalShards int `json:"total_shards"`

	// ShardSize is the size of each shard in bytes
	// (the last chunked shard may be shorter).
	ShardSize int64 `json:"shard_size"`

	// ShardHashes is the ordered list of shard content addresses.
	ShardHashes []cas.Hash `json:"shard_hashes"`

	// Reach is the visibility level of the blob.
	Reach string `json:"reach"`

	// AuthorID identifies the publishing agent, when known.
	AuthorID string `json:"author_id,omitempty"`

	// CreatedAt is when the manifest was created (RFC 3339).
	CreatedAt string `json:"created_at"`

	// VerifiedAt is when the shard set was last verified against ShardHashes.
	VerifiedAt string `json:"verified_at,omitempty"`
}

// CreateManifest builds the manifest for a blob.
// The encoding comes from DetermineEncoding;
// shard hashes are computed per mode,
// and for a single-shard blob the one shard hash equals BlobHash.
func (e *Encoder) CreateManifest(data []byte, mimeType, reach string) (*Manifest, error) {
	var (
		contentID, blobHash = cas.Addresses(data)
		totalSize           = int64(len(data))
		encoding            = e.DetermineEncoding(totalSize)
	)

	m := &Manifest{
		ContentID: contentID.String(),
		BlobHash:  blobHash,
		TotalSize: totalSize,
		MIMEType:  mimeType,
		Encoding:  encoding,
		Reach:     reach,
	}

	switch encoding {
	case None:
		m.DataShards = 1
		m.TotalShards = 1
		m.ShardSize = totalSize
		m.ShardHashes = []cas.Hash{blobHash}

	case Chunked:
		shards, err := e.CreateShards(data, encoding)
		if err != nil {
			return nil, err
		}
		m.DataShards = len(shards)
		m.TotalShards = len(shards)
		m.ShardSize = e.conf.ShardSize
		m.ShardHashes = hashAll(shards)

	default:
		d, total, ok := encoding.RSParams()
		if !ok {
			return nil, cas.InvalidDataError{Reason: "unknown encoding " + string(encoding)}
		}
		shards, err := e.CreateShards(data, encoding)
		if err != nil {
			return nil, err
		}
		m.DataShards = d
		m.TotalShards = total
		m.ShardSize = int64(len(shards[0]))
		m.ShardHashes = hashAll(shards)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	m.CreatedAt = now
	m.VerifiedAt = now

	return m, nil
}

func hashAll(shards [][]byte) []cas.Hash {
	hashes := make([]cas.Hash, 0, len(shards))
	for _, s := range shards {
		hashes = append(hashes, cas.Sum(s))
	}
	return hashes
}

// Verify checks each present shard against its manifest hash.
// Missing entries (nil) are skipped.
func (m *Manifest) Verify(shards [][]byte) error {
	if len(shards) != len(m.ShardHashes) {
		return cas.InvalidDataError{Reason: "shard count does not match manifest"}
	}
	for i, s := range shards {
		if s == nil {
			continue
		}
		if got := cas.Sum(s); got != m.ShardHashes[i] {
			return cas.MismatchError{Expected: m.ShardHashes[i], Actual: got}
		}
	}
	return nil
}
