// Package manifest persists shard manifests in a blob store.
//
// A manifest is serialized as JSON and stored as an ordinary content-addressed blob.
// A Map records which manifest blob describes which original blob;
// the map itself is a blob too,
// so the only mutable state a caller keeps is the hash of the current map.
// Replication and publication policy stay with the caller.
package manifest

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/bobg/cas"
	"github.com/bobg/cas/shard"
)

// Map relates original-blob hashes to manifest-blob hashes.
type Map map[cas.Hash]cas.Hash

// Put serializes m and stores it as a blob, returning the manifest's own hash.
func Put(ctx context.Context, s cas.Store, m *shard.Manifest) (cas.Hash, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", errors.Wrap(err, "marshaling manifest")
	}
	res, err := s.Put(ctx, b)
	if err != nil {
		return "", errors.Wrap(err, "storing manifest")
	}
	return res.Hash, nil
}

// Get loads the manifest stored at the given hash.
func Get(ctx context.Context, g cas.Getter, manifestHash cas.Hash) (*shard.Manifest, error) {
	b, err := g.Get(ctx, manifestHash)
	if err != nil {
		return nil, errors.Wrapf(err, "getting manifest blob %s", manifestHash)
	}
	var m shard.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, cas.InvalidDataError{Reason: "malformed manifest: " + err.Error()}
	}
	if len(m.ShardHashes) != m.TotalShards {
		return nil, cas.InvalidDataError{Reason: "manifest shard count disagrees with hash list"}
	}
	return &m, nil
}

// LoadMap loads the Map stored at the given hash.
// The zero hash ("") produces an empty Map.
func LoadMap(ctx context.Context, g cas.Getter, h cas.Hash) (Map, error) {
	if h == "" {
		return make(Map), nil
	}
	b, err := g.Get(ctx, h)
	if err != nil {
		return nil, errors.Wrapf(err, "getting map blob %s", h)
	}
	var mp Map
	if err := json.Unmarshal(b, &mp); err != nil {
		return nil, cas.InvalidDataError{Reason: "malformed manifest map: " + err.Error()}
	}
	return mp, nil
}

// Save stores mp as a blob, returning the new map hash.
// Go's JSON encoder sorts map keys,
// so identical maps always produce identical blobs.
func (mp Map) Save(ctx context.Context, s cas.Store) (cas.Hash, error) {
	b, err := json.Marshal(mp)
	if err != nil {
		return "", errors.Wrap(err, "marshaling manifest map")
	}
	res, err := s.Put(ctx, b)
	if err != nil {
		return "", errors.Wrap(err, "storing manifest map")
	}
	return res.Hash, nil
}

// Add stores m and records it in mp under the manifest's BlobHash.
func (mp Map) Add(ctx context.Context, s cas.Store, m *shard.Manifest) (cas.Hash, error) {
	manifestHash, err := Put(ctx, s, m)
	if err != nil {
		return "", err
	}
	mp[m.BlobHash] = manifestHash
	return manifestHash, nil
}

// Lookup finds the manifest describing the blob with the given hash.
func (mp Map) Lookup(ctx context.Context, g cas.Getter, blobHash cas.Hash) (*shard.Manifest, error) {
	manifestHash, ok := mp[blobHash]
	if !ok {
		return nil, errors.Wrapf(cas.ErrNotFound, "no manifest for blob %s", blobHash)
	}
	return Get(ctx, g, manifestHash)
}
