package transfer

import (
	"context"
	stderrs "errors"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/cas"
	"github.com/bobg/cas/shard"
)

// Peer is the requester's view of the transfer contract.
// Client implements it over HTTP;
// other transports can supply their own implementation.
type Peer interface {
	Get(context.Context, cas.Hash) (cas.Blob, error)
	Have(context.Context, cas.Hash) (bool, error)
	Push(ctx context.Context, h cas.Hash, data []byte) error
}

// FetchResult reports what Fetch did beyond returning the bytes.
type FetchResult struct {
	// Data is the reconstructed original blob.
	Data []byte

	// Fetched lists shard indexes obtained from the peer.
	Fetched []int

	// Regenerated lists shard indexes recovered by erasure decoding
	// rather than obtained from anywhere.
	Regenerated []int

	// ShardErrs collects per-shard fetch failures.
	// Failures are not fatal as long as enough shards remain;
	// retry and peer-substitution policy belong to the caller.
	ShardErrs map[int]error
}

// Fetch is the self-healing primitive:
// it assembles the shard set for a manifest from the local store and one peer,
// reconstructs the original blob,
// persists any missing shards locally to restore full redundancy,
// and, when pushBack is set, offers regenerated shards back to the peer.
//
// Shards already held locally are not re-fetched.
// A shard whose bytes fail to match its manifest hash is discarded
// and recorded in ShardErrs, never used or stored.
func Fetch(ctx context.Context, peer Peer, enc *shard.Encoder, m *shard.Manifest, local cas.Store, pushBack bool) (*FetchResult, error) {
	if len(m.ShardHashes) != m.TotalShards {
		return nil, cas.InvalidDataError{
			Reason: fmt.Sprintf("manifest declares %d shards but lists %d hashes", m.TotalShards, len(m.ShardHashes)),
		}
	}

	res := &FetchResult{ShardErrs: make(map[int]error)}

	var (
		shards  = make([][]byte, m.TotalShards)
		present = 0
		needed  = m.DataShards
	)

	for i, h := range m.ShardHashes {
		b, err := local.Get(ctx, h)
		if err == nil {
			shards[i] = b
			present++
			continue
		}
		if !stderrs.Is(err, cas.ErrNotFound) {
			res.ShardErrs[i] = err
		}
	}

	for i, h := range m.ShardHashes {
		if present >= needed {
			break
		}
		if shards[i] != nil {
			continue
		}

		ok, err := peer.Have(ctx, h)
		if err != nil {
			res.ShardErrs[i] = err
			continue
		}
		if !ok {
			res.ShardErrs[i] = errors.Wrapf(cas.ErrNotFound, "peer lacks shard %d", i)
			continue
		}

		b, err := peer.Get(ctx, h)
		if err != nil {
			res.ShardErrs[i] = err
			continue
		}
		if got := cas.Sum(b); got != h {
			res.ShardErrs[i] = cas.MismatchError{Expected: h, Actual: got}
			continue
		}

		shards[i] = b
		res.Fetched = append(res.Fetched, i)
		present++
	}

	if present < needed {
		return res, cas.InvalidDataError{
			Reason: fmt.Sprintf("need at least %d shards, only have %d", needed, present),
		}
	}

	data, err := enc.Reconstruct(m, shards)
	if err != nil {
		return res, err
	}
	if got := cas.Sum(data); got != m.BlobHash {
		return res, cas.MismatchError{Expected: m.BlobHash, Actual: got}
	}
	res.Data = data

	// Restore full local redundancy: regenerate the complete shard set
	// and persist every piece the local store was missing.
	full, err := enc.CreateShards(data, m.Encoding)
	if err != nil {
		return res, err
	}
	for i, b := range full {
		if shards[i] == nil {
			res.Regenerated = append(res.Regenerated, i)
		}
		if _, err := local.Put(ctx, b); err != nil {
			return res, errors.Wrapf(err, "storing shard %d", i)
		}
	}

	if pushBack {
		for _, i := range res.Regenerated {
			if err := peer.Push(ctx, m.ShardHashes[i], full[i]); err != nil {
				res.ShardErrs[i] = err
			}
		}
	}

	return res, nil
}
