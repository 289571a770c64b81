package shard

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
	"github.com/pkg/errors"

	"github.com/bobg/cas"
)

// Reconstruct recovers a blob's original bytes from a partial shard set.
// The shards slice is indexed positionally like the manifest's ShardHashes;
// a nil entry marks a missing shard.
//
// For encoding "none" the single shard must be present.
// For "chunked" every shard must be present (there is no redundancy);
// the first missing index is named in the error.
// For Reed-Solomon at least DataShards entries must be present;
// missing data shards are regenerated,
// and losing any combination of up to parity-many shards is tolerated.
func (e *Encoder) Reconstruct(m *Manifest, shards [][]byte) ([]byte, error) {
	if len(shards) != m.TotalShards {
		return nil, cas.InvalidDataError{
			Reason: fmt.Sprintf("got %d shard slots, manifest declares %d", len(shards), m.TotalShards),
		}
	}

	switch m.Encoding {
	case None:
		if shards[0] == nil {
			return nil, errors.Wrap(cas.ErrNotFound, "missing shard 0")
		}
		return shards[0], nil

	case Chunked:
		data := make([]byte, 0, m.TotalSize)
		for i, s := range shards {
			if s == nil {
				return nil, errors.Wrapf(cas.ErrNotFound, "missing shard %d", i)
			}
			data = append(data, s...)
		}
		return truncate(data, m.TotalSize), nil
	}

	d, total, ok := m.Encoding.RSParams()
	if !ok {
		return nil, cas.InvalidDataError{Reason: "unknown encoding " + string(m.Encoding)}
	}
	if d != m.DataShards || total != m.TotalShards {
		return nil, cas.InvalidDataError{Reason: "encoding label disagrees with manifest shard counts"}
	}

	present := 0
	for _, s := range shards {
		if s != nil {
			present++
		}
	}
	if present < d {
		return nil, cas.InvalidDataError{
			Reason: fmt.Sprintf("need at least %d shards, only have %d", d, present),
		}
	}

	rs, err := reedsolomon.New(d, total-d)
	if err != nil {
		return nil, errors.Wrap(err, "creating reed-solomon codec")
	}

	// ReconstructData fills in missing data shards in place;
	// work on a copy so the caller's slice is untouched.
	work := make([][]byte, len(shards))
	copy(work, shards)
	if err := rs.ReconstructData(work); err != nil {
		return nil, errors.Wrap(err, "reconstructing data shards")
	}

	data := make([]byte, 0, m.TotalSize)
	for i := 0; i < d; i++ {
		data = append(data, work[i]...)
	}
	return truncate(data, m.TotalSize), nil
}

func truncate(data []byte, size int64) []byte {
	if int64(len(data)) > size {
		return data[:size]
	}
	return data
}
