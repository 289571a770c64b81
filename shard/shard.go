// Package shard decides how a blob decomposes into independently addressable pieces.
//
// Every blob gets a manifest, even a single-shard one,
// so callers handle all three cases uniformly:
// one shard holding the whole blob ("none"),
// N sequential pieces with no redundancy ("chunked"),
// or D data plus P parity pieces under systematic Reed-Solomon coding ("rs-D-T"),
// where any D of the T=D+P shards suffice to recover the original bytes.
//
// The package is purely computational: it never touches disk.
// Shards are ordinary blobs, stored and fetched through a cas.Store.
package shard

import (
	"fmt"
	"strings"

	"github.com/klauspost/reedsolomon"
	"github.com/pkg/errors"

	"github.com/bobg/cas"
)

// Encoding names the decomposition of a blob.
type Encoding string

const (
	// None means a single shard holding the whole blob.
	None Encoding = "none"

	// Chunked means sequential fixed-size pieces with no redundancy.
	Chunked Encoding = "chunked"
)

// RS is the encoding label for Reed-Solomon coding
// with the given data and total (data+parity) shard counts.
func RS(data, total int) Encoding {
	return Encoding(fmt.Sprintf("rs-%d-%d", data, total))
}

// RSParams parses a Reed-Solomon encoding label.
// ok is false when e is not a Reed-Solomon label.
func (e Encoding) RSParams() (data, total int, ok bool) {
	if !strings.HasPrefix(string(e), "rs-") {
		return 0, 0, false
	}
	if _, err := fmt.Sscanf(string(e), "rs-%d-%d", &data, &total); err != nil {
		return 0, 0, false
	}
	if data <= 0 || total <= data {
		return 0, 0, false
	}
	return data, total, true
}

// Default tunables.
const (
	// DefaultShardSize is the size of each shard for chunked encoding (1 MiB).
	DefaultShardSize = 1 << 20

	// DefaultRSThreshold is the size at which Reed-Solomon encoding kicks in (10 MiB).
	DefaultRSThreshold = 10 << 20

	// DefaultSingleShardMax is the largest blob kept as a single shard (16 MiB).
	DefaultSingleShardMax = 16 << 20
)

// Config is the tunable shard-encoding policy.
type Config struct {
	// ShardSize is the size of each shard for chunked encoding.
	ShardSize int64

	// DataShards is the number of Reed-Solomon data shards.
	DataShards int

	// ParityShards is the number of Reed-Solomon parity shards.
	ParityShards int

	// RSThreshold is the size at which Reed-Solomon encoding is used.
	RSThreshold int64

	// SingleShardMax is the largest blob kept as a single shard.
	SingleShardMax int64
}

// DefaultConfig is the policy used when none is given: 1 MiB shards, rs-4-7.
func DefaultConfig() Config {
	return Config{
		ShardSize:      DefaultShardSize,
		DataShards:     4,
		ParityShards:   3,
		RSThreshold:    DefaultRSThreshold,
		SingleShardMax: DefaultSingleShardMax,
	}
}

// Encoder builds manifests, produces shard buffers,
// and reconstructs original bytes from partial shard sets.
// It is stateless and safe for concurrent use.
type Encoder struct {
	conf Config
}

// NewEncoder produces an Encoder with the given config.
func NewEncoder(conf Config) *Encoder {
	return &Encoder{conf: conf}
}

// DetermineEncoding picks an encoding for a blob of the given size.
//
// Note: with the default config the "chunked" branch is unreachable,
// since any size exceeding SingleShardMax (16 MiB)
// also exceeds RSThreshold (10 MiB).
// That threshold ordering is inherited, documented behavior;
// changing it is a policy decision, not a bug fix.
func (e *Encoder) DetermineEncoding(size int64) Encoding {
	switch {
	case size <= e.conf.SingleShardMax:
		return None
	case size < e.conf.RSThreshold:
		return Chunked
	default:
		return RS(e.conf.DataShards, e.conf.DataShards+e.conf.ParityShards)
	}
}

// CreateShards produces the ordered shard buffers for data under the given encoding.
// The buffers match the shard_hashes of a manifest built from the same data,
// letting callers persist manifest and payloads as two steps
// (e.g. regenerating shards from an original source for re-seeding or repair).
func (e *Encoder) CreateShards(data []byte, encoding Encoding) ([][]byte, error) {
	switch encoding {
	case None:
		return [][]byte{data}, nil
	case Chunked:
		var (
			size   = int64(len(data))
			count  = int((size + e.conf.ShardSize - 1) / e.conf.ShardSize)
			shards = make([][]byte, 0, count)
		)
		for i := 0; i < count; i++ {
			start := int64(i) * e.conf.ShardSize
			end := start + e.conf.ShardSize
			if end > size {
				end = size
			}
			shards = append(shards, data[start:end])
		}
		return shards, nil
	}

	d, total, ok := encoding.RSParams()
	if !ok {
		return nil, cas.InvalidDataError{Reason: fmt.Sprintf("unknown encoding %q", encoding)}
	}
	return rsShards(data, d, total-d)
}

// rsShards pads data to d equal-size shards and appends p parity shards
// filled by systematic Reed-Solomon encoding over GF(2^8).
func rsShards(data []byte, d, p int) ([][]byte, error) {
	rs, err := reedsolomon.New(d, p)
	if err != nil {
		return nil, errors.Wrap(err, "creating reed-solomon codec")
	}

	shardSize := (int64(len(data)) + int64(d) - 1) / int64(d)

	padded := make([]byte, shardSize*int64(d))
	copy(padded, data)

	shards := make([][]byte, d+p)
	for i := 0; i < d; i++ {
		shards[i] = padded[int64(i)*shardSize : int64(i+1)*shardSize]
	}
	for i := d; i < d+p; i++ {
		shards[i] = make([]byte, shardSize)
	}

	if err := rs.Encode(shards); err != nil {
		return nil, errors.Wrap(err, "encoding parity shards")
	}
	return shards, nil
}
