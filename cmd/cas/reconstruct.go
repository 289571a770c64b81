package main

import (
	"context"
	stderrs "errors"
	"flag"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/cas"
	"github.com/bobg/cas/manifest"
)

// reconstruct rebuilds a blob from whatever of its shards the store holds.
func (c maincmd) reconstruct(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	args = fs.Args()
	if len(args) == 0 {
		return errors.New("missing manifest hash")
	}
	h := cas.Hash(args[0])
	if !h.Valid() {
		return errors.Errorf("invalid hash %s", args[0])
	}

	m, err := manifest.Get(ctx, c.s, h)
	if err != nil {
		return err
	}

	shards := make([][]byte, m.TotalShards)
	for i, sh := range m.ShardHashes {
		b, err := c.s.Get(ctx, sh)
		if stderrs.Is(err, cas.ErrNotFound) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "getting shard %d", i)
		}
		shards[i] = b
	}

	data, err := c.enc.Reconstruct(m, shards)
	if err != nil {
		return errors.Wrap(err, "reconstructing blob")
	}

	_, err = os.Stdout.Write(data)
	return errors.Wrap(err, "writing blob to stdout")
}
