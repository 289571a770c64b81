package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/cas"
	"github.com/bobg/cas/manifest"
	"github.com/bobg/cas/transfer"
)

// fetch assembles a blob's shards from the local store and a peer,
// reconstructs the blob, and restores full local redundancy.
func (c maincmd) fetch(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		peer = fs.String("peer", "", "base URL of the peer to fetch from")
		push = fs.Bool("push", false, "push regenerated shards back to the peer")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *peer == "" {
		return errors.New("missing -peer")
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

	res, err := transfer.Fetch(ctx, transfer.NewClient(*peer), c.enc, m, c.s, *push)
	if err != nil {
		return errors.Wrap(err, "fetching blob")
	}

	for i, shardErr := range res.ShardErrs {
		log.Printf("shard %d: %s", i, shardErr)
	}
	log.Printf("fetched %d shards, regenerated %d", len(res.Fetched), len(res.Regenerated))

	_, err = os.Stdout.Write(res.Data)
	return errors.Wrap(err, "writing blob to stdout")
}
