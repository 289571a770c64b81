package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/cas/manifest"
)

// manifest shards its input, stores the shards and the manifest describing them,
// and prints the manifest's hash.
func (c maincmd) manifest(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		file    = fs.String("file", "", "file to shard (default: stdin)")
		mime    = fs.String("mime", "application/octet-stream", "MIME type to record")
		reach   = fs.String("reach", "commons", "visibility level to record")
		dumpman = fs.Bool("json", false, "print the manifest JSON to stdout")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	var r io.Reader = os.Stdin
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return errors.Wrapf(err, "opening %s", *file)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading input")
	}

	m, err := c.enc.CreateManifest(data, *mime, *reach)
	if err != nil {
		return errors.Wrap(err, "creating manifest")
	}

	shards, err := c.enc.CreateShards(data, m.Encoding)
	if err != nil {
		return errors.Wrap(err, "creating shards")
	}
	for i, s := range shards {
		if _, err := c.s.Put(ctx, s); err != nil {
			return errors.Wrapf(err, "storing shard %d", i)
		}
	}

	manifestHash, err := manifest.Put(ctx, c.s, m)
	if err != nil {
		return err
	}

	log.Printf("manifest %s (blob %s, encoding %s, %d shards)", manifestHash, m.BlobHash, m.Encoding, m.TotalShards)

	if *dumpman {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(m), "encoding manifest")
	}
	return nil
}
