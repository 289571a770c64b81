package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"

	"github.com/pkg/errors"
)

func (c maincmd) put(ctx context.Context, fs *flag.FlagSet, args []string) error {
	file := fs.String("file", "", "file to store (default: stdin)")
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

	blob, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading input")
	}

	res, err := c.s.Put(ctx, blob)
	if err != nil {
		return errors.Wrap(err, "storing blob")
	}

	log.Printf("hash %s (%d bytes, chunked: %v, existed: %v)", res.Hash, res.Size, res.Chunked, res.AlreadyExisted)

	return nil
}
