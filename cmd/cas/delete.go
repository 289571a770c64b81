package main

import (
	"context"
	"flag"

	"github.com/pkg/errors"

	"github.com/bobg/cas"
)

func (c maincmd) delete(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	args = fs.Args()
	if len(args) == 0 {
		return errors.New("missing hash")
	}
	h := cas.Hash(args[0])
	if !h.Valid() {
		return errors.Errorf("invalid hash %s", args[0])
	}

	return errors.Wrapf(c.s.Delete(ctx, h), "deleting blob %s", h)
}
