package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/cas"
)

func (c maincmd) stat(ctx context.Context, fs *flag.FlagSet, args []string) error {
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

	ok, err := c.s.Exists(ctx, h)
	if err != nil {
		return errors.Wrapf(err, "checking blob %s", h)
	}
	if !ok {
		fmt.Printf("%s: absent\n", h)
		return nil
	}

	size, err := c.s.Size(ctx, h)
	if err != nil {
		return errors.Wrapf(err, "sizing blob %s", h)
	}
	fmt.Printf("%s: %d bytes\n", h, size)
	return nil
}
