package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"

	"github.com/bobg/cas"
)

func (c maincmd) list(ctx context.Context, fs *flag.FlagSet, args []string) error {
	start := fs.String("start", "", "list hashes after this one")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	l, ok := c.s.(cas.Lister)
	if !ok {
		return errors.New("store cannot enumerate hashes")
	}

	return l.ListHashes(ctx, cas.Hash(*start), func(h cas.Hash) error {
		fmt.Println(h)
		return nil
	})
}
