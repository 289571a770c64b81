package main

import (
	"context"
	"flag"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/cas"
)

func (c maincmd) get(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		start = fs.Int64("start", 0, "start of byte range")
		end   = fs.Int64("end", -1, "end of byte range (exclusive; default: end of blob)")
	)
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

	var blob cas.Blob
	if *start != 0 || *end >= 0 {
		r, ok := c.s.(cas.Ranger)
		if !ok {
			return errors.New("store does not serve byte ranges")
		}
		rangeEnd := *end
		if rangeEnd < 0 {
			rangeEnd, err = c.s.Size(ctx, h)
			if err != nil {
				return errors.Wrapf(err, "sizing blob %s", h)
			}
		}
		blob, err = r.GetRange(ctx, h, *start, rangeEnd)
		if err != nil {
			return errors.Wrapf(err, "getting range of blob %s", h)
		}
	} else {
		blob, err = c.s.Get(ctx, h)
		if err != nil {
			return errors.Wrapf(err, "getting blob %s", h)
		}
	}

	_, err = os.Stdout.Write(blob)
	return errors.Wrap(err, "writing blob to stdout")
}
