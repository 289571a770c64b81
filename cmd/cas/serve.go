package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"

	"github.com/pkg/errors"

	"github.com/bobg/cas/transfer"
)

// serve answers shard-transfer requests out of the store over HTTP.
func (c maincmd) serve(ctx context.Context, fs *flag.FlagSet, args []string) error {
	addr := fs.String("addr", "localhost:9157", "listen address")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	lis, err := net.Listen("tcp", *addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", *addr)
	}
	defer lis.Close()

	fmt.Printf("Listening on %s\n", lis.Addr())

	srv := &http.Server{
		Handler: transfer.NewServer(transfer.NewHandler(c.s)),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
	return srv.Serve(lis)
}
