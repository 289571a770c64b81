// Command cas is a CLI interface to content-addressed blob stores
// and their shard manifests.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/bobg/subcmd"

	"github.com/bobg/cas"
	"github.com/bobg/cas/shard"
	"github.com/bobg/cas/store/logging"

	_ "github.com/bobg/cas/store/file"
	_ "github.com/bobg/cas/store/gcs"
	_ "github.com/bobg/cas/store/mem"
	_ "github.com/bobg/cas/store/pg"
	_ "github.com/bobg/cas/store/sqlite3"
)

type maincmd struct {
	s   cas.Store
	enc *shard.Encoder
}

func main() {
	var (
		config  = flag.String("config", "casconf.json", "path to config file")
		verbose = flag.Bool("verbose", false, "log store operations")
	)
	flag.Parse()

	if *config == "" {
		log.Fatal("Config value not set")
	}

	ctx := context.Background()

	s, conf, err := storeFromConfig(ctx, *config)
	if err != nil {
		log.Fatalf("Creating store from config file %s: %s", *config, err)
	}
	if *verbose {
		s = logging.New(s)
	}

	enc, err := encoderFromConfig(conf)
	if err != nil {
		log.Fatalf("Reading shard config from %s: %s", *config, err)
	}

	err = subcmd.Run(ctx, maincmd{s: s, enc: enc}, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"delete":      fscmd(c.delete),
		"fetch":       fscmd(c.fetch),
		"get":         fscmd(c.get),
		"list":        fscmd(c.list),
		"manifest":    fscmd(c.manifest),
		"put":         fscmd(c.put),
		"reconstruct": fscmd(c.reconstruct),
		"serve":       fscmd(c.serve),
		"stat":        fscmd(c.stat),
	}
}

// fscmd adapts a subcommand that declares and parses its own flags
// to the subcmd.Subcmd form, supplying it a fresh flag.FlagSet.
func fscmd(f func(context.Context, *flag.FlagSet, []string) error) subcmd.Subcmd {
	return subcmd.Subcmd{
		F: func(ctx context.Context, args []string) error {
			return f(ctx, flag.NewFlagSet("", flag.ContinueOnError), args)
		},
	}
}
