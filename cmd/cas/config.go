package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/bobg/cas"
	"github.com/bobg/cas/shard"
	"github.com/bobg/cas/store"
)

func storeFromConfig(ctx context.Context, filename string) (cas.Store, map[string]interface{}, error) {
	var conf map[string]interface{}
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "opening config file %s", filename)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.UseNumber()
	err = dec.Decode(&conf)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "decoding config file %s", filename)
	}

	typ, ok := conf["type"].(string)
	if !ok {
		return nil, nil, fmt.Errorf("config file %s missing `type` parameter", filename)
	}

	s, err := store.Create(ctx, typ, conf)
	return s, conf, err
}

// encoderFromConfig reads the optional shard-policy parameters,
// falling back to the defaults for any that are absent.
func encoderFromConfig(conf map[string]interface{}) (*shard.Encoder, error) {
	sconf := shard.DefaultConfig()

	if err := confInt64(conf, "shard_size", &sconf.ShardSize); err != nil {
		return nil, err
	}
	if err := confInt(conf, "rs_data_shards", &sconf.DataShards); err != nil {
		return nil, err
	}
	if err := confInt(conf, "rs_parity_shards", &sconf.ParityShards); err != nil {
		return nil, err
	}
	if err := confInt64(conf, "rs_threshold", &sconf.RSThreshold); err != nil {
		return nil, err
	}
	if err := confInt64(conf, "single_shard_max", &sconf.SingleShardMax); err != nil {
		return nil, err
	}

	return shard.NewEncoder(sconf), nil
}

func confInt64(conf map[string]interface{}, key string, dest *int64) error {
	v, ok := conf[key]
	if !ok {
		return nil
	}
	num, ok := v.(json.Number)
	if !ok {
		return fmt.Errorf("config parameter `%s` is not a number", key)
	}
	n, err := num.Int64()
	if err != nil {
		return errors.Wrapf(err, "parsing config parameter `%s`", key)
	}
	*dest = n
	return nil
}

func confInt(conf map[string]interface{}, key string, dest *int) error {
	var n int64
	if err := confInt64(conf, key, &n); err != nil {
		return err
	}
	if conf[key] != nil {
		*dest = int(n)
	}
	return nil
}
