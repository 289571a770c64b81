package transfer

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/bobg/cas"
	"github.com/bobg/cas/shard"
	"github.com/bobg/cas/store/mem"
)

func TestHandlerGet(t *testing.T) {
	var (
		ctx = context.Background()
		s   = mem.New()
		h   = NewHandler(s)
	)

	data := []byte("some shard bytes")
	res, err := s.Put(ctx, data)
	if err != nil {
		t.Fatal(err)
	}

	resp := h.Handle(ctx, Request{Type: ReqGet, Hash: res.Hash})
	if resp.Type != RespData {
		t.Fatalf("got response type %s, want %s", resp.Type, RespData)
	}
	if !bytes.Equal(resp.Data, data) {
		t.Error("wrong bytes back")
	}

	resp = h.Handle(ctx, Request{Type: ReqGet, Hash: cas.Sum([]byte("absent"))})
	if resp.Type != RespNotFound {
		t.Errorf("absent hash: got response type %s, want %s", resp.Type, RespNotFound)
	}
}

func TestHandlerHave(t *testing.T) {
	var (
		ctx = context.Background()
		s   = mem.New()
		h   = NewHandler(s)
	)

	res, err := s.Put(ctx, []byte("held"))
	if err != nil {
		t.Fatal(err)
	}

	resp := h.Handle(ctx, Request{Type: ReqHave, Hash: res.Hash})
	if resp.Type != RespHave || !resp.Have {
		t.Errorf("held hash: got %+v", resp)
	}

	resp = h.Handle(ctx, Request{Type: ReqHave, Hash: cas.Sum([]byte("absent"))})
	if resp.Type != RespHave || resp.Have {
		t.Errorf("absent hash: got %+v", resp)
	}
}

func TestHandlerPush(t *testing.T) {
	var (
		ctx  = context.Background()
		s    = mem.New()
		h    = NewHandler(s)
		data = []byte("pushed shard")
	)

	resp := h.Handle(ctx, Request{Type: ReqPush, Hash: cas.Sum(data), Data: data})
	if resp.Type != RespPushAck {
		t.Fatalf("got response type %s (%s), want %s", resp.Type, resp.Error, RespPushAck)
	}

	got, err := s.Get(ctx, cas.Sum(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("pushed bytes not stored")
	}

	// Re-pushing a held hash is a no-op success.
	resp = h.Handle(ctx, Request{Type: ReqPush, Hash: cas.Sum(data), Data: data})
	if resp.Type != RespPushAck {
		t.Errorf("duplicate push: got response type %s, want %s", resp.Type, RespPushAck)
	}

	// A payload that doesn't match its claimed hash is refused.
	resp = h.Handle(ctx, Request{Type: ReqPush, Hash: cas.Sum([]byte("other")), Data: data})
	if resp.Type != RespError {
		t.Fatalf("mismatched push: got response type %s, want %s", resp.Type, RespError)
	}
	if ok, err := s.Exists(ctx, cas.Sum([]byte("other"))); err != nil || ok {
		t.Errorf("mismatched payload stored anyway (exists=%v, err=%v)", ok, err)
	}
}

func TestHandlerUnknownType(t *testing.T) {
	h := NewHandler(mem.New())
	resp := h.Handle(context.Background(), Request{Type: "gossip"})
	if resp.Type != RespError {
		t.Errorf("got response type %s, want %s", resp.Type, RespError)
	}
}

func TestHTTPRoundTrip(t *testing.T) {
	var (
		ctx = context.Background()
		s   = mem.New()
	)

	srv := httptest.NewServer(NewServer(NewHandler(s)))
	defer srv.Close()

	client := NewClient(srv.URL)

	data := []byte("a shard served over http")
	res, err := s.Put(ctx, data)
	if err != nil {
		t.Fatal(err)
	}

	ok, err := client.Have(ctx, res.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("peer denies holding a stored hash")
	}

	got, err := client.Get(ctx, res.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("wrong bytes over http")
	}

	absent := cas.Sum([]byte("absent"))
	if _, err = client.Get(ctx, absent); !cas.IsNotFound(err) {
		t.Errorf("absent hash: got %v, want not-found", err)
	}
	ok, err = client.Have(ctx, absent)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("peer claims to hold an absent hash")
	}

	pushed := []byte("pushed over http")
	if err = client.Push(ctx, cas.Sum(pushed), pushed); err != nil {
		t.Fatal(err)
	}
	if ok, err = s.Exists(ctx, cas.Sum(pushed)); err != nil || !ok {
		t.Errorf("pushed blob not stored (exists=%v, err=%v)", ok, err)
	}
}

// testPeer serves shards from an in-memory map,
// optionally substituting corrupt bytes,
// and counts contract calls.
type testPeer struct {
	blobs   map[cas.Hash][]byte
	corrupt map[cas.Hash][]byte
	gets    int
	pushes  int
}

func newTestPeer() *testPeer {
	return &testPeer{
		blobs:   make(map[cas.Hash][]byte),
		corrupt: make(map[cas.Hash][]byte),
	}
}

func (p *testPeer) Get(_ context.Context, h cas.Hash) (cas.Blob, error) {
	p.gets++
	if b, ok := p.corrupt[h]; ok {
		return b, nil
	}
	if b, ok := p.blobs[h]; ok {
		return b, nil
	}
	return nil, cas.ErrNotFound
}

func (p *testPeer) Have(_ context.Context, h cas.Hash) (bool, error) {
	_, corrupt := p.corrupt[h]
	_, ok := p.blobs[h]
	return ok || corrupt, nil
}

func (p *testPeer) Push(_ context.Context, h cas.Hash, data []byte) error {
	p.pushes++
	p.blobs[h] = data
	return nil
}

func testEncoder() *shard.Encoder {
	return shard.NewEncoder(shard.Config{
		ShardSize:      10,
		DataShards:     4,
		ParityShards:   3,
		RSThreshold:    500,
		SingleShardMax: 50,
	})
}

// encodeFixture builds an rs-4-7 manifest and shard set for 1000 test bytes.
func encodeFixture(t *testing.T) (*shard.Encoder, *shard.Manifest, [][]byte, []byte) {
	enc := testEncoder()

	data := make([]byte, 1000)
	for i := range data {
		data[i] = byte(i % 251)
	}

	m, err := enc.CreateManifest(data, "application/octet-stream", "commons")
	if err != nil {
		t.Fatal(err)
	}
	if m.Encoding != shard.RS(4, 7) {
		t.Fatalf("got encoding %s, want rs-4-7", m.Encoding)
	}
	shards, err := enc.CreateShards(data, m.Encoding)
	if err != nil {
		t.Fatal(err)
	}
	return enc, m, shards, data
}

func TestFetchAllLocal(t *testing.T) {
	ctx := context.Background()
	enc, m, shards, data := encodeFixture(t)

	local := mem.New()
	for _, s := range shards {
		if _, err := local.Put(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	peer := newTestPeer()
	res, err := Fetch(ctx, peer, enc, m, local, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res.Data, data) {
		t.Error("wrong bytes back")
	}
	if len(res.Fetched) != 0 || len(res.Regenerated) != 0 {
		t.Errorf("fetched %v, regenerated %v; want neither", res.Fetched, res.Regenerated)
	}
	if peer.gets != 0 {
		t.Errorf("peer contacted %d times with all shards local", peer.gets)
	}
}

func TestFetchFromPeer(t *testing.T) {
	ctx := context.Background()
	enc, m, shards, data := encodeFixture(t)

	// Shards 0 and 1 local, the rest on the peer.
	local := mem.New()
	peer := newTestPeer()
	for i, s := range shards {
		if i < 2 {
			if _, err := local.Put(ctx, s); err != nil {
				t.Fatal(err)
			}
		} else {
			peer.blobs[m.ShardHashes[i]] = s
		}
	}

	res, err := Fetch(ctx, peer, enc, m, local, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res.Data, data) {
		t.Error("wrong bytes back")
	}

	// Fetching stops once the minimum is reached: 2 local + 2 fetched.
	if len(res.Fetched) != 2 {
		t.Errorf("fetched %v, want 2 shards", res.Fetched)
	}

	// Full redundancy is restored locally afterward.
	for i, h := range m.ShardHashes {
		ok, err := local.Exists(ctx, h)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("shard %d missing locally after fetch", i)
		}
	}
}

func TestFetchToleratesMissingShards(t *testing.T) {
	ctx := context.Background()
	enc, m, shards, data := encodeFixture(t)

	// The peer lost 3 of 7 shards (the parity count); nothing is local.
	peer := newTestPeer()
	for i, s := range shards {
		if i == 1 || i == 3 || i == 5 {
			continue
		}
		peer.blobs[m.ShardHashes[i]] = s
	}

	local := mem.New()
	res, err := Fetch(ctx, peer, enc, m, local, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res.Data, data) {
		t.Error("wrong bytes back")
	}
	if len(res.Regenerated) == 0 {
		t.Error("no shards regenerated despite peer losses")
	}
	for i := range res.ShardErrs {
		if i != 1 && i != 3 && i != 5 {
			t.Errorf("unexpected shard error at index %d: %v", i, res.ShardErrs[i])
		}
	}
}

func TestFetchTooFewShards(t *testing.T) {
	ctx := context.Background()
	enc, m, shards, _ := encodeFixture(t)

	// Only 3 of 7 shards exist anywhere; 4 are needed.
	peer := newTestPeer()
	for i := 0; i < 3; i++ {
		peer.blobs[m.ShardHashes[i]] = shards[i]
	}

	_, err := Fetch(ctx, peer, enc, m, mem.New(), false)
	if !cas.IsInvalidData(err) {
		t.Fatalf("got %v, want invalid-data", err)
	}
}

func TestFetchDiscardsCorruptShard(t *testing.T) {
	ctx := context.Background()
	enc, m, shards, data := encodeFixture(t)

	peer := newTestPeer()
	for i, s := range shards {
		peer.blobs[m.ShardHashes[i]] = s
	}

	// The peer serves garbage for shard 0.
	bad := append([]byte{}, shards[0]...)
	bad[0] ^= 0xff
	peer.corrupt[m.ShardHashes[0]] = bad

	local := mem.New()
	res, err := Fetch(ctx, peer, enc, m, local, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(res.Data, data) {
		t.Error("wrong bytes back")
	}
	if !cas.IsMismatch(res.ShardErrs[0]) {
		t.Errorf("shard 0 error: got %v, want hash mismatch", res.ShardErrs[0])
	}

	// The corrupt bytes must never be stored; shard 0 is regenerated instead.
	got, err := local.Get(ctx, m.ShardHashes[0])
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, shards[0]) {
		t.Error("corrupt shard bytes stored locally")
	}
}

func TestFetchPushBack(t *testing.T) {
	ctx := context.Background()
	enc, m, shards, _ := encodeFixture(t)

	// The peer lost shard 6; the requester holds everything else.
	local := mem.New()
	peer := newTestPeer()
	for i, s := range shards {
		if _, err := local.Put(ctx, s); err != nil {
			t.Fatal(err)
		}
		if i != 6 {
			peer.blobs[m.ShardHashes[i]] = s
		}
	}
	// Drop shard 6 locally too, so it has to be regenerated.
	if err := local.Delete(ctx, m.ShardHashes[6]); err != nil {
		t.Fatal(err)
	}

	res, err := Fetch(ctx, peer, enc, m, local, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Regenerated) != 1 || res.Regenerated[0] != 6 {
		t.Fatalf("regenerated %v, want [6]", res.Regenerated)
	}
	if peer.pushes != 1 {
		t.Errorf("got %d pushes, want 1", peer.pushes)
	}
	if !bytes.Equal(peer.blobs[m.ShardHashes[6]], shards[6]) {
		t.Error("peer did not receive the regenerated shard")
	}
}
