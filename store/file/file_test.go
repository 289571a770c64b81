package file

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/bobg/cas"
	"github.com/bobg/cas/testutil"
)

func TestStore(t *testing.T) {
	dirname, err := os.MkdirTemp("", "filestore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	ctx := context.Background()
	s := New(dirname)
	testutil.ReadWrite(ctx, t, s, testdata(4096))
	testutil.Missing(ctx, t, s)
}

func TestAllHashes(t *testing.T) {
	dirs := []string{}
	defer func() {
		for _, d := range dirs {
			os.RemoveAll(d)
		}
	}()

	testutil.AllHashes(context.Background(), t, func() cas.Store {
		dirname, err := os.MkdirTemp("", "filestore")
		if err != nil {
			t.Fatal(err)
		}
		dirs = append(dirs, dirname)
		return New(dirname)
	})
}

func TestChunkedRoundTrip(t *testing.T) {
	dirname, err := os.MkdirTemp("", "filestore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	var (
		ctx  = context.Background()
		s    = NewWithSizes(dirname, 64, 16)
		data = testdata(200)
	)

	res, err := s.Put(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Chunked {
		t.Fatal("blob over the single-file limit not chunked")
	}
	if want := 13; res.ChunkCount != want { // ceil(200/16)
		t.Errorf("got %d chunks, want %d", res.ChunkCount, want)
	}

	// The canonical path must hold exactly the sentinel.
	canonical := s.blobpath(res.Hash)
	content, err := os.ReadFile(canonical)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(content, []byte(Sentinel)) {
		t.Errorf("canonical path holds %q, want sentinel", content)
	}

	// Chunk files are named by zero-padded index.
	if _, err := os.Stat(filepath.Join(s.chunkdir(res.Hash), "00000012")); err != nil {
		t.Errorf("missing last chunk file: %s", err)
	}
	if _, err := os.Stat(s.indexpath(res.Hash)); err != nil {
		t.Errorf("missing chunk index: %s", err)
	}

	got, err := s.Get(ctx, res.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("reassembled bytes differ from original")
	}

	size, err := s.Size(ctx, res.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if size != 200 {
		t.Errorf("got size %d, want 200", size)
	}

	res2, err := s.Put(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	if !res2.AlreadyExisted {
		t.Error("second put of chunked blob does not report already_existed")
	}

	if err = s.Delete(ctx, res.Hash); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{canonical, s.chunkdir(res.Hash), s.indexpath(res.Hash)} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s still present after delete", path)
		}
	}
}

func TestCorruptionDetected(t *testing.T) {
	dirname, err := os.MkdirTemp("", "filestore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	var (
		ctx  = context.Background()
		s    = NewWithSizes(dirname, 64, 16)
		data = testdata(200)
	)

	res, err := s.Put(ctx, data)
	if err != nil {
		t.Fatal(err)
	}

	// Flip one byte in one chunk file.
	chunkfile := filepath.Join(s.chunkdir(res.Hash), "00000002")
	chunk, err := os.ReadFile(chunkfile)
	if err != nil {
		t.Fatal(err)
	}
	chunk[3] ^= 0xff
	if err = os.WriteFile(chunkfile, chunk, 0644); err != nil {
		t.Fatal(err)
	}

	_, err = s.Get(ctx, res.Hash)
	if !cas.IsMismatch(err) {
		t.Fatalf("got %v, want hash mismatch", err)
	}
}

func TestIdempotentDiskUsage(t *testing.T) {
	dirname, err := os.MkdirTemp("", "filestore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	var (
		ctx  = context.Background()
		s    = NewWithSizes(dirname, 64, 16)
		data = testdata(500)
	)

	res1, err := s.Put(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	usage1 := diskUsage(t, dirname)

	res2, err := s.Put(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	usage2 := diskUsage(t, dirname)

	if res1.Hash != res2.Hash {
		t.Errorf("hashes differ: %s vs %s", res1.Hash, res2.Hash)
	}
	if res1.AlreadyExisted || !res2.AlreadyExisted {
		t.Errorf("already_existed flags wrong: %v, %v", res1.AlreadyExisted, res2.AlreadyExisted)
	}
	if usage1 != usage2 {
		t.Errorf("disk usage changed on duplicate put: %d vs %d", usage1, usage2)
	}
}

// A genuine 7-byte blob whose content equals the sentinel
// must not be mistaken for a chunked blob.
func TestSevenByteSentinelLookalike(t *testing.T) {
	dirname, err := os.MkdirTemp("", "filestore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	var (
		ctx  = context.Background()
		s    = New(dirname)
		data = []byte(Sentinel)
	)

	res, err := s.Put(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	if res.Chunked {
		t.Fatal("7-byte blob reported as chunked")
	}

	got, err := s.Get(ctx, res.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("got %q, want %q", got, data)
	}

	size, err := s.Size(ctx, res.Hash)
	if err != nil {
		t.Fatal(err)
	}
	if size != int64(len(Sentinel)) {
		t.Errorf("got size %d, want %d", size, len(Sentinel))
	}
}

func TestGetRange(t *testing.T) {
	dirname, err := os.MkdirTemp("", "filestore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	var (
		ctx  = context.Background()
		s    = NewWithSizes(dirname, 64, 16)
		big  = testdata(200) // chunked
		tiny = testdata(40)  // single file
	)

	bigRes, err := s.Put(ctx, big)
	if err != nil {
		t.Fatal(err)
	}
	tinyRes, err := s.Put(ctx, tiny)
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name       string
		hash       cas.Hash
		data       []byte
		start, end int64
	}{
		{name: "tiny_whole", hash: tinyRes.Hash, data: tiny, start: 0, end: 40},
		{name: "tiny_middle", hash: tinyRes.Hash, data: tiny, start: 10, end: 30},
		{name: "tiny_clamped", hash: tinyRes.Hash, data: tiny, start: 30, end: 999},
		{name: "big_within_chunk", hash: bigRes.Hash, data: big, start: 17, end: 31},
		{name: "big_chunk_boundary", hash: bigRes.Hash, data: big, start: 15, end: 17},
		{name: "big_many_chunks", hash: bigRes.Hash, data: big, start: 5, end: 150},
		{name: "big_tail", hash: bigRes.Hash, data: big, start: 190, end: 200},
		{name: "big_clamped", hash: bigRes.Hash, data: big, start: 190, end: 999},
		{name: "big_past_end", hash: bigRes.Hash, data: big, start: 500, end: 600},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := s.GetRange(ctx, c.hash, c.start, c.end)
			if err != nil {
				t.Fatal(err)
			}

			var want []byte
			if c.start < int64(len(c.data)) {
				end := c.end
				if end > int64(len(c.data)) {
					end = int64(len(c.data))
				}
				want = c.data[c.start:end]
			}
			if !bytes.Equal(got, want) {
				t.Errorf("got %d bytes, want %d", len(got), len(want))
			}
		})
	}

	if _, err := s.GetRange(ctx, bigRes.Hash, -1, 10); !cas.IsInvalidData(err) {
		t.Errorf("negative start: got %v, want invalid-data", err)
	}
	if _, err := s.GetRange(ctx, bigRes.Hash, 10, 5); !cas.IsInvalidData(err) {
		t.Errorf("end before start: got %v, want invalid-data", err)
	}
}

func TestSmallValueTwice(t *testing.T) {
	dirname, err := os.MkdirTemp("", "filestore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	var (
		ctx   = context.Background()
		s     = New(dirname)
		value = []byte("twenty bytes exactly")
	)
	if len(value) != 20 {
		t.Fatal("test value is not 20 bytes")
	}

	res1, err := s.Put(ctx, value)
	if err != nil {
		t.Fatal(err)
	}
	res2, err := s.Put(ctx, value)
	if err != nil {
		t.Fatal(err)
	}

	if res1.AlreadyExisted {
		t.Error("first put reports already_existed")
	}
	if !res2.AlreadyExisted {
		t.Error("second put does not report already_existed")
	}

	sum := sha256.Sum256(value)
	want := cas.Hash("sha256-" + hex.EncodeToString(sum[:]))
	if res1.Hash != want || res2.Hash != want {
		t.Errorf("got hashes %s, %s, want %s", res1.Hash, res2.Hash, want)
	}
}

func testdata(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i % 251)
	}
	return data
}

func diskUsage(t *testing.T, root string) int64 {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return total
}
