package ondisk

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/thezedwards/cryfs/internal/block"
	"github.com/thezedwards/cryfs/internal/blockstore"
)

func TestCreateLoadRoundTrip(t *testing.T) {
	s, err := New(t.TempDir(), 4096)
	if err != nil {
		t.Fatal(err)
	}
	payload := []byte("on-disk payload")
	id, err := s.Create(payload)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("mismatch: got %q want %q", got, payload)
	}
}

func TestLoadMissingReturnsErrNotFound(t *testing.T) {
	s, err := New(t.TempDir(), 4096)
	if err != nil {
		t.Fatal(err)
	}
	var id block.ID
	id[0] = 0x42
	if _, err := s.Load(id); err != blockstore.ErrNotFound {
		t.Fatalf("Load on missing block = %v, want ErrNotFound", err)
	}
}

func TestRemoveMissingReturnsErrNotFound(t *testing.T) {
	s, err := New(t.TempDir(), 4096)
	if err != nil {
		t.Fatal(err)
	}
	var id block.ID
	id[0] = 0x42
	if err := s.Remove(id); err != blockstore.ErrNotFound {
		t.Fatalf("Remove on missing block = %v, want ErrNotFound", err)
	}
}

// TestLoadSeesRawFileTamper checks that ondisk, being the unauthenticated
// bottom layer, returns whatever bytes are on disk verbatim - detecting a
// flipped byte is the encrypting layer's job, not this one's.
func TestLoadSeesRawFileTamper(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, 4096)
	if err != nil {
		t.Fatal(err)
	}
	id, err := s.Create([]byte("original payload"))
	if err != nil {
		t.Fatal(err)
	}
	path := s.shardPath(id)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	raw[0] ^= 0xFF
	if err := os.WriteFile(path, raw, 0600); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(id)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(got, []byte("original payload")) {
		t.Fatal("Load returned the untampered payload, tamper was not written")
	}
}

// TestContentSwapAcrossIDsIsVisible checks that swapping one block's file
// content onto another id's path is a plain, undetected content change at
// this layer - ondisk has no way to know a swap happened, only the
// encrypting layer's AD binding catches it.
func TestContentSwapAcrossIDsIsVisible(t *testing.T) {
	s, err := New(t.TempDir(), 4096)
	if err != nil {
		t.Fatal(err)
	}
	idA, err := s.Create([]byte("payload A"))
	if err != nil {
		t.Fatal(err)
	}
	idB, err := s.Create([]byte("payload B"))
	if err != nil {
		t.Fatal(err)
	}
	bData, err := s.Load(idB)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Store(idA, bData); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(idA)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("payload B")) {
		t.Fatalf("expected idA to now read back payload B's bytes, got %q", got)
	}
}

func TestForEachBlockVisitsEveryCreatedBlock(t *testing.T) {
	s, err := New(t.TempDir(), 4096)
	if err != nil {
		t.Fatal(err)
	}
	want := map[block.ID]bool{}
	for i := 0; i < 5; i++ {
		id, err := s.Create([]byte{byte(i)})
		if err != nil {
			t.Fatal(err)
		}
		want[id] = true
	}
	got := map[block.ID]bool{}
	if err := s.ForEachBlock(func(id block.ID) error {
		got[id] = true
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) {
		t.Fatalf("ForEachBlock visited %d blocks, want %d", len(got), len(want))
	}
	for id := range want {
		if !got[id] {
			t.Fatalf("ForEachBlock missed block %s", id)
		}
	}
}

func TestShardPathIsTwoLevelHexSplit(t *testing.T) {
	s, err := New(t.TempDir(), 4096)
	if err != nil {
		t.Fatal(err)
	}
	var id block.ID
	copy(id[:], bytes.Repeat([]byte{0xAB}, block.IDLen))
	path := s.shardPath(id)
	hex := id.String()
	want := filepath.Join(s.baseDir, hex[:2], hex[2:])
	if path != want {
		t.Fatalf("shardPath = %q, want %q", path, want)
	}
}
