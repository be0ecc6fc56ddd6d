// Package ondisk implements blockstore.BlockStore over a plain directory
// tree, one file per block, sharded two levels deep by the block id's hex
// encoding so no single directory ever holds more than a few thousand
// entries.
package ondisk

import (
	"os"
	"path/filepath"

	"github.com/creachadair/atomicfile"

	"github.com/thezedwards/cryfs/internal/block"
	"github.com/thezedwards/cryfs/internal/blockstore"
	"github.com/thezedwards/cryfs/internal/cryptocore"
	"github.com/thezedwards/cryfs/internal/tlog"
)

// Store is a blockstore.BlockStore backed by a directory of raw block
// files. It stores and loads opaque byte slices; compression and
// encryption are layered on top by the compressing and encrypting stores.
type Store struct {
	baseDir   string
	blockSize int
}

// New creates a Store rooted at dir, creating dir if it does not exist.
// blockSize is the fixed size (in bytes) new blocks are expected to be
// padded to by the caller; ondisk itself does not enforce padding, it just
// reports the configured size to BlockSizeBytes.
func New(dir string, blockSize int) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &Store{baseDir: filepath.Clean(dir), blockSize: blockSize}, nil
}

// shardPath returns basedir/<2 hex>/<30 hex> for id.
func (s *Store) shardPath(id block.ID) string {
	hex := id.String()
	return filepath.Join(s.baseDir, hex[:2], hex[2:])
}

// Create stores data under a freshly generated random id, retrying on the
// vanishingly unlikely chance of a collision with an existing block.
func (s *Store) Create(data []byte) (block.ID, error) {
	for attempt := 0; attempt < 10; attempt++ {
		var id block.ID
		copy(id[:], cryptocore.RandBytes(block.IDLen))
		path := s.shardPath(id)
		if _, err := os.Stat(path); err == nil {
			continue // collision, retry with a new id
		} else if !os.IsNotExist(err) {
			return block.ID{}, err
		}
		if err := s.writeAtomic(path, data); err != nil {
			return block.ID{}, err
		}
		return id, nil
	}
	return block.ID{}, blockstore.ErrAlreadyExists
}

// Load returns the raw bytes stored under id.
func (s *Store) Load(id block.ID) ([]byte, error) {
	data, err := os.ReadFile(s.shardPath(id))
	if os.IsNotExist(err) {
		return nil, blockstore.ErrNotFound
	}
	return data, err
}

// Store overwrites (or creates) the block at id.
func (s *Store) Store(id block.ID, data []byte) error {
	return s.writeAtomic(s.shardPath(id), data)
}

func (s *Store) writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return atomicfile.WriteData(path, data, 0600)
}

// Remove deletes the block at id.
func (s *Store) Remove(id block.ID) error {
	err := os.Remove(s.shardPath(id))
	if os.IsNotExist(err) {
		return blockstore.ErrNotFound
	}
	return err
}

// ForEachBlock walks the shard tree, calling fn once per block id found.
// The caching layer's ForEachBlock delegates down to it.
func (s *Store) ForEachBlock(fn func(block.ID) error) error {
	shards, err := readDirNames(s.baseDir)
	if err != nil {
		return err
	}
	for _, shard := range shards {
		if len(shard) != 2 {
			continue
		}
		names, err := readDirNames(filepath.Join(s.baseDir, shard))
		if err != nil {
			tlog.Warn.Printf("ondisk: skipping unreadable shard %s: %v", shard, err)
			continue
		}
		for _, name := range names {
			id, err := block.ParseID(shard + name)
			if err != nil {
				continue // not a block file, e.g. a stray temp file
			}
			if err := fn(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// Flush is a no-op: every write already went through an atomic rename.
func (s *Store) Flush() error { return nil }

// BlockSizeBytes returns the configured block size.
func (s *Store) BlockSizeBytes() int { return s.blockSize }

func readDirNames(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()
	return f.Readdirnames(-1)
}

var _ blockstore.BlockStore = (*Store)(nil)
