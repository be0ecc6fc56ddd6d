// Package compressing wraps a blockstore.BlockStore, compressing payloads
// before they reach the next layer down and decompressing them on load.
package compressing

import (
	"github.com/thezedwards/cryfs/internal/block"
	"github.com/thezedwards/cryfs/internal/blockstore"
	"github.com/thezedwards/cryfs/internal/compression"
)

// Store compresses payloads with a configured algorithm before delegating
// to an underlying store, falling back to storing the payload verbatim
// whenever compressing it doesn't actually shrink it.
type Store struct {
	underlying blockstore.BlockStore
	algo       compression.Algorithm
}

// New wraps underlying, compressing with the algorithm named by tag.
// tag == compression.TagNone disables compression entirely.
func New(underlying blockstore.BlockStore, tag compression.Tag) (*Store, error) {
	s := &Store{underlying: underlying}
	if tag != compression.TagNone {
		algo, err := compression.ByTag(tag)
		if err != nil {
			return nil, err
		}
		s.algo = algo
	}
	return s, nil
}

func (s *Store) encode(plain []byte) []byte {
	if s.algo == nil {
		return append([]byte{byte(compression.TagNone)}, plain...)
	}
	compressed := s.algo.Compress(plain)
	if len(compressed) >= len(plain) {
		return append([]byte{byte(compression.TagNone)}, plain...)
	}
	return append([]byte{byte(s.algo.Tag())}, compressed...)
}

func (s *Store) decode(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, blockstore.ErrIntegrity
	}
	tag := compression.Tag(raw[0])
	body := raw[1:]
	if tag == compression.TagNone {
		out := make([]byte, len(body))
		copy(out, body)
		return out, nil
	}
	algo, err := compression.ByTag(tag)
	if err != nil {
		return nil, err
	}
	return algo.Decompress(body)
}

func (s *Store) Create(data []byte) (block.ID, error) {
	return s.underlying.Create(s.encode(data))
}

func (s *Store) Load(id block.ID) ([]byte, error) {
	raw, err := s.underlying.Load(id)
	if err != nil {
		return nil, err
	}
	return s.decode(raw)
}

func (s *Store) Store(id block.ID, data []byte) error {
	return s.underlying.Store(id, s.encode(data))
}

func (s *Store) Remove(id block.ID) error { return s.underlying.Remove(id) }

func (s *Store) ForEachBlock(fn func(block.ID) error) error {
	return s.underlying.ForEachBlock(fn)
}

func (s *Store) Flush() error { return s.underlying.Flush() }

func (s *Store) BlockSizeBytes() int { return s.underlying.BlockSizeBytes() }

var _ blockstore.BlockStore = (*Store)(nil)
