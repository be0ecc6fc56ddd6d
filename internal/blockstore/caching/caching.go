// Package caching wraps a blockstore.BlockStore with a bounded, in-memory
// write-back cache: stores land in memory first and are pushed down to the
// underlying store only when evicted or on an explicit Flush, the same
// write-back shape creachadair-ffs's wbstore uses for a generic blob.Store,
// generalized here to a fixed-size LRU over 16-byte block ids.
package caching

import (
	"container/list"
	"sync"

	"github.com/thezedwards/cryfs/internal/block"
	"github.com/thezedwards/cryfs/internal/blockstore"
	"github.com/thezedwards/cryfs/internal/parallelcrypto"
)

// DefaultCapacity is the default number of blocks the cache holds before it
// starts evicting the least recently used entry.
const DefaultCapacity = 1000

type entry struct {
	id    block.ID
	data  []byte
	dirty bool
}

// Store is an LRU write-back cache in front of an underlying
// blockstore.BlockStore.
type Store struct {
	underlying blockstore.BlockStore
	capacity   int
	par        *parallelcrypto.ParallelCrypto

	mu     sync.Mutex
	lru    *list.List // front = most recently used
	lookup map[block.ID]*list.Element
}

// New wraps underlying with an LRU cache holding at most capacity blocks.
func New(underlying blockstore.BlockStore, capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		underlying: underlying,
		capacity:   capacity,
		par:        parallelcrypto.New(),
		lru:        list.New(),
		lookup:     make(map[block.ID]*list.Element),
	}
}

// touch moves id's element to the front of the LRU list, inserting a fresh
// element if id isn't already cached, and reports any error evicting the
// entry that fell off the back. Must be called with mu held.
func (s *Store) touch(id block.ID, data []byte, dirty bool) error {
	if el, ok := s.lookup[id]; ok {
		e := el.Value.(*entry)
		if data != nil {
			e.data = data
		}
		e.dirty = e.dirty || dirty
		s.lru.MoveToFront(el)
		return nil
	}
	el := s.lru.PushFront(&entry{id: id, data: data, dirty: dirty})
	s.lookup[id] = el
	return s.evictLocked()
}

// evictLocked evicts least recently used clean entries until the cache is
// back under capacity. A dirty entry is flushed to the underlying store
// before eviction so a full cache never silently loses writes: if the
// write-back fails, the entry stays in the cache (still dirty, still
// looked up) rather than being dropped, and the failure is returned to the
// caller instead of swallowed. Eviction stops at the first such failure,
// which may leave the cache briefly over capacity until a later Flush or
// retried eviction clears it.
func (s *Store) evictLocked() error {
	for s.lru.Len() > s.capacity {
		back := s.lru.Back()
		e := back.Value.(*entry)
		if e.dirty {
			if err := s.underlying.Store(e.id, e.data); err != nil {
				return err
			}
			e.dirty = false
		}
		s.lru.Remove(back)
		delete(s.lookup, e.id)
	}
	return nil
}

func (s *Store) Create(data []byte) (block.ID, error) {
	id, err := s.underlying.Create(data)
	if err != nil {
		return block.ID{}, err
	}
	s.mu.Lock()
	err = s.touch(id, data, false)
	s.mu.Unlock()
	if err != nil {
		return block.ID{}, err
	}
	return id, nil
}

func (s *Store) Load(id block.ID) ([]byte, error) {
	s.mu.Lock()
	if el, ok := s.lookup[id]; ok {
		e := el.Value.(*entry)
		s.lru.MoveToFront(el)
		data := append([]byte(nil), e.data...)
		s.mu.Unlock()
		return data, nil
	}
	s.mu.Unlock()

	data, err := s.underlying.Load(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	err = s.touch(id, append([]byte(nil), data...), false)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) Store(id block.ID, data []byte) error {
	s.mu.Lock()
	err := s.touch(id, append([]byte(nil), data...), true)
	s.mu.Unlock()
	return err
}

func (s *Store) Remove(id block.ID) error {
	s.mu.Lock()
	if el, ok := s.lookup[id]; ok {
		s.lru.Remove(el)
		delete(s.lookup, id)
	}
	s.mu.Unlock()
	return s.underlying.Remove(id)
}

func (s *Store) ForEachBlock(fn func(block.ID) error) error {
	if err := s.Flush(); err != nil {
		return err
	}
	return s.underlying.ForEachBlock(fn)
}

// Flush pushes every dirty cached block to the underlying store, fanning
// the writes out across workers through parallelcrypto when there are
// enough of them to be worth it. It is the durability barrier: callers
// that need "this write is safe on disk" must call Flush.
func (s *Store) Flush() error {
	s.mu.Lock()
	var dirty []*entry
	for el := s.lru.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry)
		if e.dirty {
			dirty = append(dirty, e)
		}
	}
	s.mu.Unlock()

	if len(dirty) == 0 {
		return s.underlying.Flush()
	}

	errs := make([]error, len(dirty))
	s.par.ProcessBlocksParallel(len(dirty), func(start, end int) {
		for i := start; i < end; i++ {
			errs[i] = s.underlying.Store(dirty[i].id, dirty[i].data)
		}
	})
	s.mu.Lock()
	for i, e := range dirty {
		if errs[i] == nil {
			e.dirty = false
		}
	}
	s.mu.Unlock()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return s.underlying.Flush()
}

func (s *Store) BlockSizeBytes() int { return s.underlying.BlockSizeBytes() }

var _ blockstore.BlockStore = (*Store)(nil)
