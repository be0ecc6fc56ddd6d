package caching

import (
	"bytes"
	"sync"
	"testing"

	"github.com/thezedwards/cryfs/internal/block"
	"github.com/thezedwards/cryfs/internal/blockstore"
)

type memStore struct {
	mu     sync.Mutex
	blocks map[block.ID][]byte
	nextID byte
}

func newMemStore() *memStore { return &memStore{blocks: map[block.ID][]byte{}} }

func (m *memStore) Create(data []byte) (block.ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	var id block.ID
	id[0] = m.nextID
	m.blocks[id] = append([]byte(nil), data...)
	return id, nil
}

func (m *memStore) Load(id block.ID) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.blocks[id]
	if !ok {
		return nil, blockstore.ErrNotFound
	}
	return d, nil
}

func (m *memStore) Store(id block.ID, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[id] = append([]byte(nil), data...)
	return nil
}

func (m *memStore) Remove(id block.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, id)
	return nil
}

func (m *memStore) ForEachBlock(fn func(block.ID) error) error {
	m.mu.Lock()
	ids := make([]block.ID, 0, len(m.blocks))
	for id := range m.blocks {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

func (m *memStore) Flush() error        { return nil }
func (m *memStore) BlockSizeBytes() int { return 32768 }

func TestStoreIsBufferedUntilFlush(t *testing.T) {
	mem := newMemStore()
	c := New(mem, DefaultCapacity)

	id, err := mem.Create([]byte("seed"))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Store(id, []byte("updated")); err != nil {
		t.Fatal(err)
	}

	// Underlying store has not seen the update yet.
	if got, _ := mem.Load(id); bytes.Equal(got, []byte("updated")) {
		t.Fatal("underlying store should not see the write before Flush")
	}
	// But a Load through the cache sees it.
	got, err := c.Load(id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("updated")) {
		t.Fatalf("cached load mismatch: got %q", got)
	}

	if err := c.Flush(); err != nil {
		t.Fatal(err)
	}
	got, err = mem.Load(id)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("updated")) {
		t.Fatalf("underlying store mismatch after flush: got %q", got)
	}
}

func TestEvictionFlushesDirtyEntries(t *testing.T) {
	mem := newMemStore()
	c := New(mem, 2) // tiny cache to force eviction

	var ids []block.ID
	for i := 0; i < 5; i++ {
		// Seed the block in the underlying store, then overwrite it through
		// the cache so the cached entry is dirty.
		id, err := mem.Create([]byte("seed"))
		if err != nil {
			t.Fatal(err)
		}
		if err := c.Store(id, []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	// Only 2 entries fit in the cache, so the first 3 dirty stores were
	// evicted, and eviction must have written them to the underlying store.
	for i, id := range ids[:3] {
		got, err := mem.Load(id)
		if err != nil {
			t.Fatalf("block %d missing from underlying store: %v", i, err)
		}
		if len(got) != 1 || got[0] != byte(i) {
			t.Fatalf("block %d mismatch: got %v", i, got)
		}
	}
}

func TestRemoveDropsFromCache(t *testing.T) {
	mem := newMemStore()
	c := New(mem, DefaultCapacity)
	id, err := c.Create([]byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Remove(id); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Load(id); err != blockstore.ErrNotFound {
		t.Fatalf("expected ErrNotFound after remove, got %v", err)
	}
}
