// Package blockstore defines the BlockStore capability interface every
// layer of the on-disk, compressing, encrypting and caching stack
// implements, so each layer can be composed on top of the next without
// knowing its concrete type.
package blockstore

import (
	"errors"

	"github.com/thezedwards/cryfs/internal/block"
)

// ErrNotFound is returned by Load and Remove for a block id that doesn't
// exist in the store.
var ErrNotFound = errors.New("blockstore: block not found")

// ErrIntegrity is returned by Load when a block's envelope fails to
// authenticate: truncation, bit flip, or a block swapped in from a
// different id.
var ErrIntegrity = errors.New("blockstore: integrity check failed")

// ErrAlreadyExists is returned by Create when the caller-supplied id
// collides with an existing block.
var ErrAlreadyExists = errors.New("blockstore: block already exists")

// BlockStore is the capability every layer of the block-store stack
// implements: create a block under a fresh id, load/store/remove a block
// by id, enumerate every block (for fsck/GC), and flush buffered writes.
type BlockStore interface {
	// Create stores data under a freshly generated id and returns it.
	Create(data []byte) (block.ID, error)
	// Load returns the payload stored under id, or ErrNotFound.
	Load(id block.ID) ([]byte, error)
	// Store overwrites (or creates) the block at id with data.
	Store(id block.ID, data []byte) error
	// Remove deletes the block at id, or returns ErrNotFound.
	Remove(id block.ID) error
	// ForEachBlock calls fn once per block id currently in the store. fn's
	// error, if non-nil, stops iteration and is returned to the caller.
	ForEachBlock(fn func(block.ID) error) error
	// Flush durably persists any buffered writes.
	Flush() error
	// BlockSizeBytes returns the fixed size new blocks are padded/allotted
	// to, as configured at store creation time.
	BlockSizeBytes() int
}
