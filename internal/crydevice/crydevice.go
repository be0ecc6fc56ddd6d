// Package crydevice binds a loaded CryConfig to its composed block-store
// stack and exposes the mount-handle surface an OS-level filesystem
// adapter consumes.
package crydevice

import (
	"errors"
	"fmt"
	"sync"

	"github.com/thezedwards/cryfs/internal/block"
	"github.com/thezedwards/cryfs/internal/blobstore"
	"github.com/thezedwards/cryfs/internal/blockstore"
	"github.com/thezedwards/cryfs/internal/blockstore/caching"
	"github.com/thezedwards/cryfs/internal/blockstore/compressing"
	"github.com/thezedwards/cryfs/internal/blockstore/encrypting"
	"github.com/thezedwards/cryfs/internal/blockstore/ondisk"
	"github.com/thezedwards/cryfs/internal/compression"
	"github.com/thezedwards/cryfs/internal/cryconfig"
	"github.com/thezedwards/cryfs/internal/cryptocore"
	"github.com/thezedwards/cryfs/internal/memprotect"
	"github.com/thezedwards/cryfs/internal/tlog"
)

// ErrFilesystemInvalid means the tree rooted at the config's root blob id
// does not exist or is malformed - the root-blob-missing and broken-tree
// failure mode the specification elevates from a plain not-found.
var ErrFilesystemInvalid = errors.New("crydevice: filesystem invalid: root blob missing or tree malformed")

// ErrNoRootBlob means the config carries the empty sentinel root blob id:
// no root directory blob has been created yet.
var ErrNoRootBlob = errors.New("crydevice: no root blob created yet")

// CryDevice is a mounted cryfs filesystem: a loaded config plus the
// composed block-store stack (ondisk -> compressing -> encrypting ->
// caching) it controls. It is the thing a FUSE or other OS-level adapter
// mounts against.
type CryDevice struct {
	cipherName string
	cc         *cryptocore.CryptoCore
	mp         *memprotect.MemoryProtection
	key        []byte

	onDisk     *ondisk.Store
	compressed *compressing.Store
	encrypted  *encrypting.Store
	cache      *caching.Store

	mu       sync.Mutex
	rootBlob block.ID
}

// Open builds a CryDevice from a decrypted config and the basedir it was
// loaded from. compressionTag selects the compressing layer's algorithm;
// pass compression.TagNone to disable compression entirely.
func Open(cfg *cryconfig.CryConfig, basedir string, compressionTag compression.Tag, cacheCapacity int) (*CryDevice, error) {
	cc, err := cryptocore.New(cfg.Cipher, cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	if cc.Weak {
		tlog.Warn.Printf("crydevice: %s is a legacy non-AEAD-native cipher, prefer a GCM variant", cfg.Cipher)
	}

	onDisk, err := ondisk.New(basedir, cfg.BlockSizeBytes)
	if err != nil {
		return nil, err
	}

	var underlying blockstore.BlockStore = onDisk
	var compressed *compressing.Store
	if compressionTag != compression.TagNone {
		compressed, err = compressing.New(onDisk, compressionTag)
		if err != nil {
			return nil, err
		}
		underlying = compressed
	}

	encrypted := encrypting.New(underlying, cc)
	cache := caching.New(encrypted, cacheCapacity)

	mp := memprotect.New()
	key := mp.AllocatePageAligned(len(cfg.EncryptionKey))
	copy(key, cfg.EncryptionKey)

	return &CryDevice{
		cipherName: cfg.Cipher,
		cc:         cc,
		mp:         mp,
		key:        key,
		onDisk:     onDisk,
		compressed: compressed,
		encrypted:  encrypted,
		cache:      cache,
		rootBlob:   cfg.RootBlob,
	}, nil
}

// BlockStore returns the top of the composed block-store stack, the only
// handle the blobstore and higher layers should ever talk to.
func (d *CryDevice) BlockStore() blockstore.BlockStore { return d.cache }

// Geometry returns the tree geometry derived from this device's block
// size, frozen once and shared by every blob this device loads or creates.
func (d *CryDevice) Geometry() blobstore.Geometry {
	return blobstore.GeometryFor(d.onDisk.BlockSizeBytes())
}

// LoadRootBlob loads the root directory blob named by the config's root
// blob id. A missing or malformed tree is elevated to ErrFilesystemInvalid,
// per the specification's error-kind mapping for a structurally broken
// filesystem.
func (d *CryDevice) LoadRootBlob() (*blobstore.Blob, error) {
	root := d.RootBlobID()
	if root.IsZero() {
		return nil, ErrNoRootBlob
	}
	b, err := blobstore.Load(d.BlockStore(), d.Geometry(), root)
	if err == blobstore.ErrNotFound {
		return nil, ErrFilesystemInvalid
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// CreateRootBlob creates a fresh, empty root directory blob and records
// its id, used on first mount when the config's root blob id is still the
// empty sentinel.
func (d *CryDevice) CreateRootBlob() (*blobstore.Blob, error) {
	b, err := blobstore.Create(d.BlockStore(), d.Geometry())
	if err != nil {
		return nil, err
	}
	d.SetRootBlobID(b.Key())
	return b, nil
}

// CipherName returns the cipher this device was opened with.
func (d *CryDevice) CipherName() string { return d.cipherName }

// RootBlobID returns the device's current root blob id. The all-zero
// sentinel means no root directory blob has been created yet.
func (d *CryDevice) RootBlobID() block.ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rootBlob
}

// SetRootBlobID records the root blob id, used once on first mount after
// the adapter creates the root directory blob.
func (d *CryDevice) SetRootBlobID(id block.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rootBlob = id
}

// Close flushes the cache and wipes the in-memory key. Teardown order
// matters: the cache must push every dirty block through the encrypted
// layer before the key it was encrypting under is wiped.
func (d *CryDevice) Close() error {
	err := d.cache.Flush()
	d.mp.SecureWipeEnhanced(d.key)
	return err
}

// StatBlock looks up a block by its hex id and reports whether it exists
// and authenticates, without returning its contents.
func (d *CryDevice) StatBlock(idHex string) (string, error) {
	id, err := block.ParseID(idHex)
	if err != nil {
		return "", fmt.Errorf("bad block id: %w", err)
	}
	data, err := d.cache.Load(id)
	if err == blockstore.ErrNotFound {
		return "not found", nil
	}
	if err == blockstore.ErrIntegrity {
		return "integrity error", nil
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ok, %d bytes", len(data)), nil
}
