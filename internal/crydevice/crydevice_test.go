package crydevice

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/thezedwards/cryfs/internal/blockstore/caching"
	"github.com/thezedwards/cryfs/internal/compression"
	"github.com/thezedwards/cryfs/internal/cryconfig"
	"github.com/thezedwards/cryfs/internal/cryptocore"
)

func createAndSeal(t *testing.T, basedir, cipherName, password string) {
	t.Helper()
	cfg, err := cryconfig.Create(cipherName, 4096)
	if err != nil {
		t.Fatalf("cryconfig.Create: %v", err)
	}
	envelope, err := cryconfig.Seal(cfg, []byte(password), false)
	if err != nil {
		t.Fatalf("cryconfig.Seal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(basedir, "cryfs.config"), envelope, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// TestCreateLoadCipherEcho covers end-to-end scenario 1: create, then
// load with the same password, and check the mount handle's cipher name.
func TestCreateLoadCipherEcho(t *testing.T) {
	dir := t.TempDir()
	createAndSeal(t, dir, cryptocore.AES256GCM, "mypassword")

	cfg, err := cryconfig.Load(dir, "", []byte("mypassword"))
	if err != nil {
		t.Fatalf("cryconfig.Load: %v", err)
	}
	dev, err := Open(cfg, dir, compression.TagNone, caching.DefaultCapacity)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev.Close()

	if dev.CipherName() != cryptocore.AES256GCM {
		t.Fatalf("CipherName() = %q, want %q", dev.CipherName(), cryptocore.AES256GCM)
	}
}

// TestWrongPassword covers end-to-end scenario 2.
func TestWrongPassword(t *testing.T) {
	dir := t.TempDir()
	createAndSeal(t, dir, cryptocore.AES256GCM, "mypassword")

	if _, err := cryconfig.Load(dir, "", []byte("wrong_password")); err != cryconfig.ErrDecryptionFailed {
		t.Fatalf("Load with wrong password = %v, want ErrDecryptionFailed", err)
	}
}

// TestMissingRootBlob covers end-to-end scenario 3: create, populate a
// root blob, delete every block file, then loading the root blob reports
// ErrFilesystemInvalid.
func TestMissingRootBlob(t *testing.T) {
	dir := t.TempDir()
	createAndSeal(t, dir, cryptocore.AES256GCM, "mypassword")

	cfg, err := cryconfig.Load(dir, "", []byte("mypassword"))
	if err != nil {
		t.Fatalf("cryconfig.Load: %v", err)
	}
	dev, err := Open(cfg, dir, compression.TagNone, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := dev.CreateRootBlob(); err != nil {
		t.Fatalf("CreateRootBlob: %v", err)
	}
	// Record the root blob id in the sealed config, as `cryfs create` does.
	cfg.RootBlob = dev.RootBlobID()
	envelope, err := cryconfig.Seal(cfg, []byte("mypassword"), false)
	if err != nil {
		t.Fatalf("cryconfig.Seal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "cryfs.config"), envelope, 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() == "cryfs.config" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			t.Fatalf("RemoveAll %s: %v", e.Name(), err)
		}
	}

	cfg2, err := cryconfig.Load(dir, "", []byte("mypassword"))
	if err != nil {
		t.Fatalf("cryconfig.Load (2nd): %v", err)
	}
	dev2, err := Open(cfg2, dir, compression.TagNone, 16)
	if err != nil {
		t.Fatalf("Open (2nd): %v", err)
	}
	defer dev2.Close()

	if _, err := dev2.LoadRootBlob(); err != ErrFilesystemInvalid {
		t.Fatalf("LoadRootBlob after deleting all blocks = %v, want ErrFilesystemInvalid", err)
	}
}

// TestExternalConfigWins covers end-to-end scenario 4.
func TestExternalConfigWins(t *testing.T) {
	dir := t.TempDir()
	createAndSeal(t, dir, cryptocore.AES256GCM, "internal password")

	externalDir := t.TempDir()
	externalCfg, err := cryconfig.Create(cryptocore.Twofish256GCM, 4096)
	if err != nil {
		t.Fatalf("cryconfig.Create external: %v", err)
	}
	externalEnvelope, err := cryconfig.Seal(externalCfg, []byte("external password"), false)
	if err != nil {
		t.Fatalf("cryconfig.Seal external: %v", err)
	}
	externalPath := filepath.Join(externalDir, "external.conf")
	if err := os.WriteFile(externalPath, externalEnvelope, 0600); err != nil {
		t.Fatalf("write external: %v", err)
	}

	cfg, err := cryconfig.Load(dir, externalPath, []byte("external password"))
	if err != nil {
		t.Fatalf("Load with external: %v", err)
	}
	if cfg.Cipher != cryptocore.Twofish256GCM {
		t.Fatalf("external-config cipher = %q, want %q", cfg.Cipher, cryptocore.Twofish256GCM)
	}

	internalCfg, err := cryconfig.Load(dir, "", []byte("internal password"))
	if err != nil {
		t.Fatalf("Load internal: %v", err)
	}
	if internalCfg.Cipher != cryptocore.AES256GCM {
		t.Fatalf("internal-config cipher = %q, want %q", internalCfg.Cipher, cryptocore.AES256GCM)
	}
}

// TestIntegrityTamperAndSwap covers end-to-end scenario 6.
func TestIntegrityTamperAndSwap(t *testing.T) {
	dir := t.TempDir()
	createAndSeal(t, dir, cryptocore.AES256GCM, "mypassword")

	cfg, err := cryconfig.Load(dir, "", []byte("mypassword"))
	if err != nil {
		t.Fatalf("cryconfig.Load: %v", err)
	}
	dev, err := Open(cfg, dir, compression.TagNone, 16)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev.Close()

	store := dev.BlockStore()
	id1, err := store.Create([]byte("first block payload"))
	if err != nil {
		t.Fatalf("Create block 1: %v", err)
	}
	id2, err := store.Create([]byte("second block payload"))
	if err != nil {
		t.Fatalf("Create block 2: %v", err)
	}
	if err := store.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	// Load through a second device: its cache is cold, so the loads below
	// read the block files instead of the first device's cached plaintext.
	fresh, err := Open(cfg, dir, compression.TagNone, 16)
	if err != nil {
		t.Fatalf("Open (fresh): %v", err)
	}
	defer fresh.Close()
	store = fresh.BlockStore()

	path1 := blockPath(dir, id1)
	raw, err := os.ReadFile(path1)
	if err != nil {
		t.Fatalf("read block file: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	if err := os.WriteFile(path1, raw, 0600); err != nil {
		t.Fatalf("write tampered block file: %v", err)
	}

	if _, err := store.Load(id1); err == nil {
		t.Fatal("Load on tampered block should fail")
	}

	path2 := blockPath(dir, id2)
	raw2, err := os.ReadFile(path2)
	if err != nil {
		t.Fatalf("read block 2 file: %v", err)
	}
	if err := os.WriteFile(path1, raw2, 0600); err != nil {
		t.Fatalf("overwrite block 1 with block 2's bytes: %v", err)
	}
	if _, err := store.Load(id1); err == nil {
		t.Fatal("Load on swapped-content block should fail (AD binds the id)")
	}
}

func blockPath(basedir string, id interface{ String() string }) string {
	hex := id.String()
	return filepath.Join(basedir, hex[:2], hex[2:])
}
