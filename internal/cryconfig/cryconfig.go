package cryconfig

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/thezedwards/cryfs/internal/block"
	"github.com/thezedwards/cryfs/internal/cryptocore"
)

// CreatingVersion is embedded in every config this build creates, and
// checked on load against the running version's compatibility policy.
const CreatingVersion = "1.0.0"

// Plaintext config keys, stable across format versions.
const (
	keyCipher        = "cryfs.cipher"
	keyEncryptionKey = "cryfs.encryptionKey"
	keyRootBlob      = "cryfs.rootblob"
	keyBlockSize     = "cryfs.blocksizeBytes"
	keyVersion       = "cryfs.version"
)

// DefaultBlockSizeBytes matches the teacher's default content block size,
// carried over unchanged since nothing in the specification asks for a
// different default.
const DefaultBlockSizeBytes = 4096

// ErrConfigFileDoesntExist means neither the external nor internal config
// path named an existing file.
var ErrConfigFileDoesntExist = errors.New("cryconfig: config file does not exist")

// ErrDecryptionFailed means the password was wrong or the envelope was
// tampered with; by design these are indistinguishable.
var ErrDecryptionFailed = errors.New("cryconfig: decryption failed")

// ErrIncompatibleVersion means cryfs.version in a successfully decrypted
// config is not compatible with this running build.
var ErrIncompatibleVersion = errors.New("cryconfig: incompatible filesystem version")

// CryConfig is the parsed, decrypted content of a cryfs.config file.
type CryConfig struct {
	Cipher           string
	EncryptionKey    []byte
	RootBlob         block.ID
	BlockSizeBytes   int
	CreatingVersion  string
}

// Create builds a fresh CryConfig: a random key sized for cipherName, an
// empty sentinel root blob id (the mount layer creates the root directory
// blob on first use), and the running creating-version.
func Create(cipherName string, blockSizeBytes int) (*CryConfig, error) {
	if !cryptocore.IsKnownCipher(cipherName) {
		return nil, fmt.Errorf("cryconfig: %w: %s", cryptocore.ErrUnknownCipher, cipherName)
	}
	keyLen, err := cryptocore.RawKeyLen(cipherName)
	if err != nil {
		return nil, err
	}
	if blockSizeBytes <= 0 {
		blockSizeBytes = DefaultBlockSizeBytes
	}
	return &CryConfig{
		Cipher:          cipherName,
		EncryptionKey:   cryptocore.RandBytes(keyLen),
		RootBlob:        block.ID{},
		BlockSizeBytes:  blockSizeBytes,
		CreatingVersion: CreatingVersion,
	}, nil
}

// serialize renders c as the plaintext key=value body that gets sealed
// into the config envelope.
func (c *CryConfig) serialize() []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s=%s\n", keyCipher, c.Cipher)
	fmt.Fprintf(&sb, "%s=%x\n", keyEncryptionKey, c.EncryptionKey)
	fmt.Fprintf(&sb, "%s=%s\n", keyRootBlob, c.RootBlob.String())
	fmt.Fprintf(&sb, "%s=%d\n", keyBlockSize, c.BlockSizeBytes)
	fmt.Fprintf(&sb, "%s=%s\n", keyVersion, c.CreatingVersion)
	return []byte(sb.String())
}

// parseCryConfig parses the plaintext key=value body produced by serialize.
func parseCryConfig(plaintext []byte) (*CryConfig, error) {
	c := &CryConfig{}
	seen := make(map[string]bool)
	for _, line := range strings.Split(string(plaintext), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("cryconfig: malformed config line: %q", line)
		}
		switch k {
		case keyCipher:
			c.Cipher = v
		case keyEncryptionKey:
			key := make([]byte, len(v)/2)
			if _, err := fmt.Sscanf(v, "%x", &key); err != nil {
				return nil, fmt.Errorf("cryconfig: bad encryptionKey encoding: %w", err)
			}
			c.EncryptionKey = key
		case keyRootBlob:
			id, err := block.ParseID(v)
			if err != nil {
				return nil, fmt.Errorf("cryconfig: bad rootblob id: %w", err)
			}
			c.RootBlob = id
		case keyBlockSize:
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("cryconfig: bad blocksizeBytes: %w", err)
			}
			c.BlockSizeBytes = n
		case keyVersion:
			c.CreatingVersion = v
		default:
			continue // unknown key, forward-compatible: ignore
		}
		seen[k] = true
	}
	for _, required := range []string{keyCipher, keyEncryptionKey, keyRootBlob, keyBlockSize, keyVersion} {
		if !seen[required] {
			return nil, fmt.Errorf("cryconfig: missing required key %q", required)
		}
	}
	return c, nil
}

// isCompatibleVersion applies a conservative semver-like policy: only the
// major version must match the running build's major version.
func isCompatibleVersion(v string) bool {
	running := strings.SplitN(CreatingVersion, ".", 2)[0]
	got := strings.SplitN(v, ".", 2)[0]
	return running == got
}
