// Package cryconfig implements cryfs's config file: a password-sealed
// envelope wrapping a small key=value plaintext body that names the
// cipher, master key, root blob id, and block size a mount uses.
package cryconfig

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/thezedwards/cryfs/internal/cryptocore"
)

// magic identifies a cryfs config file; any other leading bytes are
// rejected outright as ConfigFileDoesntExist's sibling condition (not a
// valid config at all, never mind the password).
var magic = [4]byte{'c', 'r', 'y', 'F'}

// FileFormatVersion is the current config envelope layout. Bumping it is
// how a future incompatible envelope change would be introduced; it is
// bound into the AEAD's associated data so an envelope sealed under one
// version can never be misread as another.
const FileFormatVersion uint16 = 1

// kdfID selects which KDF sealed a given envelope.
type kdfID byte

const (
	kdfScrypt   kdfID = 1
	kdfArgon2id kdfID = 2
)

// Seal serializes cfg and encrypts it under a key derived from password,
// returning the full on-disk envelope: magic || file_format_version ||
// kdf_id || kdf_params || ciphertext.
func Seal(cfg *CryConfig, password []byte, useArgon2id bool) ([]byte, error) {
	plaintext := cfg.serialize()
	ad := adFor(FileFormatVersion)

	var buf []byte
	buf = append(buf, magic[:]...)
	var versionBuf [2]byte
	binary.BigEndian.PutUint16(versionBuf[:], FileFormatVersion)
	buf = append(buf, versionBuf[:]...)

	if useArgon2id {
		kdf := NewArgon2idKDF()
		key := kdf.DeriveKey(password)
		aead, err := cryptocore.NewAEAD(cryptocore.AES256GCM, key)
		if err != nil {
			return nil, err
		}
		nonce := cryptocore.RandBytes(aead.NonceSize())
		ciphertext := aead.Seal(nil, nonce, plaintext, ad)

		buf = append(buf, byte(kdfArgon2id))
		buf = append(buf, marshalArgon2idParams(kdf)...)
		buf = append(buf, nonce...)
		buf = append(buf, ciphertext...)
		return buf, nil
	}

	kdf := NewScryptKDF(0)
	key := kdf.DeriveKey(password)
	aead, err := cryptocore.NewAEAD(cryptocore.AES256GCM, key)
	if err != nil {
		return nil, err
	}
	nonce := cryptocore.RandBytes(aead.NonceSize())
	ciphertext := aead.Seal(nil, nonce, plaintext, ad)

	buf = append(buf, byte(kdfScrypt))
	buf = append(buf, marshalScryptParams(&kdf)...)
	buf = append(buf, nonce...)
	buf = append(buf, ciphertext...)
	return buf, nil
}

// Open parses envelope, derives the key from password, and authenticates
// and decrypts the sealed body.
func Open(envelope []byte, password []byte) (*CryConfig, error) {
	if len(envelope) < 4+2+1 {
		return nil, ErrDecryptionFailed
	}
	if [4]byte(envelope[:4]) != magic {
		return nil, ErrDecryptionFailed
	}
	version := binary.BigEndian.Uint16(envelope[4:6])
	if version != FileFormatVersion {
		return nil, ErrIncompatibleVersion
	}
	rest := envelope[7:]
	id := kdfID(envelope[6])

	var key []byte
	switch id {
	case kdfScrypt:
		kdf, tail, err := unmarshalScryptParams(rest)
		if err != nil {
			return nil, ErrDecryptionFailed
		}
		key = kdf.DeriveKey(password)
		rest = tail
	case kdfArgon2id:
		kdf, tail, err := unmarshalArgon2idParams(rest)
		if err != nil {
			return nil, ErrDecryptionFailed
		}
		key = kdf.DeriveKey(password)
		rest = tail
	default:
		return nil, ErrDecryptionFailed
	}

	aead, err := cryptocore.NewAEAD(cryptocore.AES256GCM, key)
	if err != nil {
		return nil, err
	}
	if len(rest) < aead.NonceSize() {
		return nil, ErrDecryptionFailed
	}
	nonce := rest[:aead.NonceSize()]
	ciphertext := rest[aead.NonceSize():]

	ad := adFor(version)
	plaintext, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	cfg, err := parseCryConfig(plaintext)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if !isCompatibleVersion(cfg.CreatingVersion) {
		return nil, ErrIncompatibleVersion
	}
	return cfg, nil
}

func adFor(version uint16) []byte {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], version)
	return buf[:]
}

func marshalScryptParams(kdf *ScryptKDF) []byte {
	var buf []byte
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kdf.Salt)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, kdf.Salt...)
	var paramsBuf [12]byte
	binary.BigEndian.PutUint32(paramsBuf[0:4], uint32(kdf.N))
	binary.BigEndian.PutUint32(paramsBuf[4:8], uint32(kdf.R))
	binary.BigEndian.PutUint32(paramsBuf[8:12], uint32(kdf.P))
	buf = append(buf, paramsBuf[:]...)
	return buf
}

func unmarshalScryptParams(buf []byte) (ScryptKDF, []byte, error) {
	var kdf ScryptKDF
	if len(buf) < 4 {
		return kdf, nil, fmt.Errorf("cryconfig: truncated scrypt params")
	}
	saltLen := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint32(len(buf)) < saltLen+12 {
		return kdf, nil, fmt.Errorf("cryconfig: truncated scrypt params")
	}
	kdf.Salt = append([]byte(nil), buf[:saltLen]...)
	buf = buf[saltLen:]
	kdf.N = int(binary.BigEndian.Uint32(buf[0:4]))
	kdf.R = int(binary.BigEndian.Uint32(buf[4:8]))
	kdf.P = int(binary.BigEndian.Uint32(buf[8:12]))
	kdf.KeyLen = cryptocore.KeyLen
	return kdf, buf[12:], nil
}

func marshalArgon2idParams(kdf Argon2idKDF) []byte {
	var buf []byte
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kdf.Salt)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, kdf.Salt...)
	var paramsBuf [9]byte
	binary.BigEndian.PutUint32(paramsBuf[0:4], kdf.Memory)
	binary.BigEndian.PutUint32(paramsBuf[4:8], kdf.Iterations)
	paramsBuf[8] = kdf.Parallelism
	buf = append(buf, paramsBuf[:]...)
	return buf
}

func unmarshalArgon2idParams(buf []byte) (Argon2idKDF, []byte, error) {
	var kdf Argon2idKDF
	if len(buf) < 4 {
		return kdf, nil, fmt.Errorf("cryconfig: truncated argon2id params")
	}
	saltLen := binary.BigEndian.Uint32(buf[:4])
	buf = buf[4:]
	if uint32(len(buf)) < saltLen+9 {
		return kdf, nil, fmt.Errorf("cryconfig: truncated argon2id params")
	}
	kdf.Salt = append([]byte(nil), buf[:saltLen]...)
	buf = buf[saltLen:]
	kdf.Memory = binary.BigEndian.Uint32(buf[0:4])
	kdf.Iterations = binary.BigEndian.Uint32(buf[4:8])
	kdf.Parallelism = buf[8]
	kdf.KeyLen = cryptocore.KeyLen
	return kdf, buf[9:], nil
}

// Load implements the external-vs-internal config precedence: if
// externalPath is non-empty it is tried exclusively; otherwise basedir's
// own cryfs.config is used. Either missing file surfaces
// ErrConfigFileDoesntExist.
func Load(basedir, externalPath string, password []byte) (*CryConfig, error) {
	path := externalPath
	if path == "" {
		path = basedir + "/cryfs.config"
	}
	envelope, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileDoesntExist
		}
		return nil, err
	}
	return Open(envelope, password)
}
