package cryptocore

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"golang.org/x/crypto/twofish"
)

// Cipher names. This is the closed set a CryConfig's cryfs.cipher field may
// name; NewAEAD recognizes all of them but cannot instantiate every one.
const (
	AES256GCM     = "aes-256-gcm"
	AES128GCM     = "aes-128-gcm"
	Twofish256GCM = "twofish-256-gcm"
	Twofish128GCM = "twofish-128-gcm"
	AES256CFB     = "aes-256-cfb"
	AES128CFB     = "aes-128-cfb"
	Serpent256GCM = "serpent-256-gcm"
	Serpent128GCM = "serpent-128-gcm"
)

// ErrUnknownCipher is returned for a cipher name outside the closed set.
var ErrUnknownCipher = errors.New("cryptocore: unknown cipher name")

// ErrCipherNotImplemented is returned for a cipher this build recognizes by
// name but cannot instantiate. Only the serpent variants hit this: no
// verified Go serpent implementation was available to wire in, and the
// config format still needs to round-trip configs that name it.
var ErrCipherNotImplemented = errors.New("cryptocore: cipher recognized but not implemented in this build")

// RawKeyLen returns the raw symmetric key length a cipher name requires.
func RawKeyLen(name string) (int, error) {
	switch name {
	case AES256GCM, Twofish256GCM, AES256CFB, Serpent256GCM:
		return 32, nil
	case AES128GCM, Twofish128GCM, AES128CFB, Serpent128GCM:
		return 16, nil
	default:
		return 0, ErrUnknownCipher
	}
}

// IsLegacyCFB reports whether name is one of the non-AEAD-native CFB+HMAC
// constructions, which NewAEAD still wraps to satisfy cipher.AEAD but which
// callers should flag to the user as weaker than the GCM variants.
func IsLegacyCFB(name string) bool {
	return name == AES256CFB || name == AES128CFB
}

// IsKnownCipher reports whether name is part of the closed cipher set,
// independent of whether this build can actually instantiate it.
func IsKnownCipher(name string) bool {
	_, err := RawKeyLen(name)
	return err == nil
}

// NewAEAD constructs the AEAD cipher named by cipherName from a KeyLen-byte
// master key. Ciphers whose raw key is shorter than KeyLen take the leading
// bytes of key.
func NewAEAD(cipherName string, key []byte) (cipher.AEAD, error) {
	n, err := RawKeyLen(cipherName)
	if err != nil {
		return nil, err
	}
	if len(key) < n {
		return nil, fmt.Errorf("cryptocore: key too short for %s: have %d want %d", cipherName, len(key), n)
	}
	rawKey := key[:n]

	switch cipherName {
	case AES256GCM, AES128GCM:
		block, err := aes.NewCipher(rawKey)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCMWithNonceSize(block, IVLen)
	case Twofish256GCM, Twofish128GCM:
		block, err := twofish.NewCipher(rawKey)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCMWithNonceSize(block, IVLen)
	case AES256CFB, AES128CFB:
		block, err := aes.NewCipher(rawKey)
		if err != nil {
			return nil, err
		}
		return newCFBHMACAEAD(block, key)
	case Serpent256GCM, Serpent128GCM:
		return nil, ErrCipherNotImplemented
	default:
		return nil, ErrUnknownCipher
	}
}
