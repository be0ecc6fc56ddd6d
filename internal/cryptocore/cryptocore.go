// Package cryptocore wraps the authenticated ciphers cryfs can use for a
// block store and the primitives shared by every cipher: key length, nonce
// length, and a buffered CSPRNG reader.
package cryptocore

import (
	"crypto/cipher"
	"crypto/rand"
	"log"
	"sync"
)

const (
	// KeyLen is the length in bytes of a derived master key, regardless of
	// which cipher the config selects. Ciphers that need a shorter raw key
	// (the "-128-" variants) take the leading KeyLen/2 bytes.
	KeyLen = 32
	// IVLen is the length in bytes of a per-block nonce for every AEAD this
	// package constructs. GCM and the CFB+HMAC legacy adapter are both
	// built with a 12-byte nonce so a single constant covers the stack.
	IVLen = 12
)

// CryptoCore binds an AEAD cipher to the parameters needed to use it
// correctly: the nonce length, and whether it is one of the legacy
// non-AEAD-native constructions that warrants a startup warning.
type CryptoCore struct {
	AEADCipher cipher.AEAD
	IVLen      int
	CipherName string
	Weak       bool
}

// New derives a CryptoCore for the named cipher and raw key.
func New(cipherName string, key []byte) (*CryptoCore, error) {
	aead, err := NewAEAD(cipherName, key)
	if err != nil {
		return nil, err
	}
	return &CryptoCore{
		AEADCipher: aead,
		IVLen:      aead.NonceSize(),
		CipherName: cipherName,
		Weak:       IsLegacyCFB(cipherName),
	}, nil
}

// RandBytes returns n cryptographically random bytes, read through a small
// prefetch buffer so hot paths (nonce generation per block) don't each pay
// for a fresh syscall.
func RandBytes(n int) []byte {
	return randPrefetcher.read(n)
}

// prefetchBufSize is how many random bytes randPrefetcher keeps in reserve.
const prefetchBufSize = 512

// prefetcher buffers random bytes read from crypto/rand behind a mutex so
// concurrent callers don't serialize on the OS CSPRNG for every nonce.
type prefetcher struct {
	mu  sync.Mutex
	buf []byte
}

func (p *prefetcher) read(want int) []byte {
	out := make([]byte, want)
	p.mu.Lock()
	defer p.mu.Unlock()
	if want > prefetchBufSize {
		if _, err := rand.Read(out); err != nil {
			log.Panicf("cryptocore: rand.Read failed: %v", err)
		}
		return out
	}
	if len(p.buf) < want {
		p.buf = make([]byte, prefetchBufSize)
		if _, err := rand.Read(p.buf); err != nil {
			log.Panicf("cryptocore: rand.Read failed: %v", err)
		}
	}
	n := copy(out, p.buf[:want])
	if n != want {
		log.Panicf("cryptocore: short prefetch copy: got %d want %d", n, want)
	}
	p.buf = p.buf[want:]
	return out
}

var randPrefetcher = &prefetcher{}
