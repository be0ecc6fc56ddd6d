package cryptocore

import (
	"bytes"
	"testing"
)

func TestAEADRoundTrip(t *testing.T) {
	ciphers := []string{AES256GCM, AES128GCM, Twofish256GCM, Twofish128GCM, AES256CFB, AES128CFB}
	key := RandBytes(KeyLen)
	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	ad := []byte("block-id:format-version")

	for _, name := range ciphers {
		aead, err := NewAEAD(name, key)
		if err != nil {
			t.Fatalf("%s: NewAEAD failed: %v", name, err)
		}
		nonce := RandBytes(aead.NonceSize())
		ciphertext := aead.Seal(nil, nonce, plaintext, ad)
		got, err := aead.Open(nil, nonce, ciphertext, ad)
		if err != nil {
			t.Fatalf("%s: Open failed: %v", name, err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Fatalf("%s: round trip mismatch: got %q want %q", name, got, plaintext)
		}
	}
}

func TestAEADTamperDetected(t *testing.T) {
	key := RandBytes(KeyLen)
	aead, err := NewAEAD(AES256GCM, key)
	if err != nil {
		t.Fatal(err)
	}
	nonce := RandBytes(aead.NonceSize())
	ciphertext := aead.Seal(nil, nonce, []byte("payload"), []byte("ad"))
	ciphertext[0] ^= 0xff
	if _, err := aead.Open(nil, nonce, ciphertext, []byte("ad")); err == nil {
		t.Fatal("expected authentication failure on tampered ciphertext")
	}
}

func TestAEADWrongADRejected(t *testing.T) {
	key := RandBytes(KeyLen)
	aead, err := NewAEAD(AES256CFB, key)
	if err != nil {
		t.Fatal(err)
	}
	nonce := RandBytes(aead.NonceSize())
	ciphertext := aead.Seal(nil, nonce, []byte("payload"), []byte("ad-a"))
	if _, err := aead.Open(nil, nonce, ciphertext, []byte("ad-b")); err == nil {
		t.Fatal("expected authentication failure on mismatched associated data")
	}
}

func TestSerpentNotImplemented(t *testing.T) {
	key := RandBytes(KeyLen)
	for _, name := range []string{Serpent256GCM, Serpent128GCM} {
		if !IsKnownCipher(name) {
			t.Fatalf("%s should be a known cipher name", name)
		}
		_, err := NewAEAD(name, key)
		if err != ErrCipherNotImplemented {
			t.Fatalf("%s: expected ErrCipherNotImplemented, got %v", name, err)
		}
	}
}

func TestUnknownCipherRejected(t *testing.T) {
	if IsKnownCipher("rot13") {
		t.Fatal("rot13 should not be a known cipher")
	}
	if _, err := NewAEAD("rot13", RandBytes(KeyLen)); err != ErrUnknownCipher {
		t.Fatalf("expected ErrUnknownCipher, got %v", err)
	}
}

func TestLegacyCFBFlagged(t *testing.T) {
	if !IsLegacyCFB(AES256CFB) || !IsLegacyCFB(AES128CFB) {
		t.Fatal("CFB variants must be flagged legacy")
	}
	if IsLegacyCFB(AES256GCM) {
		t.Fatal("GCM variant must not be flagged legacy")
	}
}

func TestNewCryptoCore(t *testing.T) {
	key := RandBytes(KeyLen)
	cc, err := New(AES256GCM, key)
	if err != nil {
		t.Fatal(err)
	}
	if cc.Weak {
		t.Fatal("aes-256-gcm should not be marked weak")
	}
	if cc.IVLen != IVLen {
		t.Fatalf("IVLen mismatch: got %d want %d", cc.IVLen, IVLen)
	}

	cc2, err := New(AES128CFB, key)
	if err != nil {
		t.Fatal(err)
	}
	if !cc2.Weak {
		t.Fatal("aes-128-cfb should be marked weak")
	}
}
