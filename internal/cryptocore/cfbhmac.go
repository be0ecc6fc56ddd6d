package cryptocore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"errors"
)

// cfbHMACAEAD wraps CFB encryption with an encrypt-then-MAC HMAC-SHA256 tag
// so the legacy aes-*-cfb ciphers present the same cipher.AEAD surface as
// the GCM-backed ones. CFB was cryfs's original cipher before AEAD support
// landed; it is kept for reading and writing old filesystems, not
// recommended for new ones.
type cfbHMACAEAD struct {
	block  cipher.Block
	macKey [sha256.Size]byte
}

func newCFBHMACAEAD(block cipher.Block, masterKey []byte) (cipher.AEAD, error) {
	return &cfbHMACAEAD{
		block:  block,
		macKey: sha256.Sum256(append([]byte("cryfs-cfb-hmac-v1"), masterKey...)),
	}, nil
}

func (c *cfbHMACAEAD) NonceSize() int { return IVLen }
func (c *cfbHMACAEAD) Overhead() int  { return sha256.Size }

func (c *cfbHMACAEAD) cfbIV(nonce []byte) []byte {
	iv := make([]byte, aes.BlockSize)
	copy(iv, nonce)
	return iv
}

func (c *cfbHMACAEAD) tag(additionalData, nonce, ciphertext []byte) []byte {
	mac := hmac.New(sha256.New, c.macKey[:])
	mac.Write(additionalData)
	mac.Write(nonce)
	mac.Write(ciphertext)
	return mac.Sum(nil)
}

func (c *cfbHMACAEAD) Seal(dst, nonce, plaintext, additionalData []byte) []byte {
	if len(nonce) != IVLen {
		panic("cfbHMACAEAD: bad nonce length")
	}
	ciphertext := make([]byte, len(plaintext))
	stream := cipher.NewCFBEncrypter(c.block, c.cfbIV(nonce))
	stream.XORKeyStream(ciphertext, plaintext)
	tag := c.tag(additionalData, nonce, ciphertext)
	ret, out := sliceForAppend(dst, len(ciphertext)+len(tag))
	copy(out, ciphertext)
	copy(out[len(ciphertext):], tag)
	return ret
}

func (c *cfbHMACAEAD) Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(nonce) != IVLen {
		return nil, errors.New("cfbHMACAEAD: bad nonce length")
	}
	if len(ciphertext) < sha256.Size {
		return nil, errors.New("cfbHMACAEAD: ciphertext too short")
	}
	body := ciphertext[:len(ciphertext)-sha256.Size]
	gotTag := ciphertext[len(ciphertext)-sha256.Size:]
	wantTag := c.tag(additionalData, nonce, body)
	if !hmac.Equal(gotTag, wantTag) {
		return nil, errors.New("cfbHMACAEAD: message authentication failed")
	}
	plaintext := make([]byte, len(body))
	stream := cipher.NewCFBDecrypter(c.block, c.cfbIV(nonce))
	stream.XORKeyStream(plaintext, body)
	ret, out := sliceForAppend(dst, len(plaintext))
	copy(out, plaintext)
	return ret, nil
}

func sliceForAppend(in []byte, n int) (head, tail []byte) {
	if total := len(in) + n; cap(in) >= total {
		head = in[:total]
	} else {
		head = make([]byte, total)
		copy(head, in)
	}
	tail = head[len(in):]
	return
}
