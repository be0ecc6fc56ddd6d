// Package speed implements the "-speed" command-line option, similar to
// "openssl speed". It benchmarks the ciphers and block-store stack cryfs
// can use.
package speed

import (
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/thezedwards/cryfs/internal/blobstore"
	"github.com/thezedwards/cryfs/internal/blockstore/caching"
	"github.com/thezedwards/cryfs/internal/blockstore/encrypting"
	"github.com/thezedwards/cryfs/internal/blockstore/ondisk"
	"github.com/thezedwards/cryfs/internal/cpudetection"
	"github.com/thezedwards/cryfs/internal/cryptocore"
)

// 16-byte block id + 2-byte format version, the AD every block-store layer
// binds a block to.
const adLen = 18

// cryfs's default content block size.
const defaultBlockSize = 4096

// Run runs the speed test and prints the results.
func Run() {
	runCipherSpeedTest()
}

// RunEnhanced runs the cipher test plus decryption and block-size scaling.
func RunEnhanced() {
	runCipherSpeedTest()
	fmt.Println()
	runDecryptionSpeedTest()
	fmt.Println()
	runBlockSizeSpeedTest()
	fmt.Println()
	runBlockStoreStackSpeedTest()
	fmt.Println()
	RunOptimizedSpeedTests()
}

// cipherNames is every cipher NewAEAD can instantiate; the serpent variants
// are excluded since they return ErrCipherNotImplemented in this build.
var cipherNames = []string{
	cryptocore.AES256GCM,
	cryptocore.AES128GCM,
	cryptocore.Twofish256GCM,
	cryptocore.Twofish128GCM,
	cryptocore.AES256CFB,
	cryptocore.AES128CFB,
}

func runCipherSpeedTest() {
	cpu := cpuModelName()
	fmt.Printf("cpu: %s\n", cpu)

	testing.Init()
	for _, name := range cipherNames {
		fmt.Printf("%-20s\t", name)
		mbs := mbPerSec(testing.Benchmark(func(b *testing.B) { bEncrypt(b, name) }))
		if mbs > 0 {
			fmt.Printf("%7.2f MB/s\n", mbs)
		} else {
			fmt.Printf("    N/A\n")
		}
	}
}

func runDecryptionSpeedTest() {
	fmt.Println("Decryption Performance:")
	fmt.Println("======================")

	testing.Init()
	for _, name := range cipherNames {
		fmt.Printf("%-20s\t", name+" (decrypt)")
		mbs := mbPerSec(testing.Benchmark(func(b *testing.B) { bDecrypt(b, name) }))
		if mbs > 0 {
			fmt.Printf("%7.2f MB/s\n", mbs)
		} else {
			fmt.Printf("    N/A\n")
		}
	}
}

func runBlockSizeSpeedTest() {
	fmt.Println("Block Size Scaling (aes-256-gcm):")
	fmt.Println("=====================================")

	blockSizes := []int{1024, 4096, 16384, 65536, 262144, 1048576}

	testing.Init()
	for _, size := range blockSizes {
		fmt.Printf("%-8d bytes\t", size)
		mbs := mbPerSec(testing.Benchmark(func(b *testing.B) { bEncryptBlockSize(b, cryptocore.AES256GCM, size) }))
		if mbs > 0 {
			fmt.Printf("%7.2f MB/s\n", mbs)
		} else {
			fmt.Printf("    N/A\n")
		}
	}
}

// runBlockStoreStackSpeedTest benchmarks the composed block-store stack
// (on-disk -> encrypting -> caching) and a blob's random-access write path
// on top of it, against a scratch directory under os.TempDir.
func runBlockStoreStackSpeedTest() {
	fmt.Println("Block-Store Stack Throughput:")
	fmt.Println("==============================")

	dir, err := os.MkdirTemp("", "cryfs-speed-")
	if err != nil {
		fmt.Printf("could not create scratch dir: %v\n", err)
		return
	}
	defer os.RemoveAll(dir)

	onDisk, err := ondisk.New(dir, defaultBlockSize)
	if err != nil {
		fmt.Printf("ondisk.New: %v\n", err)
		return
	}
	cc, err := cryptocore.New(cryptocore.AES256GCM, randBytes(cryptocore.KeyLen))
	if err != nil {
		fmt.Printf("cryptocore.New: %v\n", err)
		return
	}
	stack := caching.New(encrypting.New(onDisk, cc), caching.DefaultCapacity)

	testing.Init()
	fmt.Printf("%-30s\t", "block Create+Load")
	mbs := mbPerSec(testing.Benchmark(func(b *testing.B) {
		payload := randBytes(defaultBlockSize)
		b.SetBytes(int64(len(payload)))
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			id, err := stack.Create(payload)
			if err != nil {
				b.Fatal(err)
			}
			if _, err := stack.Load(id); err != nil {
				b.Fatal(err)
			}
		}
	}))
	if mbs > 0 {
		fmt.Printf("%7.2f MB/s\n", mbs)
	} else {
		fmt.Printf("    N/A\n")
	}

	fmt.Printf("%-30s\t", "blob sequential write")
	geom := blobstore.GeometryFor(defaultBlockSize)
	mbs = mbPerSec(testing.Benchmark(func(b *testing.B) {
		blob, err := blobstore.Create(stack, geom)
		if err != nil {
			b.Fatal(err)
		}
		chunk := randBytes(defaultBlockSize)
		b.SetBytes(int64(len(chunk)))
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if err := blob.Write(chunk, uint64(i)*uint64(len(chunk))); err != nil {
				b.Fatal(err)
			}
		}
		b.StopTimer()
		if err := blob.Flush(); err != nil {
			b.Fatal(err)
		}
	}))
	if mbs > 0 {
		fmt.Printf("%7.2f MB/s\n", mbs)
	} else {
		fmt.Printf("    N/A\n")
	}
}

func cpuModelName() string {
	model := cpudetection.New().GetModel()
	if model == "" {
		return "unknown"
	}
	return model
}

func mbPerSec(r testing.BenchmarkResult) float64 {
	if r.Bytes <= 0 || r.T <= 0 || r.N <= 0 {
		return 0
	}
	return (float64(r.Bytes) * float64(r.N) / 1e6) / r.T.Seconds()
}

// randBytes returns n cryptographically random bytes, or panics.
func randBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		log.Panic("Failed to read random bytes: " + err.Error())
	}
	return b
}

func bEncrypt(b *testing.B, cipherName string) {
	bEncryptBlockSize(b, cipherName, defaultBlockSize)
}

func bEncryptBlockSize(b *testing.B, cipherName string, blockSize int) {
	aead, err := cryptocore.NewAEAD(cipherName, randBytes(cryptocore.KeyLen))
	if err != nil {
		b.Skipf("cipher unavailable: %v", err)
	}
	authData := randBytes(adLen)
	iv := randBytes(aead.NonceSize())
	in := make([]byte, blockSize)
	dst := make([]byte, 0, len(in)+len(iv)+aead.Overhead())

	b.SetBytes(int64(len(in)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dst = dst[:0]
		aead.Seal(dst, iv, in, authData)
	}
}

func bDecrypt(b *testing.B, cipherName string) {
	aead, err := cryptocore.NewAEAD(cipherName, randBytes(cryptocore.KeyLen))
	if err != nil {
		b.Skipf("cipher unavailable: %v", err)
	}
	authData := randBytes(adLen)
	iv := randBytes(aead.NonceSize())
	plain := randBytes(defaultBlockSize)
	ciphertext := aead.Seal(nil, iv, plain, authData)

	dst := make([]byte, 0, len(plain))
	b.SetBytes(int64(len(plain)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dst = dst[:0]
		if _, err := aead.Open(dst, iv, ciphertext, authData); err != nil {
			b.Fatal(err)
		}
	}
}
