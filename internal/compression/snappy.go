package compression

import "github.com/golang/snappy"

// snappyAlgorithm wraps github.com/golang/snappy, the same codec
// creachadair-ffs's encrypted storage codec applies before sealing.
type snappyAlgorithm struct{}

func (snappyAlgorithm) Tag() Tag { return TagSnappy }

func (snappyAlgorithm) Compress(plain []byte) []byte {
	return snappy.Encode(nil, plain)
}

func (snappyAlgorithm) Decompress(compressed []byte) ([]byte, error) {
	return snappy.Decode(nil, compressed)
}
