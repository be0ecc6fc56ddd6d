// Package compression provides the pluggable compression algorithms
// CompressingBlockStore applies before a block reaches the encryption
// layer.
package compression

import "fmt"

// Tag identifies which algorithm (if any) produced a compressed payload.
// It is stored as the first byte of a compressing-layer block so Load can
// tell an incompressible/uncompressed block apart from a compressed one.
type Tag byte

const (
	// TagNone marks a payload stored verbatim because compressing it did
	// not shrink it, or because the configured algorithm is "none".
	TagNone Tag = 0
	// TagRLE marks a run-length-encoded payload.
	TagRLE Tag = 1
	// TagSnappy marks a snappy-compressed payload.
	TagSnappy Tag = 2
)

// Algorithm compresses and decompresses block payloads.
type Algorithm interface {
	Tag() Tag
	Compress(plain []byte) []byte
	Decompress(compressed []byte) ([]byte, error)
}

// ByTag returns the Algorithm registered for tag, or an error if tag is
// unrecognized. TagNone has no Algorithm implementation: callers handle it
// by storing/returning the payload unchanged.
func ByTag(tag Tag) (Algorithm, error) {
	switch tag {
	case TagRLE:
		return rle{}, nil
	case TagSnappy:
		return snappyAlgorithm{}, nil
	default:
		return nil, fmt.Errorf("compression: unknown tag %d", tag)
	}
}

// ByName resolves a CryConfig-facing algorithm name ("none", "rle",
// "snappy") to a Tag.
func ByName(name string) (Tag, error) {
	switch name {
	case "", "none":
		return TagNone, nil
	case "rle":
		return TagRLE, nil
	case "snappy":
		return TagSnappy, nil
	default:
		return 0, fmt.Errorf("compression: unknown algorithm name %q", name)
	}
}
