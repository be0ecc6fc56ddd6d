package compression

import (
	"bytes"
	"testing"
)

func TestRLERoundTrip(t *testing.T) {
	cases := [][]byte{
		nil,
		{},
		[]byte("aaaaaaaaaabbbbbbbbbbbbcccccc"),
		bytes.Repeat([]byte{0}, 1000),
		[]byte("abcdefgh"), // no runs at all
	}
	a := rle{}
	for _, c := range cases {
		compressed := a.Compress(c)
		got, err := a.Decompress(compressed)
		if err != nil {
			t.Fatalf("decompress failed for %q: %v", c, err)
		}
		if !bytes.Equal(got, c) && !(len(got) == 0 && len(c) == 0) {
			t.Fatalf("round trip mismatch: got %q want %q", got, c)
		}
	}
}

func TestSnappyRoundTrip(t *testing.T) {
	a := snappyAlgorithm{}
	plain := bytes.Repeat([]byte("the quick brown fox "), 50)
	compressed := a.Compress(plain)
	got, err := a.Decompress(compressed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatal("snappy round trip mismatch")
	}
}

func TestByNameAndByTag(t *testing.T) {
	tag, err := ByName("snappy")
	if err != nil || tag != TagSnappy {
		t.Fatalf("ByName(snappy) = %v, %v", tag, err)
	}
	if _, err := ByName("bogus"); err == nil {
		t.Fatal("expected error for unknown algorithm name")
	}
	algo, err := ByTag(TagRLE)
	if err != nil || algo.Tag() != TagRLE {
		t.Fatalf("ByTag(TagRLE) = %v, %v", algo, err)
	}
	if _, err := ByTag(TagNone); err == nil {
		t.Fatal("ByTag(TagNone) should error: callers handle TagNone without an Algorithm")
	}
}
