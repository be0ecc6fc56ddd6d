package blobstore

import "errors"

// ErrNotFound is returned by Load when no block exists under the root id.
var ErrNotFound = errors.New("blobstore: root block not found")

var (
	errCorruptNode         = errors.New("blobstore: node header size inconsistent with block contents")
	errLeafIndexOutOfRange = errors.New("blobstore: leaf index out of range")
	errSubtreeTooLarge     = errors.New("blobstore: subtree size exceeds geometry capacity")
)
