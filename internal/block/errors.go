package block

import "errors"

var (
	errBadIDLength = errors.New("block: id string has wrong length")
	errBadIDChar   = errors.New("block: id string has non-hex character")
	errShortHeader = errors.New("block: buffer shorter than a node header")
)
