package compression

import "errors"

var errTruncatedRLE = errors.New("compression: truncated rle stream")
