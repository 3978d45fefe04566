package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameCorrupt indicates a checksum mismatch or a malformed header.
	ErrFrameCorrupt = errors.New("frame corrupt")
	// ErrNeedMoreData indicates the input ends before a complete frame.
	ErrNeedMoreData = errors.New("need more data")
	// ErrIdle indicates a transaction which carries no frame.
	ErrIdle = errors.New("idle transaction")
)

func corruptf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrFrameCorrupt}, args...)...)
}
