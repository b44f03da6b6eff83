package reliable

import "errors"

// ErrClosed is returned by Send once the sender has been closed.
var ErrClosed = errors.New("reliable: sender closed")
