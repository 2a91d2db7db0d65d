package core

import (
	"errors"
	"time"
)

// Defaults applied by NewEngine to zero-valued options.
const (
	DefaultBacklog            = 5
	DefaultMaxHeaderBytes     = 8192
	DefaultBufferSize         = 8192
	DefaultHeaderWriteTimeout = 5 * time.Second
	DefaultMaxConnections     = 10000
)

// Error definitions
var (
	ErrServerClosed   = errors.New("server closed")
	ErrHeaderTooLarge = errors.New("response header exceeds send buffer")
	ErrWriteTimeout   = errors.New("synchronous write timed out")
	ErrShortRead      = errors.New("file shorter than its stat size")
)
