// Package aio provides per-connection asynchronous positional reads whose
// completions are signalled through an eventfd, so the event loop can wait
// on them alongside socket readiness.
package aio

import "errors"

var (
	// ErrBusy is returned by Submit while a read is still outstanding.
	ErrBusy = errors.New("aio: read already in flight")
	// ErrPending is returned by Poll when the outstanding read has not completed.
	ErrPending = errors.New("aio: read pending")
	// ErrIdle is returned by Poll when no read has been submitted.
	ErrIdle = errors.New("aio: no read submitted")
	// ErrReleased is returned by every call on a released context.
	ErrReleased = errors.New("aio: context released")
	// ErrEmptyBuffer is returned by Submit for a zero-length destination.
	ErrEmptyBuffer = errors.New("aio: empty read buffer")
)

const (
	BackendKernel = "kernel"
	BackendPool   = "pool"
)

// Context carries at most one outstanding read.
type Context interface {
	// Submit starts reading len(buf) bytes of fd at off into buf. buf must
	// not be touched until Poll reports the read finished.
	Submit(fd int, buf []byte, off int64) error

	// Poll reports the outcome of the outstanding read without blocking.
	// It returns ErrPending while the read is in progress.
	Poll() (int, error)

	// Fd returns a descriptor that becomes readable when a read completes.
	Fd() int

	// Release waits for any outstanding read and frees the context. It
	// returns ErrReleased when called again.
	Release() error
}

// Provider hands out contexts backed by one mechanism.
type Provider interface {
	NewContext() (Context, error)
	Backend() string
	Close()
}
