//go:build linux

// Package sendfile implements the zero-copy file to socket transfer loop.
package sendfile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Outcome reports how far a Transfer call got.
type Outcome uint8

const (
	// Suspended means the socket would block; resume on the next
	// write-ready notification with the same position.
	Suspended Outcome = iota
	// Completed means the position reached the file size.
	Completed
	// Failed means an unrecoverable I/O error occurred.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Suspended:
		return "suspended"
	case Completed:
		return "completed"
	default:
		return "failed"
	}
}

// ErrShortFile is returned when the file ends before its recorded size.
var ErrShortFile = errors.New("file shorter than its recorded size")

// maxChunk is the largest count the kernel transfers in one sendfile call.
const maxChunk = 0x7ffff000

// Transfer sends file bytes [*pos, size) to the socket without copying them
// through user space. *pos is advanced by the bytes actually sent, so a
// Suspended transfer resumes exactly where it stopped. The file is not
// closed here; its owner releases it on teardown.
func Transfer(sockFd, fileFd int, pos *int64, size int64) (Outcome, int64, error) {
	var sent int64
	for *pos < size {
		count := size - *pos
		if count > maxChunk {
			count = maxChunk
		}

		off := *pos
		n, err := unix.Sendfile(sockFd, fileFd, &off, int(count))
		if n > 0 {
			sent += off - *pos
			*pos = off
		}
		if err != nil {
			switch err {
			case unix.EINTR:
				continue
			case unix.EAGAIN:
				return Suspended, sent, nil
			}
			return Failed, sent, err
		}
		if n == 0 {
			return Failed, sent, ErrShortFile
		}
	}

	return Completed, sent, nil
}
