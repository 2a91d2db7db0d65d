//go:build linux

package aio

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

var eventfdOne = func() []byte {
	b := make([]byte, 8)
	binary.NativeEndian.PutUint64(b, 1)
	return b
}()

func newEventfd() (int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return -1, fmt.Errorf("eventfd: %w", err)
	}
	return fd, nil
}

func signalEventfd(fd int) {
	for {
		_, err := unix.Write(fd, eventfdOne)
		if err != unix.EINTR {
			return
		}
	}
}

// drainEventfd resets the counter so the descriptor stops reporting readable.
func drainEventfd(fd int) {
	var buf [8]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != unix.EINTR {
			return
		}
	}
}
