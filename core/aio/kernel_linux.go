//go:build linux

package aio

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	iocbCmdPread  = 0
	iocbFlagResfd = 1 << 0
)

// iocb mirrors struct iocb from linux/aio_abi.h on little-endian targets.
type iocb struct {
	data      uint64
	key       uint32
	rwFlags   int32
	opcode    uint16
	reqprio   int16
	fildes    uint32
	buf       uint64
	nbytes    uint64
	offset    int64
	reserved2 uint64
	flags     uint32
	resfd     uint32
}

type ioEvent struct {
	data uint64
	obj  uint64
	res  int64
	res2 int64
}

type kernelContext struct {
	ctx      uintptr
	efd      int
	cb       iocb
	cbs      [1]*iocb
	buf      []byte
	inflight bool
	released bool
}

func newKernelContext() (*kernelContext, error) {
	k := &kernelContext{efd: -1}
	if _, _, errno := unix.Syscall(unix.SYS_IO_SETUP, 1, uintptr(unsafe.Pointer(&k.ctx)), 0); errno != 0 {
		return nil, fmt.Errorf("io_setup: %w", errno)
	}

	efd, err := newEventfd()
	if err != nil {
		unix.Syscall(unix.SYS_IO_DESTROY, k.ctx, 0, 0)
		return nil, err
	}
	k.efd = efd
	return k, nil
}

func (k *kernelContext) Submit(fd int, buf []byte, off int64) error {
	if k.released {
		return ErrReleased
	}
	if k.inflight {
		return ErrBusy
	}
	if len(buf) == 0 {
		return ErrEmptyBuffer
	}

	k.cb = iocb{
		opcode: iocbCmdPread,
		fildes: uint32(fd),
		buf:    uint64(uintptr(unsafe.Pointer(&buf[0]))),
		nbytes: uint64(len(buf)),
		offset: off,
		flags:  iocbFlagResfd,
		resfd:  uint32(k.efd),
	}
	k.cbs[0] = &k.cb

	for {
		n, _, errno := unix.Syscall(unix.SYS_IO_SUBMIT, k.ctx, 1, uintptr(unsafe.Pointer(&k.cbs[0])))
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return fmt.Errorf("io_submit: %w", errno)
		}
		if n != 1 {
			return errors.New("io_submit: request not queued")
		}
		break
	}

	// Keep buf reachable while the kernel writes into it.
	k.buf = buf
	k.inflight = true
	return nil
}

func (k *kernelContext) Poll() (int, error) {
	if k.released {
		return 0, ErrReleased
	}
	if !k.inflight {
		return 0, ErrIdle
	}

	var ev [1]ioEvent
	var ts unix.Timespec
	n, _, errno := unix.Syscall6(unix.SYS_IO_GETEVENTS, k.ctx, 1, 1,
		uintptr(unsafe.Pointer(&ev[0])), uintptr(unsafe.Pointer(&ts)), 0)
	if errno == unix.EINTR {
		return 0, ErrPending
	}
	if errno != 0 {
		return 0, fmt.Errorf("io_getevents: %w", errno)
	}
	if n == 0 {
		return 0, ErrPending
	}

	k.inflight = false
	k.buf = nil
	drainEventfd(k.efd)

	if ev[0].res < 0 {
		return 0, fmt.Errorf("aio read: %w", unix.Errno(-ev[0].res))
	}
	if ev[0].res2 != 0 {
		return 0, fmt.Errorf("aio read: secondary result %d", ev[0].res2)
	}
	return int(ev[0].res), nil
}

func (k *kernelContext) Fd() int { return k.efd }

func (k *kernelContext) Release() error {
	if k.released {
		return ErrReleased
	}
	k.released = true

	// io_destroy waits for in-flight requests.
	var err error
	if _, _, errno := unix.Syscall(unix.SYS_IO_DESTROY, k.ctx, 0, 0); errno != 0 {
		err = fmt.Errorf("io_destroy: %w", errno)
	}
	k.buf = nil
	k.inflight = false
	if cerr := unix.Close(k.efd); cerr != nil && err == nil {
		err = fmt.Errorf("close eventfd: %w", cerr)
	}
	return err
}

// KernelProvider creates contexts on Linux native AIO.
type KernelProvider struct{}

func (KernelProvider) NewContext() (Context, error) {
	k, err := newKernelContext()
	if err != nil {
		return nil, err
	}
	return k, nil
}

func (KernelProvider) Backend() string { return BackendKernel }

func (KernelProvider) Close() {}
