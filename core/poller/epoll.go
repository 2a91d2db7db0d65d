//go:build linux

package poller

import (
	"golang.org/x/sys/unix"
)

// EpollPoller is an epoll-based I/O multiplexer
type EpollPoller struct {
	epfd   int
	events []unix.EpollEvent
	ready  []Event
}

// NewPoller creates a new Poller (Linux)
func NewPoller() (Poller, error) {
	return NewEpollPoller(1024)
}

// NewEpollPoller creates an epoll instance returning at most maxEvents
// notifications per Wait.
func NewEpollPoller(maxEvents int) (*EpollPoller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}

	return &EpollPoller{
		epfd:   epfd,
		events: make([]unix.EpollEvent, maxEvents),
		ready:  make([]Event, 0, maxEvents),
	}, nil
}

func epollMask(interest Interest) uint32 {
	var mask uint32
	if interest&Readable != 0 {
		mask |= unix.EPOLLIN
	}
	if interest&Writable != 0 {
		mask |= unix.EPOLLOUT
	}
	if interest&EdgeTriggered != 0 {
		mask |= unix.EPOLLET
	}
	return mask
}

// Add adds a file descriptor to the watch list
func (p *EpollPoller) Add(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: epollMask(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Modify replaces the interest set of a registered file descriptor.
// Re-arming an edge-triggered registration re-evaluates readiness, so an
// fd that is already writable reports once more.
func (p *EpollPoller) Modify(fd int, interest Interest) error {
	ev := unix.EpollEvent{Events: epollMask(interest), Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Remove removes a file descriptor from the watch list
func (p *EpollPoller) Remove(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait waits for I/O events
func (p *EpollPoller) Wait(timeout int) ([]Event, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeout)
	if err != nil {
		if err == unix.EINTR {
			return p.ready[:0], nil
		}
		return nil, err
	}

	ready := p.ready[:0]
	for i := 0; i < n; i++ {
		ev := p.events[i]
		ready = append(ready, Event{
			Fd:       int(ev.Fd),
			Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
			Writable: ev.Events&unix.EPOLLOUT != 0,
			Hangup:   ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		})
	}
	p.ready = ready

	return ready, nil
}

// Close closes the Poller
func (p *EpollPoller) Close() error {
	return unix.Close(p.epfd)
}
