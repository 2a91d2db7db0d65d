package poller

// Interest selects which readiness conditions a registered fd reports.
type Interest uint32

const (
	// Readable reports input readiness (data, EOF, or a pending accept).
	Readable Interest = 1 << iota
	// Writable reports that the socket send buffer has room.
	Writable
	// EdgeTriggered reports only transitions into the ready condition.
	EdgeTriggered
)

// Event is one readiness notification returned by Wait.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	// Hangup is set for error or hangup conditions, which are reported
	// regardless of the registered interest.
	Hangup bool
}

// Poller is the I/O multiplexing interface
type Poller interface {
	Add(fd int, interest Interest) error
	Modify(fd int, interest Interest) error
	Remove(fd int) error
	// Wait blocks for up to timeout milliseconds (-1 blocks indefinitely).
	// The returned slice is reused by the next call.
	Wait(timeout int) ([]Event, error)
	Close() error
}
