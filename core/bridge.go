//go:build linux

package core

import (
	"errors"
	"fmt"
	"io"

	"github.com/searchktools/fast-fileserver/core/aio"
	"github.com/searchktools/fast-fileserver/core/sendfile"
	"golang.org/x/sys/unix"
)

// phase is the position of a dynamic transfer within one chunk cycle.
type phase uint8

const (
	phaseSubmit phase = iota
	phaseAwaitRead
	phaseDrain
)

// fdWriter writes straight to a non-blocking socket.
type fdWriter int

func (w fdWriter) Write(p []byte) (int, error) {
	return unix.Write(int(w), p)
}

// resumeDynamic advances a dynamic transfer as far as it can without
// blocking. Each cycle reads the next chunk of the file into sendBuf
// through the connection's async context and drains it to out. It returns
// Suspended when the read is still in flight or out would block; calling it
// again later continues from filePos and sendPos.
func resumeDynamic(c *Connection, out io.Writer) (sendfile.Outcome, error) {
	for {
		switch c.phase {
		case phaseSubmit:
			remaining := c.fileSize - c.filePos
			if remaining <= 0 {
				return sendfile.Completed, nil
			}
			chunk := int64(cap(c.sendBuf))
			if remaining < chunk {
				chunk = remaining
			}
			if err := c.aio.Submit(c.fileFd, c.sendBuf[:chunk], c.filePos); err != nil {
				return sendfile.Failed, fmt.Errorf("submit read at %d: %w", c.filePos, err)
			}
			c.phase = phaseAwaitRead

		case phaseAwaitRead:
			n, err := c.aio.Poll()
			if errors.Is(err, aio.ErrPending) {
				return sendfile.Suspended, nil
			}
			if err != nil {
				return sendfile.Failed, err
			}
			if n == 0 {
				return sendfile.Failed, ErrShortRead
			}
			c.filePos += int64(n)
			c.sendLen = n
			c.sendPos = 0
			c.phase = phaseDrain

		case phaseDrain:
			for c.sendPos < c.sendLen {
				n, err := out.Write(c.sendBuf[c.sendPos:c.sendLen])
				if n > 0 {
					c.sendPos += n
				}
				if err == nil {
					continue
				}
				if err == unix.EINTR {
					continue
				}
				if err == unix.EAGAIN {
					return sendfile.Suspended, nil
				}
				return sendfile.Failed, fmt.Errorf("send: %w", err)
			}
			c.phase = phaseSubmit
		}
	}
}
