//go:build linux

package core

import (
	"os"
	"time"

	"github.com/searchktools/fast-fileserver/core/aio"
	"github.com/searchktools/fast-fileserver/core/http"
	"github.com/searchktools/fast-fileserver/core/poller"
	"github.com/searchktools/fast-fileserver/core/resource"
)

// Connection is the per-socket record owned by the engine's registration
// table. Transfer positions live here so a suspended transfer resumes from
// exactly where it stopped.
type Connection struct {
	fd       int
	state    State
	interest poller.Interest
	accepted time.Time

	recvBuf []byte
	recvLen int
	parser  http.Parser
	path    string
	hasPath bool
	kind    resource.Kind

	file     *os.File
	fileFd   int
	fileSize int64
	filePos  int64

	// sendPos <= sendLen <= cap(sendBuf)
	sendBuf []byte
	sendLen int
	sendPos int
	phase   phase

	aio                  aio.Context
	completionRegistered bool

	destroyed bool
}

// Reset implements pools.Poolable
func (c *Connection) Reset() {
	c.fd = -1
	c.state = StateInitial
	c.interest = 0
	c.accepted = time.Time{}
	c.recvBuf = nil
	c.recvLen = 0
	c.parser.Reset()
	c.path = ""
	c.hasPath = false
	c.kind = resource.Unknown
	c.file = nil
	c.fileFd = -1
	c.fileSize = 0
	c.filePos = 0
	c.sendBuf = nil
	c.sendLen = 0
	c.sendPos = 0
	c.phase = phaseSubmit
	c.aio = nil
	c.completionRegistered = false
	c.destroyed = false
}

// SetFD implements pools.Poolable
func (c *Connection) SetFD(fd int) {
	c.fd = fd
	c.accepted = time.Now()
}

func newConnection(maxHeaderBytes int) *Connection {
	c := &Connection{}
	c.parser.Init(maxHeaderBytes)
	c.Reset()
	return c
}
