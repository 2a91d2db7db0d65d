//go:build linux

package core

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/searchktools/fast-fileserver/core/aio"
	"github.com/searchktools/fast-fileserver/core/http"
	"github.com/searchktools/fast-fileserver/core/observability"
	"github.com/searchktools/fast-fileserver/core/poller"
	"github.com/searchktools/fast-fileserver/core/pools"
	"github.com/searchktools/fast-fileserver/core/resource"
	"github.com/searchktools/fast-fileserver/core/sendfile"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// maxDrainReads bounds the reads spent discarding trailing input at close.
const maxDrainReads = 64

var (
	endOfHead = []byte("\r\n\r\n")
	notFound  = []byte(http.NotFound)
)

// Options configures an Engine. Zero values take the package defaults,
// except Port where 0 asks the kernel for an ephemeral port.
type Options struct {
	Host               string
	Port               int
	Backlog            int
	Root               string
	MaxHeaderBytes     int
	BufferSize         int
	HeaderWriteTimeout time.Duration
	MaxConnections     int

	// AIO supplies the async read contexts used for dynamic resources.
	AIO     aio.Provider
	Logger  *zap.Logger
	Metrics observability.Metrics
}

func (o *Options) applyDefaults() {
	if o.Backlog <= 0 {
		o.Backlog = DefaultBacklog
	}
	if o.Root == "" {
		o.Root = "."
	}
	if o.MaxHeaderBytes <= 0 {
		o.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.HeaderWriteTimeout <= 0 {
		o.HeaderWriteTimeout = DefaultHeaderWriteTimeout
	}
	if o.MaxConnections <= 0 {
		o.MaxConnections = DefaultMaxConnections
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = observability.NewNoopMetrics()
	}
}

// registration is an entry of the readiness table. A connection owns its
// socket entry and, while a dynamic transfer runs, the entry for its async
// context's completion descriptor.
type registration struct {
	conn       *Connection
	completion bool
}

// Engine is a single-threaded readiness-driven file server. All connection
// state is mutated from the goroutine running Run.
type Engine struct {
	opts Options
	log  *zap.Logger

	lfd    int
	wakeFd int
	poller poller.Poller

	table  map[int]registration
	active atomic.Int64
	fatal  error

	bytePool       *pools.BytePool
	connectionPool *pools.ConnectionPool[*Connection]
	headerPool     bytebufferpool.Pool

	mu      sync.Mutex
	running bool
	closed  atomic.Bool
}

// NewEngine creates an engine. The listening socket is opened by Listen or
// lazily by Run.
func NewEngine(opts Options) (*Engine, error) {
	opts.applyDefaults()
	if opts.AIO == nil {
		return nil, errors.New("engine: no async I/O provider")
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	maxHeader := opts.MaxHeaderBytes
	e := &Engine{
		opts:     opts,
		log:      opts.Logger,
		lfd:      -1,
		wakeFd:   wakeFd,
		table:    make(map[int]registration, 1024),
		bytePool: pools.NewBytePool(opts.MaxHeaderBytes, opts.BufferSize),
		connectionPool: pools.NewConnectionPool(func() *Connection {
			return newConnection(maxHeader)
		}),
	}
	return e, nil
}

// Listen opens the listening socket. It is called by Run when needed.
func (e *Engine) Listen() error {
	if e.lfd >= 0 {
		return nil
	}
	fd, err := listenTCP(e.opts.Host, e.opts.Port, e.opts.Backlog)
	if err != nil {
		return err
	}
	e.lfd = fd
	return nil
}

// Addr returns the listening address, or nil before Listen.
func (e *Engine) Addr() net.Addr {
	if e.lfd < 0 {
		return nil
	}
	addr, err := localAddr(e.lfd)
	if err != nil {
		return nil
	}
	return addr
}

// Run serves connections until Shutdown is called or a process-fatal error
// occurs. It returns nil after a requested shutdown.
func (e *Engine) Run() error {
	e.mu.Lock()
	if e.closed.Load() || e.running {
		running := e.running
		e.mu.Unlock()
		if !running {
			e.closeListener()
		}
		return ErrServerClosed
	}
	e.running = true
	e.mu.Unlock()
	defer e.closeListener()

	if err := e.Listen(); err != nil {
		return err
	}

	p, err := poller.NewPoller()
	if err != nil {
		return err
	}
	e.poller = p
	defer e.poller.Close()

	if err := e.poller.Add(e.lfd, poller.Readable); err != nil {
		return fmt.Errorf("register listener: %w", err)
	}
	if err := e.poller.Add(e.wakeFd, poller.Readable); err != nil {
		return fmt.Errorf("register wake descriptor: %w", err)
	}

	e.log.Info("file server listening",
		zap.Stringer("addr", e.Addr()),
		zap.String("root", e.opts.Root),
		zap.String("aio_backend", e.opts.AIO.Backend()),
		zap.Int("backlog", e.opts.Backlog))

	for {
		events, err := e.poller.Wait(-1)
		if err != nil {
			e.destroyAll()
			return fmt.Errorf("wait: %w", err)
		}

		for _, ev := range events {
			switch ev.Fd {
			case e.lfd:
				e.acceptConnections()
			case e.wakeFd:
				e.log.Info("shutdown requested", zap.Int64("active", e.active.Load()))
				e.destroyAll()
				return nil
			default:
				e.dispatch(ev)
			}

			if e.fatal != nil {
				e.destroyAll()
				return e.fatal
			}
		}
	}
}

// Shutdown wakes the loop, which tears down every connection and returns
// from Run. It may be called from any goroutine.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed.CompareAndSwap(false, true) || e.wakeFd < 0 {
		return
	}
	var one [8]byte
	one[0] = 1
	unix.Write(e.wakeFd, one[:])
}

// closeListener releases the listening socket and the wake descriptor.
// Later Shutdown calls become no-ops.
func (e *Engine) closeListener() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed.Store(true)
	if e.lfd >= 0 {
		unix.Close(e.lfd)
		e.lfd = -1
	}
	if e.wakeFd >= 0 {
		unix.Close(e.wakeFd)
		e.wakeFd = -1
	}
}

// acceptConnections accepts until the listen queue is empty.
func (e *Engine) acceptConnections() {
	for {
		nfd, sa, err := unix.Accept4(e.lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EINTR, unix.ECONNABORTED:
				continue
			case unix.EAGAIN:
				return
			}
			e.log.Warn("accept failed", zap.Error(err))
			return
		}

		if e.active.Load() >= int64(e.opts.MaxConnections) {
			unix.Close(nfd)
			e.opts.Metrics.ConnectionRejected()
			e.log.Debug("connection limit reached", zap.Int("limit", e.opts.MaxConnections))
			continue
		}

		conn := e.connectionPool.Get(nfd)
		conn.recvBuf = e.bytePool.Get(e.opts.MaxHeaderBytes)

		if err := e.poller.Add(nfd, poller.Readable); err != nil {
			e.fatal = fmt.Errorf("register connection: %w", err)
			e.bytePool.Put(conn.recvBuf)
			e.connectionPool.Put(conn)
			unix.Close(nfd)
			return
		}
		conn.interest = poller.Readable
		e.table[nfd] = registration{conn: conn}
		e.active.Add(1)
		e.opts.Metrics.ConnectionAccepted()

		if ce := e.log.Check(zap.DebugLevel, "accepted"); ce != nil {
			ce.Write(zap.Int("fd", nfd), zap.String("peer", peerAddr(sa)))
		}
	}
}

// dispatch routes one readiness event: write-readiness first, then a
// hangup, then read-readiness. A hangup ends the connection before any
// further input is consumed.
func (e *Engine) dispatch(ev poller.Event) {
	reg, ok := e.table[ev.Fd]
	if !ok {
		return
	}
	c := reg.conn

	if reg.completion {
		e.step(c, EventCompletion)
		return
	}
	if ev.Writable {
		e.step(c, EventWritable)
		// The record may have been recycled by the write handler.
		if reg, ok = e.table[ev.Fd]; !ok || reg.conn != c {
			return
		}
	}
	if ev.Hangup {
		e.step(c, EventHangup)
		return
	}
	if ev.Readable {
		e.step(c, EventReadable)
	}
}

// step feeds ev into the state machine and keeps applying effects until one
// of them produces no follow-up event.
func (e *Engine) step(c *Connection, ev Event) {
	for {
		prev := c.state
		next, effect := Transition(prev, ev)
		c.state = next

		if ev == EventTransferDone && next == StateDataSent {
			e.recordResponse(c, prev)
		}

		var more bool
		ev, more = e.apply(c, effect)
		if !more {
			return
		}
	}
}

func (e *Engine) apply(c *Connection, effect Effect) (Event, bool) {
	switch effect {
	case EffectReceive:
		return e.receive(c)
	case EffectResolve:
		return e.resolve(c), true
	case EffectSend404:
		return e.send404(c), true
	case EffectSendStatic:
		return e.sendStatic(c), true
	case EffectSendDynamic:
		return e.sendDynamic(c), true
	case EffectArmWrite:
		e.armWrite(c)
		return 0, false
	case EffectDestroy:
		e.destroy(c)
		return 0, false
	default:
		return 0, false
	}
}

// receive accumulates the request head. It stops at the blank line ending
// the head, when the parser has given up, or when the buffer is full.
func (e *Engine) receive(c *Connection) (Event, bool) {
	for c.recvLen < len(c.recvBuf) {
		n, err := unix.Read(c.fd, c.recvBuf[c.recvLen:])
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return 0, false
		}
		if err != nil || n == 0 {
			e.log.Debug("peer closed during receive", zap.Int("fd", c.fd), zap.Error(err))
			return EventIOError, true
		}

		from := c.recvLen - (len(endOfHead) - 1)
		if from < 0 {
			from = 0
		}
		c.recvLen += n
		c.parser.Feed(c.recvBuf[c.recvLen-n : c.recvLen])

		if c.parser.Done() || c.parser.Err() != nil ||
			bytes.Contains(c.recvBuf[from:c.recvLen], endOfHead) {
			return EventHeadersReceived, true
		}
	}
	return EventHeadersReceived, true
}

// resolve extracts the path, classifies it, opens the file and flushes the
// response header.
func (e *Engine) resolve(c *Connection) Event {
	c.path, c.hasPath = c.parser.Path()
	if !c.hasPath {
		e.log.Debug("no request path", zap.Int("fd", c.fd), zap.Error(c.parser.Err()))
		return EventNoPath
	}

	c.kind = resource.Classify(c.path)
	if c.kind == resource.Unknown {
		return EventNotFound
	}

	f, size, err := resource.Open(resource.Resolve(e.opts.Root, c.path))
	if err != nil {
		e.log.Debug("resource unavailable", zap.String("path", c.path), zap.Error(err))
		return EventNotFound
	}
	c.file = f
	c.fileFd = int(f.Fd())
	c.fileSize = size
	c.filePos = 0

	// The async context is acquired before the 200 header goes out so a
	// refusal can still be answered with a 404.
	if c.kind == resource.Dynamic {
		ctx, err := e.opts.AIO.NewContext()
		if err != nil {
			e.log.Warn("cannot create async context", zap.String("path", c.path), zap.Error(err))
			e.opts.Metrics.AsyncReadFailed()
			return EventNotFound
		}
		c.aio = ctx
	}

	c.sendBuf = e.bytePool.Get(e.opts.BufferSize)
	if err := e.stageHeader(c); err != nil {
		e.log.Debug("cannot stage header", zap.String("path", c.path), zap.Error(err))
		return EventNotFound
	}
	if err := e.writeAll(c.fd, c.sendBuf[c.sendPos:c.sendLen]); err != nil {
		e.log.Debug("header write failed", zap.Int("fd", c.fd), zap.Error(err))
		return EventIOError
	}
	c.sendPos, c.sendLen = 0, 0

	if c.kind == resource.Static {
		return EventStaticReady
	}
	if err := e.startDynamic(c); err != nil {
		return EventIOError
	}
	return EventDynamicReady
}

func (e *Engine) stageHeader(c *Connection) error {
	hb := e.headerPool.Get()
	defer e.headerPool.Put(hb)

	http.WriteOKHeader(hb, c.fileSize)
	if hb.Len() > cap(c.sendBuf) {
		return fmt.Errorf("%w: %d > %d", ErrHeaderTooLarge, hb.Len(), cap(c.sendBuf))
	}
	c.sendLen = copy(c.sendBuf[:cap(c.sendBuf)], hb.B)
	c.sendPos = 0
	return nil
}

// startDynamic registers the connection's async context and switches the
// socket to edge-triggered write interest. The completion descriptor is
// registered so a finished read resumes the transfer without waiting for
// the socket.
func (e *Engine) startDynamic(c *Connection) error {
	c.phase = phaseSubmit

	fd := c.aio.Fd()
	if err := e.poller.Add(fd, poller.Readable); err != nil {
		e.fatal = fmt.Errorf("register completion descriptor: %w", err)
		return e.fatal
	}
	c.completionRegistered = true
	e.table[fd] = registration{conn: c, completion: true}

	e.armWrite(c)
	return nil
}

func (e *Engine) sendStatic(c *Connection) Event {
	start := c.filePos
	outcome, sent, err := sendfile.Transfer(c.fd, c.fileFd, &c.filePos, c.fileSize)
	e.opts.Metrics.BodyBytes(resource.Static.String(), sent)

	switch outcome {
	case sendfile.Completed:
		return EventTransferDone
	case sendfile.Suspended:
		e.opts.Metrics.Suspended(observability.StageStaticSend)
		return EventWouldBlock
	default:
		e.log.Debug("static transfer failed",
			zap.Int("fd", c.fd), zap.Int64("offset", start), zap.Error(err))
		return EventIOError
	}
}

func (e *Engine) sendDynamic(c *Connection) Event {
	before := c.filePos - int64(c.sendLen-c.sendPos)
	outcome, err := resumeDynamic(c, fdWriter(c.fd))
	after := c.filePos - int64(c.sendLen-c.sendPos)
	e.opts.Metrics.BodyBytes(resource.Dynamic.String(), after-before)

	switch outcome {
	case sendfile.Completed:
		return EventTransferDone
	case sendfile.Suspended:
		if c.phase == phaseAwaitRead {
			e.opts.Metrics.Suspended(observability.StageDynamicRead)
		} else {
			e.opts.Metrics.Suspended(observability.StageDynamicSend)
		}
		return EventWouldBlock
	default:
		if c.phase != phaseDrain {
			e.opts.Metrics.AsyncReadFailed()
		}
		e.log.Debug("dynamic transfer failed",
			zap.Int("fd", c.fd), zap.Int64("offset", c.filePos), zap.Error(err))
		return EventIOError
	}
}

// armWrite switches the socket to edge-triggered write interest. Only a
// transition to writable is reported, so the transfer must make progress
// until it would block before returning to the loop.
func (e *Engine) armWrite(c *Connection) {
	want := poller.Writable | poller.EdgeTriggered
	if c.interest == want {
		return
	}
	if err := e.poller.Modify(c.fd, want); err != nil {
		e.fatal = fmt.Errorf("arm write interest: %w", err)
		return
	}
	c.interest = want
}

func (e *Engine) send404(c *Connection) Event {
	if err := e.writeAll(c.fd, notFound); err != nil {
		e.log.Debug("404 write failed", zap.Int("fd", c.fd), zap.Error(err))
		return EventIOError
	}
	return EventTransferDone
}

// writeAll writes p synchronously, waiting on the socket when it would
// block. The whole write is bounded by the header write timeout.
func (e *Engine) writeAll(fd int, p []byte) error {
	deadline := time.Now().Add(e.opts.HeaderWriteTimeout)
	for len(p) > 0 {
		n, err := unix.Write(fd, p)
		if n > 0 {
			p = p[n:]
		}
		switch {
		case err == nil, err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			wait := time.Until(deadline)
			if wait <= 0 {
				return ErrWriteTimeout
			}
			fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
			if _, err := unix.Poll(fds, int(wait/time.Millisecond)+1); err != nil && err != unix.EINTR {
				return fmt.Errorf("poll: %w", err)
			}
		default:
			return err
		}
	}
	return nil
}

func (e *Engine) recordResponse(c *Connection, from State) {
	status := 200
	if from == StateSending404 {
		status = 404
	}
	d := time.Since(c.accepted)
	e.opts.Metrics.ResponseSent(status, c.kind.String(), d)

	if ce := e.log.Check(zap.DebugLevel, "response sent"); ce != nil {
		ce.Write(
			zap.Int("fd", c.fd),
			zap.Int("status", status),
			zap.String("path", c.path),
			zap.Stringer("kind", c.kind),
			zap.Int64("bytes", c.filePos),
			zap.Duration("elapsed", d))
	}
}

// destroy tears a connection down exactly once: deregister, release the
// async context, close the file and socket, then recycle buffers and the
// record itself.
func (e *Engine) destroy(c *Connection) {
	if c.destroyed {
		return
	}
	c.destroyed = true

	if err := e.poller.Remove(c.fd); err != nil {
		e.log.Debug("deregister socket", zap.Int("fd", c.fd), zap.Error(err))
	}
	delete(e.table, c.fd)

	if c.aio != nil {
		if c.completionRegistered {
			e.poller.Remove(c.aio.Fd())
			delete(e.table, c.aio.Fd())
		}
		if err := c.aio.Release(); err != nil {
			e.log.Warn("release async context", zap.Error(err))
		}
	}
	if c.file != nil {
		c.file.Close()
	}
	if c.state == StateDataSent {
		e.drainReceive(c)
	}
	unix.Close(c.fd)

	e.bytePool.Put(c.recvBuf)
	e.bytePool.Put(c.sendBuf)

	final := c.state
	if !final.Terminal() {
		final = StateClosed
	}
	e.opts.Metrics.ConnectionClosed(final.String())
	e.active.Add(-1)

	e.connectionPool.Put(c)
}

// drainReceive half-closes a finished connection and discards request
// bytes still queued on it. Closing with unread input makes the kernel
// answer with a reset, which can cost the peer the tail of its response.
func (e *Engine) drainReceive(c *Connection) {
	if err := unix.Shutdown(c.fd, unix.SHUT_WR); err != nil {
		return
	}
	buf := c.recvBuf
	if len(buf) == 0 {
		return
	}
	for i := 0; i < maxDrainReads; i++ {
		n, err := unix.Read(c.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n <= 0 {
			return
		}
	}
}

func (e *Engine) destroyAll() {
	for fd, reg := range e.table {
		if reg.completion {
			continue
		}
		reg.conn.state = StateClosed
		e.destroy(reg.conn)
		delete(e.table, fd)
	}
}
