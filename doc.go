/*
Package fastfileserver is a single-threaded, event-driven HTTP/1.1 file server
for Linux.

One epoll loop multiplexes every client connection. Each connection runs a
small state machine: receive the request head, resolve the path under the
document root, send a fixed response header, transfer the body and close.

  - Paths containing "static" are sent with sendfile, resuming from the
    saved file offset whenever the socket would block.
  - Paths containing "dynamic" are read chunk by chunk through an
    asynchronous read context (Linux native AIO, or pread on a worker pool)
    and drained to the socket. A read completion wakes the loop through an
    eventfd registered next to the socket.
  - Everything else, and any request without a parsable path, gets a fixed
    404 response.

Every response carries Connection: close.

Quick Start

	go run ./cmd/fileserver -config fileserver.yaml

	# fileserver.yaml
	server:
	  port: 8888
	  root: /srv/files
	aio:
	  backend: kernel   # falls back to pool when io_setup is refused
	metrics:
	  enabled: true
	  addr: ":9090"

Every key can be overridden with FILESERVER_<SECTION>_<KEY>, for example
FILESERVER_SERVER_PORT=9000.

Modules

  - app: Application lifecycle and signal handling
  - config: Configuration loading (viper) and validation
  - logger: zap logger construction
  - core: Engine, connection state machine, dynamic transfer bridge
  - core/http: Incremental request parser and fixed responses
  - core/resource: Path classification and resolution
  - core/sendfile: Zero-copy static transfer
  - core/aio: Asynchronous read contexts
  - core/poller: epoll readiness multiplexing
  - core/pools: Worker, buffer and connection pools, GC tuning
  - core/observability: Prometheus metrics
*/
package fastfileserver
