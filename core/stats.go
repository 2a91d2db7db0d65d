//go:build linux

package core

import "github.com/searchktools/fast-fileserver/core/pools"

// Stats is a point-in-time view of engine and pool counters.
type Stats struct {
	ActiveConnections int64                  `json:"active_connections"`
	Connection        ConnectionPoolStats    `json:"connection_pool"`
	Buffers           pools.BytePoolStats    `json:"byte_pool"`
	AIOBackend        string                 `json:"aio_backend"`
	Workers           *pools.WorkerPoolStats `json:"workers,omitempty"`
	GC                pools.GCStats          `json:"gc"`
}

type ConnectionPoolStats struct {
	Gets    uint64  `json:"gets"`
	Puts    uint64  `json:"puts"`
	HitRate float64 `json:"hit_rate"`
}

// Stats may be called from any goroutine.
func (e *Engine) Stats() Stats {
	gets, puts, hitRate := e.connectionPool.Stats()
	s := Stats{
		ActiveConnections: e.active.Load(),
		Connection: ConnectionPoolStats{
			Gets:    gets,
			Puts:    puts,
			HitRate: hitRate,
		},
		Buffers:    e.bytePool.Stats(),
		AIOBackend: e.opts.AIO.Backend(),
		GC:         pools.GetGCStats(),
	}
	if wp, ok := e.opts.AIO.(interface{ Stats() pools.WorkerPoolStats }); ok {
		ws := wp.Stats()
		s.Workers = &ws
	}
	return s
}
