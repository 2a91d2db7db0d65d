package pools

import (
	"runtime"
	"runtime/debug"
	"time"
)

// GCConfig holds GC tuning parameters
type GCConfig struct {
	// GCPercent sets the collection target percentage. 0 leaves the runtime default.
	GCPercent int

	// MemoryLimit sets a soft memory limit in bytes. 0 means no limit.
	MemoryLimit int64
}

// ApplyGCConfig applies cfg and returns the settings it replaced.
func ApplyGCConfig(cfg GCConfig) GCConfig {
	prev := GCConfig{MemoryLimit: debug.SetMemoryLimit(-1)}
	if cfg.GCPercent > 0 {
		prev.GCPercent = debug.SetGCPercent(cfg.GCPercent)
	}
	if cfg.MemoryLimit > 0 {
		debug.SetMemoryLimit(cfg.MemoryLimit)
	}
	return prev
}

// GCStats holds garbage collection statistics
type GCStats struct {
	NumGC        uint32
	PauseTotal   time.Duration
	LastPause    time.Duration
	HeapAlloc    uint64
	Sys          uint64
	NumGoroutine int
}

// GetGCStats returns current GC statistics
func GetGCStats() GCStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := GCStats{
		NumGC:        ms.NumGC,
		PauseTotal:   time.Duration(ms.PauseTotalNs),
		HeapAlloc:    ms.HeapAlloc,
		Sys:          ms.Sys,
		NumGoroutine: runtime.NumGoroutine(),
	}
	if ms.NumGC > 0 {
		stats.LastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])
	}
	return stats
}
