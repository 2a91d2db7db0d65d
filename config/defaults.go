package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default values
const (
	DefaultPort               = 8888
	DefaultBacklog            = 5
	DefaultRoot               = "."
	DefaultMaxHeaderBytes     = 8192
	DefaultBufferSize         = 8192
	DefaultHeaderWriteTimeout = 5 * time.Second
	DefaultMaxConnections     = 10000
	DefaultAIOBackend         = "kernel"
	DefaultMetricsAddr        = ":9090"
)

func setViperDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.backlog", DefaultBacklog)
	v.SetDefault("server.root", DefaultRoot)
	v.SetDefault("server.max_header_bytes", DefaultMaxHeaderBytes)
	v.SetDefault("server.buffer_size", DefaultBufferSize)
	v.SetDefault("server.header_write_timeout", DefaultHeaderWriteTimeout)
	v.SetDefault("server.max_connections", DefaultMaxConnections)
	v.SetDefault("aio.backend", DefaultAIOBackend)
	v.SetDefault("aio.workers", 0)
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", DefaultMetricsAddr)
	v.SetDefault("runtime.gc_percent", 0)
	v.SetDefault("runtime.memory_limit", 0)
}

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// Zero values are replaced with defaults; explicit values are preserved.
// A zero port is treated as unspecified.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)
	applyAIODefaults(&cfg.AIO)
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Backlog == 0 {
		cfg.Backlog = DefaultBacklog
	}
	if cfg.Root == "" {
		cfg.Root = DefaultRoot
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.HeaderWriteTimeout == 0 {
		cfg.HeaderWriteTimeout = DefaultHeaderWriteTimeout
	}
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
}

func applyAIODefaults(cfg *AIOConfig) {
	if cfg.Backend == "" {
		cfg.Backend = DefaultAIOBackend
	}
	cfg.Backend = strings.ToLower(cfg.Backend)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Addr == "" {
		cfg.Addr = DefaultMetricsAddr
	}
}
