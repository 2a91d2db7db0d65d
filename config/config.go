// Package config loads file server configuration from a YAML file and
// FILESERVER_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	AIO     AIOConfig     `mapstructure:"aio"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Runtime RuntimeConfig `mapstructure:"runtime"`
}

// ServerConfig controls the listener and per-connection buffers. It is
// fixed for the lifetime of the process.
type ServerConfig struct {
	// Host is the IPv4 address or name to bind. Empty binds all interfaces.
	Host string `mapstructure:"host"`

	Port int `mapstructure:"port" validate:"gte=0,lte=65535"`

	Backlog int `mapstructure:"backlog" validate:"gt=0"`

	// Root is the directory request paths are resolved against.
	Root string `mapstructure:"root" validate:"required"`

	// MaxHeaderBytes is the receive buffer size and the hard limit on a
	// request head.
	MaxHeaderBytes int `mapstructure:"max_header_bytes" validate:"gte=256,lte=1048576"`

	// BufferSize is the staging buffer size, and so the chunk size of
	// dynamic transfers.
	BufferSize int `mapstructure:"buffer_size" validate:"gte=512,lte=16777216"`

	HeaderWriteTimeout time.Duration `mapstructure:"header_write_timeout" validate:"gt=0"`

	MaxConnections int `mapstructure:"max_connections" validate:"gt=0"`
}

// AIOConfig selects the asynchronous disk read backend.
type AIOConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=kernel pool"`

	// Workers sizes the pool backend. 0 means one per CPU.
	Workers int `mapstructure:"workers" validate:"gte=0"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" validate:"required"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	Addr string `mapstructure:"addr" validate:"required_if=Enabled true"`
}

// RuntimeConfig tunes the Go garbage collector.
type RuntimeConfig struct {
	GCPercent int `mapstructure:"gc_percent" validate:"gte=0"`

	MemoryLimit int64 `mapstructure:"memory_limit" validate:"gte=0"`
}

// Load reads configuration from configPath (optional), applies environment
// overrides and defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("FILESERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Environment variables are only consulted for keys viper knows about.
	setViperDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
}
