package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultBacklog, cfg.Server.Backlog)
	assert.Equal(t, ".", cfg.Server.Root)
	assert.Equal(t, 8192, cfg.Server.MaxHeaderBytes)
	assert.Equal(t, 8192, cfg.Server.BufferSize)
	assert.Equal(t, 5*time.Second, cfg.Server.HeaderWriteTimeout)
	assert.Equal(t, "kernel", cfg.AIO.Backend)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
}

func TestLoad_File(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
server:
  port: 9000
  root: `+root+`
  buffer_size: 4096
  header_write_timeout: 2s
aio:
  backend: pool
  workers: 3
logging:
  level: debug
  format: json
metrics:
  enabled: true
  addr: 127.0.0.1:9191
runtime:
  gc_percent: 200
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, root, cfg.Server.Root)
	assert.Equal(t, 4096, cfg.Server.BufferSize)
	assert.Equal(t, 2*time.Second, cfg.Server.HeaderWriteTimeout)
	assert.Equal(t, "pool", cfg.AIO.Backend)
	assert.Equal(t, 3, cfg.AIO.Workers)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9191", cfg.Metrics.Addr)
	assert.Equal(t, 200, cfg.Runtime.GCPercent)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9000\n")
	t.Setenv("FILESERVER_SERVER_PORT", "9100")
	t.Setenv("FILESERVER_AIO_BACKEND", "pool")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "pool", cfg.AIO.Backend)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		ApplyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad backend", func(c *Config) { c.AIO.Backend = "uring" }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"tiny buffer", func(c *Config) { c.Server.BufferSize = 16 }},
		{"tiny header buffer", func(c *Config) { c.Server.MaxHeaderBytes = 10 }},
		{"negative workers", func(c *Config) { c.AIO.Workers = -1 }},
		{"bad level", func(c *Config) { c.Logging.Level = "LOUD" }},
		{"missing root", func(c *Config) { c.Server.Root = "/does/not/exist" }},
		{"metrics without addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }},
	}

	require.NoError(t, Validate(valid()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
}

func TestValidate_RootMustBeDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	cfg := &Config{Server: ServerConfig{Root: file}}
	ApplyDefaults(cfg)
	assert.ErrorContains(t, Validate(cfg), "not a directory")
}
