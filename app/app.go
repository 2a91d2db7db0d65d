package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/searchktools/fast-fileserver/config"
	"github.com/searchktools/fast-fileserver/core"
	"github.com/searchktools/fast-fileserver/core/aio"
	"github.com/searchktools/fast-fileserver/core/observability"
	"github.com/searchktools/fast-fileserver/core/pools"
	"go.uber.org/zap"
)

// App wires configuration, logging, metrics and the engine together and
// owns their lifecycle.
type App struct {
	cfg      *config.Config
	log      *zap.Logger
	engine   *core.Engine
	provider aio.Provider
	registry *prometheus.Registry
}

// New creates an application instance
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	prev := pools.ApplyGCConfig(pools.GCConfig{
		GCPercent:   cfg.Runtime.GCPercent,
		MemoryLimit: cfg.Runtime.MemoryLimit,
	})
	if cfg.Runtime.GCPercent > 0 || cfg.Runtime.MemoryLimit > 0 {
		log.Info("gc tuned",
			zap.Int("gc_percent", cfg.Runtime.GCPercent),
			zap.Int64("memory_limit", cfg.Runtime.MemoryLimit),
			zap.Int("previous_gc_percent", prev.GCPercent))
	}

	provider, err := aio.NewProvider(cfg.AIO.Backend, cfg.AIO.Workers)
	if provider == nil {
		return nil, err
	}
	if err != nil {
		log.Warn("kernel aio unavailable, using worker pool", zap.Error(err))
	}

	a := &App{cfg: cfg, log: log, provider: provider}

	metrics := observability.NewNoopMetrics()
	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = observability.NewMetrics(a.registry)
	}

	engine, err := core.NewEngine(core.Options{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		Backlog:            cfg.Server.Backlog,
		Root:               cfg.Server.Root,
		MaxHeaderBytes:     cfg.Server.MaxHeaderBytes,
		BufferSize:         cfg.Server.BufferSize,
		HeaderWriteTimeout: cfg.Server.HeaderWriteTimeout,
		MaxConnections:     cfg.Server.MaxConnections,
		AIO:                provider,
		Logger:             log,
		Metrics:            metrics,
	})
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("create engine: %w", err)
	}
	a.engine = engine
	return a, nil
}

// Engine returns the underlying engine
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Run serves until ctx is cancelled, SIGINT or SIGTERM arrives, or the
// engine fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.awaitSignal(ctx)

	metricsDone := make(chan error, 1)
	if a.registry != nil {
		srv := observability.NewServer(a.cfg.Metrics.Addr, a.registry, a.log)
		go func() { metricsDone <- srv.Start(ctx) }()
	} else {
		metricsDone <- nil
	}

	err := a.engine.Run()
	if errors.Is(err, core.ErrServerClosed) {
		err = nil
	}
	cancel()

	if merr := <-metricsDone; merr != nil {
		a.log.Warn("metrics server", zap.Error(merr))
	}
	a.provider.Close()
	a.report()
	return err
}

func (a *App) awaitSignal(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		a.log.Info("signal received, shutting down", zap.Stringer("signal", sig))
	case <-ctx.Done():
	}
	a.engine.Shutdown()
}

func (a *App) report() {
	a.log.Info("server stopped", zap.Any("stats", a.engine.Stats()))

	if a.registry == nil {
		return
	}
	if ce := a.log.Check(zap.DebugLevel, "final metrics"); ce != nil {
		snap, err := observability.Snapshot(a.registry)
		if err != nil {
			a.log.Warn("metrics snapshot", zap.Error(err))
			return
		}
		ce.Write(zap.ByteString("metrics", snap))
	}
}
