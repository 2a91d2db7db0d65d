// Command fileserver serves files under its root directory over HTTP/1.1.
// Paths containing "static" are sent with sendfile, paths containing
// "dynamic" are read asynchronously and streamed, and anything else is 404.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/searchktools/fast-fileserver/app"
	"github.com/searchktools/fast-fileserver/config"
	"github.com/searchktools/fast-fileserver/logger"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fileserver: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fileserver: %v\n", err)
		os.Exit(1)
	}

	a, err := app.New(cfg, log)
	if err != nil {
		log.Error("startup failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}

	if err := a.Run(context.Background()); err != nil {
		log.Error("server failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
	_ = log.Sync()
}
