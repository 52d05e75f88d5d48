// Package main boots the extraction HTTP service.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"

	"ytextract/internal/bootstrap"
	"ytextract/internal/config"
	"ytextract/internal/logger"
	"ytextract/internal/server"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Version overrides the configured service version when set.
	Version string

	id, _ = os.Hostname()
)

func newApp(cfg *config.Config, logger log.Logger, hs *http.Server) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(cfg.ServiceName),
		kratos.Version(cfg.ServiceVersion),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(hs),
	)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ytextract: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if Version != "" {
		cfg.ServiceVersion = Version
	}

	loggr := logger.NewLogger(logger.Config{
		Service: cfg.ServiceName,
		Version: cfg.ServiceVersion,
		Level:   cfg.LogLevel,
	})

	tel, cleanupTelemetry, err := server.NewTelemetry(cfg.ServiceName, loggr)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer cleanupTelemetry()

	app, cleanupApp, err := bootstrap.New(context.Background(), cfg, loggr,
		bootstrap.WithMeterProvider(tel.MeterProvider),
		bootstrap.WithTracerProvider(tel.TracerProvider),
	)
	if err != nil {
		return err
	}
	defer cleanupApp()

	svc := server.NewService(app.Orchestrator, app.Batcher, cfg, loggr)
	hs := server.NewHTTPServer(cfg, svc, tel, loggr)

	log.NewHelper(loggr).Infof("listening on %s (yt-dlp %s, %d attempts, batch ceiling %d/%d)",
		cfg.Addr, cfg.YtdlpPath, cfg.MaxAttempts, cfg.MaxBatch, cfg.MaxBatchCSV)
	return newApp(cfg, loggr, hs).Run()
}
