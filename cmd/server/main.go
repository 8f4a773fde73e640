package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/garyjia/nfe-ingest/internal/config"
	"github.com/garyjia/nfe-ingest/internal/container"
	httpapi "github.com/garyjia/nfe-ingest/internal/interfaces/http"
	"github.com/garyjia/nfe-ingest/pkg/utils"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"go.uber.org/zap"
)

func main() {
	fs := ff.NewFlagSet("nfe-server")
	configPath := fs.StringLong("config", "configs/config.yaml", "YAML configuration file")

	if err := ff.Parse(fs, os.Args[1:], ff.WithEnvVarPrefix("NFE_SERVER")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "nfe-ingest",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting NF-e ingestion service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port),
		zap.Any("config", cfg.Summary()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	containerCfg := cfg.ToContainerConfig()
	c, err := container.NewContainer(containerCfg, logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown reported errors", zap.Error(err))
		}
	}()

	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		ReadTimeout:        cfg.Server.ReadTimeout,
		WriteTimeout:       cfg.Server.WriteTimeout,
		MaxFilesPerRequest: containerCfg.Import.MaxFilesPerRequest,
		MaxFileSize:        containerCfg.Import.MaxFileSize,
		UploadsPerWindow:   containerCfg.RateLimit.UploadsPerWindow,
		UploadWindow:       containerCfg.RateLimit.UploadWindow,
	}, httpapi.Dependencies{
		Import:   c.Services().Import,
		Audit:    c.Services().Audit,
		Invoices: c.Repositories().Invoice,
		Items:    c.Repositories().Item,
		Logs:     c.Repositories().ProcessingLog,
		Limiter:  c.RateLimiter(),
		Health: func() (bool, interface{}) {
			h := c.Health()
			return h.Overall, h
		},
	}, c.ServiceLogger())

	// Blocks until SIGINT/SIGTERM
	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server stopped with error", zap.Error(err))
	}

	logger.Info("Server exited")
}
