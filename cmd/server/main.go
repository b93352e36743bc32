package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/garyjia/uxone/internal/config"
	"github.com/garyjia/uxone/internal/container"
	"github.com/garyjia/uxone/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Local .env is optional; real deployments set the environment directly
	_ = gotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(cfg.ToLoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting UXOne approval service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}

	// Serve until a signal arrives; Start shuts the server down on cancellation
	if err := c.HTTPServer().Start(ctx); err != nil {
		logger.Error("HTTP server failed", zap.Error(err))
	}

	logger.Info("Shutting down")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.Close(); err != nil {
			logger.Error("Container closed with errors", zap.Error(err))
		}
	}()

	select {
	case <-done:
		logger.Info("Server exited successfully")
	case <-time.After(cfg.Server.ShutdownTimeout):
		logger.Error("Shutdown timed out", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	}
}
