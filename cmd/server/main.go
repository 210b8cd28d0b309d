package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/diabetes-report-mcp-server/internal/api"
	"github.com/diabetes-report-mcp-server/internal/app"
	"github.com/diabetes-report-mcp-server/internal/config"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialise report pipeline: %v", err)
	}
	defer components.Close()

	components.Logger.Infof("Starting diabetes report server on %s:%d", cfg.Server.Host, cfg.Server.Port)

	server := api.NewServer(cfg.Server, components)
	if err := server.Start(ctx); err != nil {
		components.Logger.WithError(err).Error("Server failed")
		os.Exit(1)
	}

	components.Logger.Info("Server stopped")
}
