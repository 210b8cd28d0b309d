// Package main is the MCP entry point backed by the full viper configuration,
// for deployments that keep reports and the audit log in PostgreSQL.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/diabetes-report-mcp-server/internal/app"
	"github.com/diabetes-report-mcp-server/internal/config"
	"github.com/diabetes-report-mcp-server/internal/mcp"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	transport := flag.String("transport", mcp.TransportStdio, "transport: stdio or http")
	flag.Parse()

	configManager, err := config.NewManagerFromFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := configManager.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}
	cfg := configManager.GetConfig()

	// stdout carries the protocol on stdio
	if cfg.Logging.Output == "" || cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialise report pipeline: %v", err)
	}
	defer components.Close()

	server := mcp.NewServer(components)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := server.Start(ctx, *transport, addr); err != nil {
		components.Logger.WithError(err).Error("MCP server failed")
		os.Exit(1)
	}

	components.Logger.Info("Diabetes report MCP server stopped")
}
