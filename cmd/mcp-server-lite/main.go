// Package main provides the lightweight entry point for the diabetes report MCP server.
// This version requires no external databases: reports go to files and the
// audit log to SQLite under the data directory.
package main

import (
	"context"
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
	// Load lightweight configuration
	liteCfg := config.LoadLiteConfig()
	if err := liteCfg.EnsureDataDir(); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	log.Printf("Starting diabetes report MCP server (lite) with transport: %s", liteCfg.Transport)
	log.Printf("Data directory: %s", liteCfg.DataDir)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, err := app.New(ctx, liteCfg.Config())
	if err != nil {
		log.Fatalf("Failed to initialise report pipeline: %v", err)
	}
	defer components.Close()

	server := mcp.NewServer(components)
	if err := server.Start(ctx, liteCfg.Transport, fmt.Sprintf(":%d", liteCfg.HTTPPort)); err != nil {
		log.Fatalf("MCP server failed: %v", err)
	}

	log.Println("Diabetes report MCP server (lite) stopped")
}
