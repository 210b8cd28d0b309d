// Package mcp exposes the report pipeline as Model Context Protocol tools and
// resources.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/diabetes-report-mcp-server/internal/app"
)

// Version is the MCP server version.
const Version = "v0.1.0"

// Transport types.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Server is the diabetes report MCP server.
type Server struct {
	components *app.Components
	server     *mcp.Server
	logger     *logrus.Logger
}

// NewServer creates a server and registers every tool and resource.
func NewServer(components *app.Components) *Server {
	impl := &mcp.Implementation{
		Name:    "diabetes-report-mcp-server",
		Version: Version,
	}

	s := &Server{
		components: components,
		server:     mcp.NewServer(impl, nil),
		logger:     components.Logger,
	}

	s.registerTools()
	s.registerResources()

	s.logger.WithFields(logrus.Fields{
		"tools":     len(toolNames),
		"resources": len(resourceURIs),
	}).Info("MCP capabilities registered")
	return s
}

// Start runs the server on the named transport until ctx is cancelled.
func (s *Server) Start(ctx context.Context, transport, addr string) error {
	s.logger.WithField("transport_type", transport).Info("Starting diabetes report MCP server")
	switch transport {
	case "", TransportStdio:
		return s.Run(ctx)
	case TransportHTTP:
		return s.RunHTTP(ctx, addr)
	default:
		return fmt.Errorf("unsupported transport %q", transport)
	}
}

// Run serves over stdio. It blocks until the context is cancelled or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// RunHTTP serves the streamable HTTP transport on addr.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Warn("MCP HTTP shutdown")
		}
	}()

	s.logger.WithField("addr", addr).Info("MCP HTTP transport listening")
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
