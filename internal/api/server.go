// Package api exposes the report pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/diabetes-report-mcp-server/internal/app"
	"github.com/diabetes-report-mcp-server/internal/domain"
	"github.com/diabetes-report-mcp-server/internal/middleware"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server represents the HTTP server
type Server struct {
	cfg        domain.ServerConfig
	components *app.Components
	logger     *logrus.Logger
	router     *gin.Engine
	server     *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(cfg domain.ServerConfig, components *app.Components) *Server {
	if components.Logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AccessLog(components.Logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	s := &Server{
		cfg:        cfg,
		components: components,
		logger:     components.Logger,
		router:     router,
	}
	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/reports", middleware.BodyLimit(s.cfg.MaxUploadBytes), s.handleGenerateReport)
		v1.GET("/patients/:id/reports", s.handleListReports)
		v1.GET("/patients/:id/reports/:date", s.handleGetReport)

		v1.POST("/extractions", middleware.BodyLimit(s.cfg.MaxUploadBytes), s.handleExtract)
		v1.POST("/conflicts", s.handleConflicts)
		v1.POST("/query", s.handleBuildQuery)

		v1.GET("/guidelines/search", s.handleSearchGuidelines)
		v1.GET("/rules", s.handleRules)
		v1.GET("/rules/:metric/status", s.handleRuleStatus)

		v1.GET("/audit", s.handleListAudit)
		v1.GET("/audit/:request_id", s.handleGetAudit)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"timestamp":       time.Now().UTC(),
		"version":         Version,
		"index_size":      s.components.Index.Size(),
		"index_build_id":  s.components.Index.BuildID,
		"embedding_model": s.components.Embedder.ModelName(),
		"chat_model":      s.components.Chat.ModelName(),
		"rules_version":   s.components.Rules.Version,
		"corpus_version":  s.components.Corpus.Version,
	})
}

func (s *Server) respondError(c *gin.Context, status int, code, message string, details error) {
	apiErr := domain.NewAPIError(code, message, "", c.GetString(middleware.CorrelationIDKey))
	if details != nil {
		apiErr.Details = details.Error()
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apiErr})
}

// respondDomainError maps validation and not-found errors to 4xx responses.
func (s *Server) respondDomainError(c *gin.Context, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		s.respondError(c, http.StatusBadRequest, domain.CodeValidation, verr.Error(), nil)
	case errors.Is(err, domain.ErrReportNotFound):
		s.respondError(c, http.StatusNotFound, domain.CodeNotFound, "Report not found", nil)
	case errors.Is(err, domain.ErrEmptyQuery):
		s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "Query is empty", nil)
	default:
		s.logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		s.respondError(c, http.StatusInternalServerError, domain.CodeInternalServer, "Internal server error", nil)
	}
}
