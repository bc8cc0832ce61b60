package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leadstack/optimizer-engine/internal/orchestrator"
)

// Server hosts the HTTP control surface.
type Server struct {
	logger *slog.Logger
	srv    *http.Server
}

// NewServer builds the gin router and wraps it in an http.Server. The caller
// owns the orchestrator lifecycle; the server only exposes it.
func NewServer(addr string, orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "running": orch.Running()})
	})

	handler := NewHandler(orch, logger)
	RegisterRoutes(router.Group("/api/v1"), handler)

	return &Server{
		logger: logger,
		srv: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
