// Package server assembles the HTTP surface from the registered modules.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jmherbst/aria/internal/config"
	"github.com/jmherbst/aria/internal/logger"
	"github.com/jmherbst/aria/internal/modules/modulemanager"
)

// HTTPRoutes is implemented by modules that expose endpoints.
type HTTPRoutes interface {
	RegisterRoutes(r *gin.Engine)
}

// Server wraps the HTTP listener.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
}

// New builds the router and mounts every module's routes.
func New(cfg config.ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())
	if cfg.EnableCORS {
		router.Use(corsMiddleware())
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	for _, m := range modulemanager.All() {
		if routes, ok := m.(HTTPRoutes); ok {
			routes.RegisterRoutes(router)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     router,
			ReadTimeout: cfg.ReadTimeout,
			// WriteTimeout stays at the configured value; zero means
			// unlimited, which streaming responses require.
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Router returns the underlying gin engine, for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logger.Info("http server listening", []logger.Field{
		logger.String("addr", s.httpServer.Addr),
	})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request", []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.String("duration", time.Since(start).String()),
		})
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Range, X-Client-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Range, Accept-Ranges")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
