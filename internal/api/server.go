// Package api provides the HTTP server for the proxy: routing, CORS and
// API key middleware, the OpenAI-compatible endpoints, and the local
// usage endpoint. The server supports hot-reloading of configuration.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/cursor-proxy/CursorProxyAPI/internal/api/handlers"
	"github.com/cursor-proxy/CursorProxyAPI/internal/api/handlers/openai"
	"github.com/cursor-proxy/CursorProxyAPI/internal/api/middleware"
	"github.com/cursor-proxy/CursorProxyAPI/internal/client"
	"github.com/cursor-proxy/CursorProxyAPI/internal/config"
	"github.com/cursor-proxy/CursorProxyAPI/internal/logging"
	"github.com/cursor-proxy/CursorProxyAPI/internal/usage"
)

// Server represents the main API server.
type Server struct {
	// engine is the Gin web framework engine instance.
	engine *gin.Engine

	// server is the underlying HTTP server.
	server *http.Server

	// handlers contains the shared handler state.
	handlers *handlers.BaseAPIHandler

	// cfg holds the current server configuration.
	cfg *config.Config

	// requestLogger records full exchanges when enabled.
	requestLogger *logging.FileRequestLogger
}

// NewServer creates and initializes a new API server instance.
//
// Parameters:
//   - cfg: The server configuration
//   - cursorClient: The Cursor client serving completions
//   - usageStore: The usage counter store, may be nil
//
// Returns:
//   - *Server: A new server instance
func NewServer(cfg *config.Config, cursorClient *client.CursorClient, usageStore *usage.Store) *Server {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Logger())
	engine.Use(gin.Recovery())

	requestLogger := logging.NewFileRequestLogger(cfg.RequestLog, "logs")
	engine.Use(middleware.RequestLoggingMiddleware(requestLogger))
	engine.Use(corsMiddleware())

	s := &Server{
		engine:        engine,
		handlers:      handlers.NewBaseAPIHandlers(cursorClient, cfg, usageStore),
		cfg:           cfg,
		requestLogger: requestLogger,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: engine,
	}
	return s
}

// setupRoutes configures the API routes for the server.
func (s *Server) setupRoutes() {
	openaiHandlers := openai.NewOpenAIAPIHandler(s.handlers)

	v1 := s.engine.Group("/v1")
	v1.Use(AuthMiddleware(s.cfg))
	{
		v1.GET("/models", openaiHandlers.OpenAIModels)
		v1.POST("/chat/completions", openaiHandlers.ChatCompletions)
	}

	s.engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Cursor Proxy API Server",
			"version": "1.0.0",
			"endpoints": []string{
				"POST /v1/chat/completions",
				"GET /v1/models",
				"GET /usage",
			},
		})
	})

	s.engine.GET("/usage", AuthMiddleware(s.cfg), s.usageHandler)
}

// usageHandler dumps the per-model usage counters.
func (s *Server) usageHandler(c *gin.Context) {
	if s.handlers.Usage == nil {
		c.JSON(http.StatusOK, gin.H{"models": gin.H{}})
		return
	}
	snapshot, err := s.handlers.Usage.Snapshot()
	if err != nil {
		c.JSON(http.StatusInternalServerError, handlers.ErrorResponse{
			Error: handlers.ErrorDetail{
				Message: err.Error(),
				Type:    "server_error",
			},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": snapshot})
}

// Start begins listening for and serving HTTP requests. It blocks until
// the server stops.
func (s *Server) Start() error {
	log.Debugf("Starting API server on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %v", err)
	}
	return nil
}

// Stop gracefully shuts down the API server without interrupting any
// active connections.
func (s *Server) Stop(ctx context.Context) error {
	log.Debug("Stopping API server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %v", err)
	}
	log.Debug("API server stopped")
	return nil
}

// UpdateConfig applies a reloaded configuration to the running server.
func (s *Server) UpdateConfig(cfg *config.Config) {
	if s.requestLogger != nil && s.cfg.RequestLog != cfg.RequestLog {
		s.requestLogger.SetEnabled(cfg.RequestLog)
		log.Debugf("request logging updated from %t to %t", s.cfg.RequestLog, cfg.RequestLog)
	}
	if s.cfg.Debug != cfg.Debug {
		logging.SetLogLevel(cfg.Debug)
		log.Debugf("debug mode updated from %t to %t", s.cfg.Debug, cfg.Debug)
	}
	s.cfg = cfg
	s.handlers.UpdateConfig(cfg)
}

// corsMiddleware returns a Gin middleware handler that adds CORS headers
// to every response, allowing cross-origin requests.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// AuthMiddleware returns a Gin middleware handler that authenticates
// requests using API keys. If no API keys are configured, it allows all
// requests.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.AllowLocalhostUnauthenticated && strings.HasPrefix(c.Request.RemoteAddr, "127.0.0.1:") {
			c.Next()
			return
		}
		if len(cfg.APIKeys) == 0 {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		authHeaderAlt := c.GetHeader("X-Api-Key")
		apiKeyQuery, _ := c.GetQuery("key")

		if authHeader == "" && authHeaderAlt == "" && apiKeyQuery == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing API key",
			})
			return
		}

		parts := strings.Split(authHeader, " ")
		var apiKey string
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			apiKey = parts[1]
		} else {
			apiKey = authHeader
		}

		var foundKey string
		for i := range cfg.APIKeys {
			if cfg.APIKeys[i] == apiKey || cfg.APIKeys[i] == authHeaderAlt || cfg.APIKeys[i] == apiKeyQuery {
				foundKey = cfg.APIKeys[i]
				break
			}
		}
		if foundKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			return
		}

		c.Set("apiKey", foundKey)
		c.Next()
	}
}
