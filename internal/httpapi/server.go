package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/emberfix/repaird/internal/knowledge"
	"github.com/emberfix/repaird/internal/logging"
	"github.com/emberfix/repaird/internal/session"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides HTTP endpoints for repaird.
type Server struct {
	echo         *echo.Echo
	orchestrator *session.Orchestrator
	knowledge    *knowledge.Store
	logger       *logging.Logger
	config       Config
}

// NewServer creates a new HTTP server.
func NewServer(orch *session.Orchestrator, ks *knowledge.Store, logger *logging.Logger, cfg Config) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8787
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
			)
			return err
		}
	})

	s := &Server{
		echo:         e,
		orchestrator: orch,
		knowledge:    ks,
		logger:       logger,
		config:       cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/v1")
	v1.POST("/sessions", s.handleStartSession)
	v1.GET("/sessions/:id", s.handleGetSession)
	v1.POST("/sessions/:id/answer", s.handleAnswerQuestion)
	v1.POST("/sessions/:id/feedback", s.handleSubmitFeedback)
	v1.GET("/sessions/:id/trail", s.handleGetAuditTrail)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the root handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
