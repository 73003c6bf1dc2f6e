// Package server exposes the newsroom pipeline as a small chat service:
// runs are started over HTTP, execute in the background against a session
// thread and report progress over Server-Sent Events.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/danshapiro/newsroom/internal/graph"
	"github.com/danshapiro/newsroom/internal/metrics"
	"github.com/danshapiro/newsroom/internal/session"
)

// Config holds server configuration.
type Config struct {
	Addr            string // listen address, e.g. ":8080"
	ShutdownTimeout time.Duration
	// RunOptions are applied to every run, e.g. graph.WithMaxSteps.
	RunOptions []graph.Option
	// RetainRuns caps the finished runs kept for status lookups
	// (default DefaultRetainFinished).
	RetainRuns int
}

// Server is the HTTP front end for chat runs.
type Server struct {
	config   Config
	runner   *session.Runner
	registry *RunRegistry
	logger   zerolog.Logger
	router   *gin.Engine
	baseCtx  context.Context
	cancel   context.CancelFunc
	httpSrv  *http.Server
}

// New creates a Server that executes chats through runner.
func New(cfg Config, runner *session.Runner, logger zerolog.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background()))
	s := &Server{
		config:   cfg,
		runner:   runner,
		registry: NewRunRegistry(cfg.RetainRuns),
		logger:   logger,
		baseCtx:  ctx,
		cancel:   cancel,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.requestLogger())
	router.Use(metricsRecorder())
	router.Use(csrfProtect())
	s.router = router
	s.setupRoutes()

	s.httpSrv = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // SSE requires no write timeout
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleIndex)
	s.router.GET("/healthz", s.handleHealth)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := s.router.Group("/v1")
	v1.POST("/chat", s.handleChat)
	v1.GET("/runs/:id", s.handleGetRun)
	v1.GET("/runs/:id/events", s.handleRunEvents)
	v1.POST("/runs/:id/cancel", s.handleCancelRun)
	v1.GET("/threads/:id", s.handleGetThread)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Registry returns the run registry.
func (s *Server) Registry() *RunRegistry { return s.registry }

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.config.Addr).Msg("listening")
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.cancel()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("shutting down")
		return s.Shutdown()
	}
}

// Shutdown cancels all running chats and drains HTTP connections.
func (s *Server) Shutdown() error {
	s.registry.CancelAll("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer shutdownCancel()
	err := s.httpSrv.Shutdown(shutdownCtx)

	s.cancel()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := s.logger.Debug()
		if c.Writer.Status() >= 500 {
			ev = s.logger.Error()
		} else if c.Writer.Status() >= 400 {
			ev = s.logger.Warn()
		}
		for _, e := range c.Errors {
			ev = ev.AnErr("gin_error", e.Err)
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	}
}

func metricsRecorder() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.Request.URL.Path
		if path == "/healthz" || path == "/metrics" {
			return
		}
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// csrfProtect rejects cross-origin POST requests. Browsers set Origin on
// cross-origin requests; the chat page and CLI callers send a same-origin or
// local Origin, or none at all.
func csrfProtect() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost {
			origin := c.GetHeader("Origin")
			if origin != "" {
				u, err := url.Parse(origin)
				if err != nil {
					c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "invalid Origin header"})
					return
				}
				host := u.Hostname()
				if u.Host != c.Request.Host && host != "localhost" && host != "127.0.0.1" && host != "::1" {
					c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: "cross-origin request blocked"})
					return
				}
			}
		}
		c.Next()
	}
}
