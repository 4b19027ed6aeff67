package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"summarize-gateway/internal/config"
	"summarize-gateway/internal/observability/logging"
	"summarize-gateway/internal/observability/metrics"
	"summarize-gateway/internal/observability/tracing"
	"summarize-gateway/internal/usecase"
)

const (
	shutdownGracePeriod = 10 * time.Second
	readTimeout         = 30 * time.Second
	writeTimeoutSlack   = 15 * time.Second
	idleTimeout         = 120 * time.Second

	contentSecurityPolicy = "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; " +
		"form-action 'self'; frame-ancestors 'none'"
)

type Summarizer interface {
	Summarize(ctx context.Context, in usecase.SummarizeInput) (usecase.SummarizeOutput, error)
}

// PageLoader yields the front page bytes. *assets.Page satisfies it.
type PageLoader interface {
	Load() ([]byte, error)
}

type Server struct {
	app          *echo.Echo
	address      string
	writeTimeout time.Duration
	summarizer   Summarizer
	page         PageLoader
	logger       *slog.Logger
}

// New constructs an HTTP server wired with routing and middleware.
func New(cfg config.Config, summarizer Summarizer, page PageLoader, logger *slog.Logger) (*Server, error) {
	if summarizer == nil {
		return nil, errors.New("server: summarizer must not be nil")
	}
	if page == nil {
		return nil, errors.New("server: page loader must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = plainErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
		RequestIDHandler: func(c echo.Context, id string) {
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), id)))
		},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:   true,
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("request_id", v.RequestID),
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Int64("latency_ms", v.Latency.Milliseconds()),
			}
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	}))
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		ContentSecurityPolicy: contentSecurityPolicy,
	}))
	e.Use(tracing.Middleware())
	e.Use(metrics.Middleware())

	srv := &Server{
		app:          e,
		address:      cfg.Server.Address(),
		writeTimeout: cfg.OpenAI.UpstreamTimeout + writeTimeoutSlack,
		summarizer:   summarizer,
		page:         page,
		logger:       logger,
	}
	srv.registerRoutes()
	return srv, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.app
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting server", "addr", s.address)

	httpServer := &http.Server{
		Addr:         s.address,
		Handler:      s.app,
		ReadTimeout:  readTimeout,
		WriteTimeout: s.writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.app.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.logger.Info("server shutdown complete")
		return nil
	case err := <-errCh:
		return fmt.Errorf("server: listen on %s: %w", s.address, err)
	}
}

func (s *Server) registerRoutes() {
	s.app.GET("/", s.handleIndex)
	s.app.POST("/summarize", s.handleSummarize)
	s.app.GET("/healthz", s.handleHealth)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Server) handleIndex(c echo.Context) error {
	body, err := s.page.Load()
	if err != nil {
		s.logger.ErrorContext(c.Request().Context(), "failed to load front page", "err", err)
		return c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
	return c.HTMLBlob(http.StatusOK, body)
}

func (s *Server) handleSummarize(c echo.Context) error {
	if _, err := c.FormParams(); err != nil {
		return c.String(http.StatusBadRequest, "invalid form body")
	}
	values, ok := c.Request().PostForm["text"]
	if !ok || len(values) == 0 {
		return c.String(http.StatusBadRequest, "missing form field: text")
	}

	out, err := s.summarizer.Summarize(c.Request().Context(), usecase.SummarizeInput{Text: values[0]})
	if err != nil {
		status := usecase.StatusOf(err)
		return c.String(status, http.StatusText(status))
	}
	return c.HTML(http.StatusOK, out.Summary)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// plainErrorHandler renders router and middleware errors without detail.
func plainErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
	}
	_ = c.String(status, http.StatusText(status))
}
