// Package http provides the finplan job and projection HTTP API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/finplan/internal/jobs"
	"github.com/fyrsmithlabs/finplan/internal/logging"
	"github.com/fyrsmithlabs/finplan/internal/projection"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Owner is recorded on jobs submitted over HTTP.
const Owner = "http"

// JobService is the job API backing /api/v1/jobs.
type JobService interface {
	Submit(ctx context.Context, typ string, data json.RawMessage) (string, error)
	Status(ctx context.Context, id string) (jobs.JobStatus, error)
	Cancel(ctx context.Context, id string) error
}

// Projector runs synchronous projections.
type Projector interface {
	Post(ctx context.Context, msg projection.Message) (<-chan projection.Reply, error)
}

// Server provides HTTP endpoints for finplan.
type Server struct {
	echo    *echo.Echo
	jobs    JobService
	engine  Projector
	limiter *rate.Limiter
	logger  *zap.Logger
	config  *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host    string
	Port    int
	Version string

	// SubmitRate limits job submissions per second. Zero disables limiting.
	SubmitRate  float64
	SubmitBurst int

	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer

	// Meter records request metrics. Nil uses the global meter provider.
	Meter metric.Meter
}

// NewServer creates a new HTTP server.
func NewServer(svc JobService, engine Projector, logger *zap.Logger, cfg *Config) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("job service cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("projection engine cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8080,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		jobs:   svc,
		engine: engine,
		logger: logger,
		config: cfg,
	}
	if cfg.SubmitRate > 0 {
		burst := max(cfg.SubmitBurst, 1)
		s.limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRate), burst)
	}
	e.HTTPErrorHandler = s.handleError

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestContext)
	e.Use(newRequestMetrics(cfg.Meter, logger).middleware)
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", responseStatus(c, err)),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s.registerRoutes()

	return s, nil
}

// requestContext carries the request ID into the request context so job
// logs can be correlated with the request that created them.
func requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	gatherer := s.config.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/jobs", s.handleSubmit)
	v1.GET("/jobs/:id", s.handleStatus)
	v1.POST("/jobs/:id/cancel", s.handleCancel)
	v1.POST("/projections", s.handleProjection)
}

// Echo returns the underlying router.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Version: s.config.Version})
}

func (s *Server) handleSubmit(c echo.Context) error {
	if s.limiter != nil && !s.limiter.Allow() {
		return echo.NewHTTPError(http.StatusTooManyRequests, "submission rate exceeded")
	}

	var req jobs.SubmitRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid submit request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Type == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "type field is required")
	}
	if typ, err := jobs.ParseType(req.Type); err == nil {
		c.Set(workloadKey, string(typ))
	} else {
		c.Set(workloadKey, workloadBad)
	}

	ctx := jobs.WithOwner(c.Request().Context(), Owner)
	id, err := s.jobs.Submit(ctx, req.Type, req.Data)
	if err != nil {
		return jobError(err)
	}
	return c.JSON(http.StatusAccepted, jobs.SubmitResponse{JobID: id})
}

func (s *Server) handleStatus(c echo.Context) error {
	st, err := s.jobs.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return jobError(err)
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) handleCancel(c echo.Context) error {
	if err := s.jobs.Cancel(c.Request().Context(), c.Param("id")); err != nil {
		return jobError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleProjection runs one projection synchronously and returns the reply.
// ERROR replies are sent with 422.
func (s *Server) handleProjection(c echo.Context) error {
	var msg projection.Message
	if err := c.Bind(&msg); err != nil {
		s.logger.Warn("invalid projection request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if msg.Type.Valid() {
		c.Set(workloadKey, string(msg.Type))
	} else {
		c.Set(workloadKey, workloadBad)
	}

	ctx := c.Request().Context()
	ch, err := s.engine.Post(ctx, msg)
	if err != nil {
		if errors.Is(err, projection.ErrEngineClosed) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return err
	}

	select {
	case reply := <-ch:
		code := http.StatusOK
		if reply.Type == projection.ReplyError {
			code = http.StatusUnprocessableEntity
		}
		return c.JSON(code, reply)
	case <-ctx.Done():
		return echo.NewHTTPError(http.StatusServiceUnavailable, "request cancelled")
	}
}

// jobError maps job service errors onto HTTP status codes.
func jobError(err error) error {
	switch {
	case errors.Is(err, jobs.ErrJobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	case errors.Is(err, jobs.ErrUnknownType), errors.Is(err, jobs.ErrInvalidData):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return err
	}
}

// handleError renders every error as an ErrorResponse.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	} else {
		s.logger.Error("request failed",
			zap.String("uri", c.Request().RequestURI),
			zap.Error(err),
		)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, jobs.ErrorResponse{Error: msg})
	}
	if err != nil {
		s.logger.Warn("write error response", zap.Error(err))
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
