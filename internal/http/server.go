// Package http serves the refundmatch API: precedent lookup, the individual
// matchers, high-confidence patterns and review corrections.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/refundmatch/internal/feedback"
	"github.com/fyrsmithlabs/refundmatch/internal/history"
	"github.com/fyrsmithlabs/refundmatch/internal/logging"
	"github.com/fyrsmithlabs/refundmatch/internal/matcher"
	"github.com/fyrsmithlabs/refundmatch/internal/precedent"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// VendorMatcher is satisfied by *matcher.VendorMatcher.
type VendorMatcher interface {
	Match(ctx context.Context, name string, minOverlap int) *matcher.VendorMatch
}

// PatternMatcher is satisfied by *matcher.PatternMatcher.
type PatternMatcher interface {
	Match(ctx context.Context, description string, minOverlap int) *matcher.PatternMatch
	SuggestRefundBasis(ctx context.Context, description string) (string, bool)
	HighConfidencePatterns(ctx context.Context, minSuccessRate float64, minSamples int) ([]history.PatternRecord, error)
}

// PrecedentBuilder is satisfied by *precedent.Builder.
type PrecedentBuilder interface {
	Build(ctx context.Context, vendorName, description string) *precedent.Precedent
}

// CorrectionApplier is satisfied by *feedback.Learner.
type CorrectionApplier interface {
	Apply(ctx context.Context, c feedback.Correction) (*feedback.Outcome, error)
}

// Services are the handlers' dependencies. Learner may be nil, which
// disables the corrections endpoint.
type Services struct {
	Vendors   VendorMatcher
	Patterns  PatternMatcher
	Precedent PrecedentBuilder
	Learner   CorrectionApplier
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	VendorMinOverlap      int
	PatternMinOverlap     int
	HighConfidenceRate    float64
	HighConfidenceSamples int
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 9191
	}
	if c.VendorMinOverlap == 0 {
		c.VendorMinOverlap = matcher.DefaultVendorMinOverlap
	}
	if c.PatternMinOverlap == 0 {
		c.PatternMinOverlap = matcher.DefaultPatternMinOverlap
	}
	if c.HighConfidenceRate == 0 {
		c.HighConfidenceRate = matcher.DefaultHighConfidenceRate
	}
	if c.HighConfidenceSamples == 0 {
		c.HighConfidenceSamples = matcher.DefaultHighConfidenceSamples
	}
}

const maxBodySize = "1M"

// Server provides the HTTP endpoints.
type Server struct {
	echo     *echo.Echo
	services Services
	logger   *logging.Logger
	config   *Config
}

// NewServer creates a server. Matchers and the precedent builder are required.
func NewServer(services Services, logger *logging.Logger, cfg *Config) (*Server, error) {
	if services.Vendors == nil || services.Patterns == nil || services.Precedent == nil {
		return nil, errors.New("vendor matcher, pattern matcher and precedent builder are required")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.applyDefaults()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(maxBodySize))
	e.Use(requestLogger(logger))
	e.Use(NewHTTPMetrics(logger.Underlying()).Middleware())

	s := &Server{
		echo:     e,
		services: services,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

// requestLogger tags the request context with its ID and logs completion.
func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(ctx))

			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/precedent", s.handlePrecedent)
	v1.POST("/match/vendor", s.handleMatchVendor)
	v1.POST("/match/pattern", s.handleMatchPattern)
	v1.GET("/patterns/high-confidence", s.handleHighConfidence)
	if s.services.Learner != nil {
		v1.POST("/corrections", s.handleCorrection)
	}
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// ServeHTTP lets the server be mounted or exercised with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
