// Package server exposes the dialogue engine over HTTP: the turn endpoint,
// the disambiguation endpoint, health and metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/leichangqing/intelligence-intent-sub003/dialog/metrics"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/orchestrator"
	"github.com/leichangqing/intelligence-intent-sub003/dialog/registry"
	"github.com/leichangqing/intelligence-intent-sub003/internal/profile"
	"github.com/leichangqing/intelligence-intent-sub003/server/service/cleanup"
	"github.com/leichangqing/intelligence-intent-sub003/store"
)

// Server is the HTTP front of the dialogue engine.
type Server struct {
	Profile *profile.Profile
	Store   *store.Store

	echoServer   *echo.Echo
	registry     *registry.Registry
	orchestrator *orchestrator.Orchestrator
	metrics      *metrics.Exporter
	cleanup      *cleanup.Scheduler
	userLimits   *perUserLimiters
}

// perUserLimiters keeps one token bucket per user id. The IP-keyed echo
// middleware guards the listener; this guards individual users sharing a
// gateway address.
type perUserLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newPerUserLimiters(limit rate.Limit, burst int) *perUserLimiters {
	return &perUserLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (l *perUserLimiters) allow(userID string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[userID] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

type requestValidator struct {
	validator *validator.Validate
}

func (v *requestValidator) Validate(i any) error {
	if err := v.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// NewServer wires the dialogue stack behind an echo server.
func NewServer(ctx context.Context, p *profile.Profile, s *store.Store) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validator: validator.New()}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			slog.Debug("http request", "uri", v.URI, "status", v.Status)
			return nil
		},
	}))
	e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(20),
			Burst:     40,
			ExpiresIn: 3 * time.Minute,
		},
	)))

	reg := registry.New(s)
	if err := reg.Warmup(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to warm up intent registry")
	}

	exporter := metrics.NewExporter(metrics.DefaultConfig())
	server := &Server{
		Profile:      p,
		Store:        s,
		echoServer:   e,
		registry:     reg,
		orchestrator: orchestrator.New(p, s, reg, exporter),
		metrics:      exporter,
		cleanup:      cleanup.NewScheduler(s, p),
		userLimits:   newPerUserLimiters(rate.Limit(5), 10),
	}

	e.GET("/healthz", server.handleHealthz)
	e.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	chat := e.Group("/chat")
	chat.POST("/interact", server.handleInteract)
	chat.POST("/disambiguate", server.handleDisambiguate)
	chat.GET("/slots/:session_id", server.handleSessionSlots)
	chat.GET("/stats/:intent", server.handleIntentStats)

	return server, nil
}

// Start launches the cleanup scheduler and the HTTP listener.
func (s *Server) Start(ctx context.Context) error {
	s.cleanup.Start(ctx)
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start http server", "error", err)
		}
	}()
	return nil
}

// Shutdown drains the HTTP server and closes the store.
func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	s.cleanup.Stop()
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown http server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server shutdown complete")
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.Profile.Version,
	})
}
