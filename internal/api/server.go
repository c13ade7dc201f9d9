// Package api serves read-only collector state over HTTP and accepts authenticated
// manual triggers, which are forwarded to the running dispatcher.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"routerwatch/internal/inventory"
	"routerwatch/internal/store"
)

type Controller interface {
	TriggerRollover(ctx context.Context) error
	TriggerReport(ctx context.Context, month string) error
}

type HealthReporter interface {
	Health() any
}

type Server struct {
	logger   *slog.Logger
	store    *store.Store
	registry *inventory.Registry
	ctrl     Controller
	health   HealthReporter
	secret   []byte
	limiter  *rate.Limiter
	engine   *gin.Engine
}

func New(st *store.Store, registry *inventory.Registry, ctrl Controller, health HealthReporter, secret []byte, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		logger:   logger,
		store:    st,
		registry: registry,
		ctrl:     ctrl,
		health:   health,
		secret:   secret,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 5),
		engine:   gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.getHealth)

	v1 := s.engine.Group("/api/v1")
	{
		v1.GET("/status", s.listStatus)
		v1.GET("/status/:device", s.getStatus)
		v1.GET("/daily", s.getDaily)
		v1.GET("/reports/:month/:device", s.getReport)
	}

	triggers := v1.Group("", s.requireToken(), s.rateLimit())
	{
		triggers.POST("/reports/:month/send", s.sendReport)
		triggers.POST("/rollover", s.rollover)
	}
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen api endpoint %s: %w", addr, err)
	}
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	s.logger.Info("api listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve api: %w", err)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("api request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
