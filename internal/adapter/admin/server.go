// Package admin serves the operator HTTP surface: health, Prometheus
// metrics, the dashboard snapshot, resolved retry profiles and cache priming.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"retrycache/internal/profile"
	"retrycache/internal/settings"
	"retrycache/internal/snapshot"
)

// Health statuses reported by /healthz.
const (
	StatusHealthy  = "healthy"
	StatusCritical = "critical"
)

// SnapshotService is what the server needs from snapshot.Service.
type SnapshotService interface {
	Snapshot(ctx context.Context, force bool) (snapshot.Snapshot, error)
	Prime(ctx context.Context) (int, error)
}

// ProfileSource is what the server needs from profile.Resolver.
type ProfileSource interface {
	Profiles(ctx context.Context) map[string]profile.Profile
	Settings(ctx context.Context) settings.Settings
}

// Check verifies one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// Deps holds the server collaborators.
type Deps struct {
	Snapshots SnapshotService
	Profiles  ProfileSource
	Checks    map[string]Check
	Logger    *slog.Logger
}

// Server is the admin HTTP server.
type Server struct {
	deps   Deps
	log    *slog.Logger
	engine *gin.Engine
	server *http.Server
}

// NewServer creates a server listening on addr.
func NewServer(addr string, d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{deps: d, log: log.With("component", "admin")}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/snapshot", s.handleSnapshot)
	r.GET("/profiles", s.handleProfiles)
	r.POST("/cache/prime", s.handlePrime)

	s.engine = r
	s.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Stop is called. It never returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.log.Info("admin server listening", slog.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	status := StatusHealthy
	checks := make(map[string]string, len(s.deps.Checks))
	for name, check := range s.deps.Checks {
		if err := check(c.Request.Context()); err != nil {
			status = StatusCritical
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	code := http.StatusOK
	if status == StatusCritical {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "checks": checks})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))

	snap, err := s.deps.Snapshots.Snapshot(c.Request.Context(), force)
	if err != nil {
		s.log.Error("snapshot failed", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleProfiles(c *gin.Context) {
	ctx := c.Request.Context()
	cfg := s.deps.Profiles.Settings(ctx)
	c.JSON(http.StatusOK, gin.H{
		"profiles":         s.deps.Profiles.Profiles(ctx),
		"auto_bot_mode":    cfg.Mode(),
		"learning_enabled": cfg.LearningEnabled,
	})
}

func (s *Server) handlePrime(c *gin.Context) {
	v, err := s.deps.Snapshots.Prime(c.Request.Context())
	if err != nil {
		s.log.Error("cache prime failed", slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	s.log.Info("cache primed", slog.Int("buster", v))
	c.JSON(http.StatusOK, gin.H{"buster": v})
}
