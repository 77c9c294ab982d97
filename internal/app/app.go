package app

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"retrycache/internal/adapter/admin"
	"retrycache/internal/adapter/scheduler"
	"retrycache/internal/config"
	"retrycache/internal/platform/logger"
	"retrycache/internal/shared"
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "retryd",
	})
	return &App{cfg: cfg, log: log}, nil
}

// Run starts the scheduler and the admin server and blocks until SIGINT or
// SIGTERM.
func (a *App) Run() error {
	defer func() { _ = logger.Close(a.log) }()
	a.log.Info("starting",
		slog.String("store", a.cfg.Store.Driver),
		slog.String("cache", a.cfg.Cache.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := Build(ctx, a.cfg, a.log)
	if err != nil {
		a.log.Error("build failed",
			slog.String("kind", shared.KindOf(err).String()),
			slog.Any("error", err),
		)
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			a.log.Warn("close", slog.Any("error", err))
		}
	}()

	sched := scheduler.NewWithContext(ctx, scheduler.Config{
		Logger:   a.log,
		JobHooks: scheduler.MetricsHooks(),
	})
	jobs := scheduler.Jobs{Snapshots: c.Snapshots, Reloader: c.Resolver, Logger: a.log}
	if c.Memory != nil {
		jobs.Purger = c.Memory
	}
	err = scheduler.Register(sched, scheduler.Schedules{
		Snapshot:  a.cfg.Schedule.Snapshot,
		Heartbeat: a.cfg.Schedule.Heartbeat,
		Purge:     a.cfg.Schedule.Purge,
		Reload:    a.cfg.Schedule.Reload,
	}, jobs)
	if err != nil {
		return err
	}
	sched.Start()

	if a.cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := admin.NewServer(a.cfg.HTTP.Addr, admin.Deps{
		Snapshots: c.Snapshots,
		Profiles:  c.Resolver,
		Checks:    c.Checks,
		Logger:    a.log,
	})
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil {
			a.log.Error("server", slog.Any("err", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if serr := srv.Stop(shutdownCtx); serr != nil {
		a.log.Warn("server shutdown", slog.Any("err", serr))
	}
	if serr := sched.StopContext(shutdownCtx); serr != nil {
		a.log.Warn("scheduler shutdown", slog.Any("err", serr))
	}
	a.log.Info("stopped")
	return err
}
