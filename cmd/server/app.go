package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/soaringjerry/coachdesk/internal/api"
	"github.com/soaringjerry/coachdesk/internal/cache"
	"github.com/soaringjerry/coachdesk/internal/config"
	"github.com/soaringjerry/coachdesk/internal/db"
	"github.com/soaringjerry/coachdesk/internal/logger"
	"github.com/soaringjerry/coachdesk/internal/observability"
	"github.com/soaringjerry/coachdesk/internal/services"
)

// app is everything a command needs once configuration has been read.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   api.Store
	cache   cache.Cache
	metrics *observability.Metrics

	intake  *services.IntakeService
	courses *services.CourseService
	members *services.MemberService
	exports *services.ExportService

	closers []io.Closer
}

func bootstrap(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Server.Mode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	a := &app{cfg: cfg, log: log}

	if cfg.Metrics.Enabled {
		m, err := observability.NewMetrics(cfg.Metrics.Namespace, prometheus.NewRegistry())
		if err != nil {
			return nil, fmt.Errorf("init metrics: %w", err)
		}
		a.metrics = m
	}

	if err := a.openCache(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.intake = services.NewIntakeService(a.store, a.cache, log)
	a.courses = services.NewCourseService(a.store, a.cache, log)
	a.members = services.NewMemberService(a.store, services.LogNotifier{Log: log}, log)
	a.exports = services.NewExportService(a.store)
	a.exports.SetFontPath(cfg.Export.FontPath)
	if a.metrics != nil {
		a.intake.SetRecorder(a.metrics)
		a.courses.SetRecorder(a.metrics)
		a.members.SetRecorder(a.metrics)
	}
	return a, nil
}

func (a *app) openCache(ctx context.Context) error {
	c := a.cfg.Cache
	switch c.Kind {
	case "redis":
		r, err := cache.NewRedis(ctx, c.RedisAddr, c.Prefix, c.TTL)
		if err != nil {
			return fmt.Errorf("connect redis %s: %w", c.RedisAddr, err)
		}
		a.cache = r
		a.closers = append(a.closers, r)
	case "none":
		a.cache = cache.Noop{}
	default:
		l, err := cache.NewLRU(c.Size, c.TTL)
		if err != nil {
			return fmt.Errorf("init lru cache: %w", err)
		}
		a.cache = l
	}
	a.log.Info("cache ready", "kind", c.Kind)
	return nil
}

func (a *app) openStore(ctx context.Context) error {
	d := a.cfg.DB
	if d.Driver == "memory" {
		ms, err := api.NewMemoryStoreFromPath(d.SnapshotPath)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		ms.SetLogger(a.log)
		a.store = ms
		a.log.Info("memory store ready", "snapshot", d.SnapshotPath)
		return nil
	}

	sqlDB, err := db.Open(ctx, d.Driver, d.DSN)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, sqlDB)
	applied, err := db.RunMigrations(ctx, sqlDB, d.Driver, d.MigrationsDir)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	st, err := db.NewSQLStore(sqlDB, d.Driver, a.log)
	if err != nil {
		return err
	}
	a.store = st
	a.log.Info("sql store ready", "driver", d.Driver, "migrations_applied", len(applied))

	if freshSchema(applied) {
		if _, err := importSnapshot(ctx, a.log, d.SnapshotPath, st); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("close resource", "error", err)
		}
	}
	a.closers = nil
	a.log.Sync()
}
