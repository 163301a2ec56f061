package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"github.com/soaringjerry/coachdesk/internal/api"
	"github.com/soaringjerry/coachdesk/internal/middleware"
	"github.com/soaringjerry/coachdesk/internal/observability"
)

type serveOptions struct {
	sweepInterval time.Duration
}

func newServeCommand(configPath *string) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath, opts)
		},
	}
	cmd.Flags().DurationVar(&opts.sweepInterval, "sweep-interval", time.Hour, "how often to expire lapsed members and send reminders (0 disables)")
	return cmd
}

func runServe(parent context.Context, configPath string, opts serveOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := bootstrap(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	shutdownOtel := observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     a.cfg.Otel.Enabled,
		ServiceName: a.cfg.Otel.ServiceName,
		Environment: a.cfg.Otel.Environment,
		Version:     a.cfg.Build.Commit,
		Endpoint:    a.cfg.Otel.Endpoint,
		Insecure:    a.cfg.Otel.Insecure,
		SampleRatio: a.cfg.Otel.SampleRatio,
	})
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			log.Warn("otel shutdown", "error", err)
		}
	}()

	engine, err := a.newEngine()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("coachd listening", "addr", a.cfg.Server.Addr, "store", a.cfg.DB.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if opts.sweepInterval > 0 {
		g.Go(func() error {
			a.sweepMembers(gctx, opts.sweepInterval)
			return nil
		})
	}
	return g.Wait()
}

func (a *app) newEngine() (*gin.Engine, error) {
	if a.cfg.Server.Mode == "prod" || a.cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if a.cfg.Otel.Enabled {
		r.Use(otelgin.Middleware(a.cfg.Otel.ServiceName))
	}
	r.Use(
		middleware.RequestLogger(a.log),
		middleware.Metrics(a.metrics),
		middleware.CORS(a.cfg.Server.CORSOrigins),
		middleware.NoStore(),
		middleware.SecureHeaders(),
	)

	build := gin.H{"commit": a.cfg.Build.Commit, "build_time": a.cfg.Build.BuildTime}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true, "name": "coachd", "store": a.cfg.DB.Driver, "commit": a.cfg.Build.Commit})
	})
	r.GET("/version", func(c *gin.Context) { c.JSON(http.StatusOK, build) })
	if a.metrics != nil {
		r.GET("/metrics", gin.WrapH(a.metrics.Handler()))
	}

	group := r.Group("/api")
	if a.cfg.Auth.JWTSecret != "" {
		auth, err := middleware.NewAuthenticator(a.cfg.Auth.JWTSecret, a.cfg.Auth.Issuer, a.log)
		if err != nil {
			return nil, err
		}
		group.Use(auth.RequireAuth())
	} else if gin.Mode() == gin.ReleaseMode {
		return nil, errors.New("auth.jwt_secret is required in prod mode")
	} else {
		a.log.Warn("auth.jwt_secret is empty; /api is open (dev only)")
	}
	api.NewRouter(api.RouterConfig{
		Intake:  a.intake,
		Courses: a.courses,
		Members: a.members,
		Exports: a.exports,
		Store:   a.store,
		Log:     a.log,
	}).Register(group)

	a.mountFrontend(r)
	return r, nil
}

// mountFrontend serves the admin UI: built files when a static dir is set, otherwise a
// proxy to the dev server.
func (a *app) mountFrontend(r *gin.Engine) {
	fe := a.cfg.Frontend
	if fe.StaticDir != "" {
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(fe.StaticDir))))
		return
	}
	if fe.DevURL == "" {
		return
	}
	u, err := url.Parse(fe.DevURL)
	if err != nil {
		a.log.Warn("invalid frontend dev url", "url", fe.DevURL, "error", err)
		return
	}
	rp := httputil.NewSingleHostReverseProxy(u)
	rp.ModifyResponse = func(res *http.Response) error {
		res.Header.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		res.Header.Set("Pragma", "no-cache")
		res.Header.Set("Expires", "0")
		return nil
	}
	r.NoRoute(gin.WrapH(rp))
}

// sweepMembers marks lapsed memberships expired and hands reminders to the notifier.
func (a *app) sweepMembers(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		n, err := a.members.ExpireLapsed(ctx)
		if err != nil {
			a.log.Warn("expire lapsed members", "error", err)
		}
		res, err := a.members.SendExpiryReminders(ctx, a.cfg.Members.ReminderWindow)
		if err != nil {
			a.log.Warn("send expiry reminders", "error", err)
			continue
		}
		a.log.Info("member sweep", "expired", n, "reminded", len(res.Sent), "failed", len(res.Failed))
	}
}
