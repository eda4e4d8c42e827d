package main

import (
	"context"
	"errors"
	"hello/internal/admin"
	"hello/internal/app"
	"hello/internal/auth"
	"hello/internal/config"
	"hello/internal/housekeeping"
	"hello/internal/ledger"
	"hello/internal/ops"
	"hello/internal/workerpool"
	"hello/pkg/logger"
	"hello/pkg/metrics"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// serverMode is what differs between "serve" and "runserver".
type serverMode struct {
	addr         string
	workers      int
	backlog      int
	serveStatic  bool
	ops          bool
	housekeeping bool
}

// listen runs srv until it is shut down.
func listen(ctx context.Context, name string, srv *http.Server) error {
	logger.Info(ctx, "starting "+name+"...", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error(ctx, "could not start "+name, zap.Error(err))

		return err //nolint: wrapcheck
	}

	return nil
}

// shutdown stops srv, waiting for in-flight requests until ctx expires.
func shutdown(ctx context.Context, name string, srv *http.Server) {
	logger.Info(ctx, "stopping "+name+"...")
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error(ctx, "could not stop "+name, zap.Error(err))
	}
}

// warnPendingMigrations logs when the schema is behind the binary.
func warnPendingMigrations(ctx context.Context, cfg *config.Config, db *database) {
	l, err := ledger.New(db.SQL, cfg.Database.Engine)
	if err != nil {
		logger.Warn(ctx, "could not open migration ledger", zap.Error(err))

		return
	}

	pending, err := l.Pending(ctx)
	if err != nil {
		logger.Warn(ctx, "could not check migrations", zap.Error(err))

		return
	}
	if pending > 0 {
		logger.Warn(ctx, "unapplied migrations, run 'hello migrate'", zap.Int("pending", pending))
	}
}

func runServer(cfg *config.Config, mode serverMode) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	meterProvider, err := metrics.NewMeterProvider(reg)
	if err != nil {
		logger.Fatal(ctx, "could not create meter provider", zap.Error(err))
	}

	// one connection per worker, plus room for the river client
	maxConns := mode.workers
	if mode.housekeeping && cfg.Database.Engine == config.EnginePostgres {
		maxConns += 2
	}
	db, closeDB := openDatabase(ctx, cfg, maxConns)
	defer closeDB()
	warnPendingMigrations(ctx, cfg, db)

	sessions, cache, closeSessions := openSessions(ctx, cfg, db)
	defer closeSessions()

	authService, err := auth.New(db, sessions, auth.Options{
		SecretKey:    cfg.SecretKey,
		CookieAge:    cfg.Session.CookieAge,
		CookieSecure: cfg.Session.CookieSecure,
	})
	if err != nil {
		logger.Fatal(ctx, "could not create auth service", zap.Error(err))
	}
	adminSite, err := admin.New(admin.Options{
		Auth:         authService,
		StaticURL:    cfg.Static.URL,
		CookieSecure: cfg.Session.CookieSecure,
		Debug:        cfg.Debug,
	})
	if err != nil {
		logger.Fatal(ctx, "could not create admin site", zap.Error(err))
	}

	pool, err := workerpool.New(workerpool.Options{Workers: mode.workers, Backlog: mode.backlog}, reg)
	if err != nil {
		logger.Fatal(ctx, "could not create worker pool", zap.Error(err))
	}
	pool.Start(ctx)

	appOpts := app.NewOptions(cfg)
	appOpts.Addr = mode.addr
	appOpts.ServeStatic = mode.serveStatic
	server, err := app.NewServer(app.Deps{
		Admin: adminSite,
		Pool:  pool,
		Meter: meterProvider.Meter("hello"),
	}, appOpts)
	if err != nil {
		logger.Fatal(ctx, "could not create webserver", zap.Error(err))
	}

	var opsServer *http.Server
	if mode.ops && cfg.Ops.Addr != "" {
		checks := map[string]ops.Pinger{"database": db}
		if cache != nil {
			checks["cache"] = cache
		}
		opsServer, err = ops.NewServer(ops.Deps{Gatherer: reg, Checks: checks}, ops.NewOptions(cfg))
		if err != nil {
			logger.Fatal(ctx, "could not create ops server", zap.Error(err))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listen(ctx, "webserver", server) })
	if opsServer != nil {
		g.Go(func() error { return listen(ctx, "ops server", opsServer) })
	}

	if mode.housekeeping && db.Pool != nil {
		riverClient, err := housekeeping.Start(ctx, db.Pool, sessions, cfg.Session.ClearInterval)
		if err != nil {
			logger.Fatal(ctx, "could not start housekeeping", zap.Error(err))
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
			defer cancel()
			if err := riverClient.Stop(stopCtx); err != nil {
				logger.Warn(ctx, "could not stop river client", zap.Error(err))
			}
		}()
	}

	// wait for interrupt or a listener failure
	<-gctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
	defer cancel()

	shutdown(shutdownCtx, "webserver", server)
	if opsServer != nil {
		shutdown(shutdownCtx, "ops server", opsServer)
	}
	pool.Stop()
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "could not shut down meter provider", zap.Error(err))
	}

	return g.Wait() //nolint: wrapcheck
}

func serveCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Starts the application server with its worker pool",
		Long: "Starts the application server: WEB_CONCURRENCY workers serve requests from a\n" +
			"bounded backlog of WEB_BACKLOG. Metrics and health checks listen on OPS_ADDR.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cfg, serverMode{
				addr:         cfg.HTTP.Addr,
				workers:      cfg.Workers.Count,
				backlog:      cfg.Workers.Backlog,
				ops:          true,
				housekeeping: true,
			})
		},
	}

	return cmd
}
