package main

import (
	"context"
	"errors"
	"hello/internal/config"
	"hello/internal/proxy"
	"hello/pkg/logger"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func proxyCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Starts the reverse proxy in front of the application server",
		Long: "Serves STATIC_ROOT under STATIC_URL and forwards every other request to\n" +
			"PROXY_UPSTREAM. HTTPS is enabled when PROXY_TLS_CERT and PROXY_TLS_KEY are set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			handler, err := proxy.New(proxy.Options{
				Upstream:        cfg.Proxy.Upstream,
				UpstreamTimeout: cfg.Proxy.UpstreamTimeout,
				MaxBodyBytes:    cfg.Proxy.MaxBodyBytes,
				StaticURL:       cfg.Static.URL,
				StaticRoot:      cfg.Static.Root,
			})
			if err != nil {
				logger.Fatal(ctx, "could not create proxy", zap.Error(err))
			}

			newServer := func(addr string) *http.Server {
				return &http.Server{
					Addr:              addr,
					Handler:           handler,
					ReadHeaderTimeout: 10 * time.Second,
					IdleTimeout:       2 * time.Minute,
				}
			}
			servers := []*http.Server{newServer(cfg.Proxy.Addr)}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return listen(ctx, "proxy", servers[0]) })

			if cfg.Proxy.CertFile != "" && cfg.Proxy.KeyFile != "" {
				tlsServer := newServer(cfg.Proxy.TLSAddr)
				servers = append(servers, tlsServer)
				g.Go(func() error {
					logger.Info(ctx, "starting tls proxy...", zap.String("addr", tlsServer.Addr))
					err := tlsServer.ListenAndServeTLS(cfg.Proxy.CertFile, cfg.Proxy.KeyFile)
					if err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error(ctx, "could not start tls proxy", zap.Error(err))

						return err //nolint: wrapcheck
					}

					return nil
				})
			}

			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
			defer cancel()
			for _, srv := range servers {
				shutdown(shutdownCtx, "proxy", srv)
			}

			return g.Wait() //nolint: wrapcheck
		},
	}

	return cmd
}
