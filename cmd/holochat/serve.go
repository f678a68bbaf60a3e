// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/holomush/holochat/internal/httpapi"
	"github.com/holomush/holochat/internal/observability"
)

const (
	purgeInterval   = time.Hour
	shutdownTimeout = 5 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the HTTP API that registers accounts, checks password complexity
and issues session tokens. Metrics and health probes are served separately
on --metrics-addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.InfoContext(ctx, "starting holochat",
		"version", version,
		"backend", cfg.Backend,
		"listen_addr", cfg.ListenAddr,
	)

	var ready atomic.Bool
	obsServer := observability.NewServer(cfg.MetricsAddr, ready.Load)

	a, err := newApp(ctx, cfg, logger, obsServer.Registry())
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.MetricsAddr != "" {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability", logger)
		defer stopWithTimeout(obsServer.Stop, "observability", logger)
	}

	api := httpapi.NewServer(a.accounts,
		httpapi.WithLogger(logger),
		httpapi.WithMetrics(obsServer.Metrics()),
	)
	listener, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	httpSrv := newHTTPServer(ctx, otelhttp.NewHandler(api.Handler(), "holochat.api"))

	apiErrCh := make(chan error, 1)
	go func() {
		defer close(apiErrCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			apiErrCh <- serveErr
		}
	}()
	go monitorServerErrors(ctx, cancel, apiErrCh, "api", logger)
	go purgeLoop(ctx, a, purgeInterval)

	ready.Store(true)
	logger.InfoContext(ctx, "holochat ready", "addr", listener.Addr().String())

	<-ctx.Done()
	ready.Store(false)
	logger.Info("shutting down")

	stopWithTimeout(httpSrv.Shutdown, "api", logger)
	logger.Info("shutdown complete")
	return nil
}

// newHTTPServer builds the API server. Request contexts keep ctx's values but
// not its cancellation, so a signal lets Shutdown drain in-flight requests
// instead of aborting them after they have committed.
func newHTTPServer(ctx context.Context, handler http.Handler) *http.Server {
	base := context.WithoutCancel(ctx)
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
}

// purgeLoop removes expired tokens and codes every interval until ctx ends.
func purgeLoop(ctx context.Context, a *app, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Purge logs its own failures.
			_, _, _ = a.accounts.Purge(ctx) //nolint:errcheck // retried next tick
		}
	}
}

func stopWithTimeout(stop func(context.Context) error, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		logger.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error, so one
// failing listener shuts the whole process down. It exits when the channel
// closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
