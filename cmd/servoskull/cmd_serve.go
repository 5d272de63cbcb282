package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/elee1766/servoskull/src/app"
)

const defaultShutdownTimeout = 10 * time.Second

// ServeCmd runs the websocket hub
type ServeCmd struct {
	Addr string `help:"Listen address (overrides server.addr)"`
}

// Run executes the serve command
func (c *ServeCmd) Run(kctx *kong.Context, cli *CLI) error {
	cfg, logger, err := setup(cli)
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Server.Addr = c.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Server.Addr, "hub", cfg.Server.HubPath, "archive", cfg.Storage.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		timeout := cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		// Hijacked websocket connections are not tracked by the server, so
		// the app closes them and waits for their sessions to be archived.
		srvErr := srv.Shutdown(shutdownCtx)
		appErr := a.Shutdown(shutdownCtx)
		return errors.Join(srvErr, appErr)
	})

	return g.Wait()
}
